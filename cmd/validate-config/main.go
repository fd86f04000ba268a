package main

import (
	"fmt"
	"os"

	"github.com/robfig/cron/v3"

	"github.com/blockedby/cardpost/internal/config"
)

// Checks CONFIG_FILE overlays the way the service loads them: the yaml is
// applied on top of the environment, then the dispatch policy is validated.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: validate-config <config.yaml>...")
		os.Exit(0)
	}

	failed := false
	for _, path := range os.Args[1:] {
		if err := check(path); err != nil {
			fmt.Printf("❌ %s: %v\n", path, err)
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func check(path string) error {
	if err := os.Setenv("CONFIG_FILE", path); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	d := cfg.Dispatch
	if d.Cron != "" {
		if _, err := cron.ParseStandard(d.Cron); err != nil {
			return fmt.Errorf("dispatch cron %q: %w", d.Cron, err)
		}
	}

	fmt.Printf("✅ %s is valid\n", path)
	fmt.Printf("   batch_size=%d max_attempts=%d workers=%d job_timeout=%s run_timeout=%s retry=%s..%s\n",
		d.BatchSize, d.MaxAttempts, d.Workers, d.JobTimeout, d.RunTimeout, d.RetryInitial, d.RetryMax)
	if d.Cron == "" {
		fmt.Println("   cron: none, batches run only through the trigger endpoint")
	} else {
		fmt.Printf("   cron: %s\n", d.Cron)
	}
	if d.Secret == "" {
		fmt.Println("   ⚠️  no dispatch secret, the trigger endpoint rejects every call")
	}
	return nil
}
