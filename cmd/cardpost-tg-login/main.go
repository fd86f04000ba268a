package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/session/tdesktop"
	"github.com/joho/godotenv"
	"github.com/mdp/qrterminal/v3"

	"github.com/blockedby/cardpost/internal/config"
	"github.com/blockedby/cardpost/internal/database"
	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/migrator"
	"github.com/blockedby/cardpost/internal/telegram"
	"github.com/blockedby/cardpost/migrations"
)

// loginTimeout bounds the whole QR flow; tokens rotate inside it.
const loginTimeout = 5 * time.Minute

func main() {
	tdata := flag.String("tdata", "", "import the session of a Telegram Desktop install instead of scanning a QR code (\"auto\" for the default location)")
	account := flag.Int("account", 1, "account number inside tdata when it holds several")
	flag.Parse()

	fmt.Println("=== cardpost messenger login ===")
	fmt.Println("links the sender account used for messenger deliveries")
	fmt.Println()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fail("load config", err)
	}
	if !cfg.TelegramEnabled() {
		fmt.Println("error: TG_API_ID and TG_API_HASH are required (from https://my.telegram.org)")
		os.Exit(1)
	}

	// keep the terminal for the QR code
	log, err := logger.New("warn", "")
	if err != nil {
		fail("init logger", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		fail("connect to database", err)
	}
	defer db.Close()

	m, err := migrator.NewWithFS(migrations.FS)
	if err != nil {
		fail("load migrations", err)
	}
	if err := m.Up(ctx, cfg.DatabaseURL); err != nil {
		fail("run migrations", err)
	}

	manager := telegram.NewManager(cfg, db.GORM, log)
	if err := manager.Init(ctx); err != nil {
		fail("restore session", err)
	}
	defer manager.Stop()

	if manager.GetStatus() == telegram.StatusReady {
		fmt.Println("✓ already logged in, nothing to do")
		return
	}

	if *tdata != "" {
		if err := importTData(ctx, manager, *tdata, *account); err != nil {
			fail("import telegram desktop session", err)
		}
		done(manager)
		return
	}

	fmt.Println("open Telegram on your phone: Settings > Devices > Link Desktop Device")
	fmt.Println("then scan the code below. it refreshes until you scan it or press ctrl+c.")

	loginCtx, loginCancel := context.WithTimeout(ctx, loginTimeout)
	defer loginCancel()

	err = manager.StartQR(loginCtx, func(url string) {
		fmt.Println()
		qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
		fmt.Println(url)
	})
	if err != nil {
		fail("login", err)
	}
	done(manager)
}

// importTData reads a Telegram Desktop data directory and stores the chosen
// account's session.
func importTData(ctx context.Context, manager *telegram.Manager, path string, account int) error {
	if path == "auto" {
		path = telegramDesktopPath()
	}
	if !strings.HasSuffix(path, "tdata") {
		path = filepath.Join(path, "tdata")
	}

	accounts, err := tdesktop.Read(path, nil)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if account < 1 || account > len(accounts) {
		return fmt.Errorf("account %d out of range, %s holds %d", account, path, len(accounts))
	}
	fmt.Printf("using account %d of %d from %s\n", account, len(accounts), path)

	data, err := session.TDesktopSession(accounts[account-1])
	if err != nil {
		return fmt.Errorf("convert session: %w", err)
	}
	return manager.ImportSession(ctx, data)
}

// telegramDesktopPath returns the default Telegram Desktop data directory.
func telegramDesktopPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "Telegram Desktop", "tdata")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "Telegram Desktop", "tdata")
	default: // linux
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "TelegramDesktop", "tdata")
	}
}

func done(manager *telegram.Manager) {
	if manager.GetStatus() != telegram.StatusReady {
		fmt.Printf("error: session saved but client status is %s\n", manager.GetStatus())
		os.Exit(1)
	}
	fmt.Println("\n✓ login successful, the session is stored in the database")
	fmt.Println("restart cardpost to pick it up")
	fmt.Println("\n⚠️  keep the database private! the session gives full access to the account")
}

func fail(step string, err error) {
	fmt.Printf("error: %s: %v\n", step, err)
	os.Exit(1)
}
