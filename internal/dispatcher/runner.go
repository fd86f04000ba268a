package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/blockedby/cardpost/internal/logger"
)

// BatchRunner is what the cron runner triggers. *Service implements it.
type BatchRunner interface {
	Run(ctx context.Context) (*BatchSummary, error)
}

// Runner triggers the dispatcher on a cron schedule inside the process.
// A tick that fires while the previous run is still going is skipped.
type Runner struct {
	cron    *cron.Cron
	target  BatchRunner
	timeout time.Duration
	log     *logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunner parses spec (standard 5-field cron or descriptors like "@every 1m").
// timeout bounds a single run; zero means no bound beyond Stop.
func NewRunner(spec string, target BatchRunner, timeout time.Duration, log *logger.Logger) (*Runner, error) {
	if target == nil {
		return nil, errors.New("runner target cannot be nil")
	}

	l := log.Component("cron")
	cl := cronLogger{log: l}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		target:  target,
		timeout: timeout,
		log:     l,
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := r.cron.AddFunc(spec, r.tick); err != nil {
		cancel()
		return nil, fmt.Errorf("parse dispatch schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start begins scheduling in the background.
func (r *Runner) Start() {
	r.cron.Start()
	r.log.Info().Msg("dispatch runner started")
}

// Stop prevents new runs and waits for a running batch until ctx is done,
// after which the running batch is cancelled.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		r.cancel()
		<-done
	}
	r.cancel()
	r.log.Info().Msg("dispatch runner stopped")
}

func (r *Runner) tick() {
	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	summary, err := r.target.Run(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("scheduled dispatch failed")
		return
	}
	r.log.Debug().
		Int("processed", summary.Processed).
		Int("failed", summary.FailedCount).
		Msg("scheduled dispatch done")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
