// Package dispatcher delivers due scheduled sends through their channels and
// records exactly one terminal status per send.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/blockedby/cardpost/internal/logger"
	"github.com/blockedby/cardpost/internal/models"
	"github.com/blockedby/cardpost/internal/web"
)

// ErrWriteBackUnavailable is returned when no send of a non-empty batch could be written back.
var ErrWriteBackUnavailable = errors.New("write-back failed for every send in the batch")

// Config is the dispatch policy.
type Config struct {
	BatchSize    int
	Workers      int
	JobTimeout   time.Duration
	WriteTimeout time.Duration
	Retry        RetryPolicy
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		BatchSize:    50,
		Workers:      5,
		JobTimeout:   30 * time.Second,
		WriteTimeout: 10 * time.Second,
		Retry:        DefaultRetryPolicy(),
	}
}

// Channels holds the providers. Nil Email or Messenger channels make the
// matching sends fail as not configured; a nil Link uses LinkSender.
type Channels struct {
	Email     Channel
	Messenger Channel
	Link      Channel
}

// BatchSummary reports one Run.
type BatchSummary struct {
	Processed    int       `json:"processed"`
	SuccessCount int       `json:"successCount"`
	FailedCount  int       `json:"failedCount"`
	SkippedCount int       `json:"skippedCount"`
	WriteErrors  int       `json:"writeErrors"`
	Interrupted  int       `json:"interruptedCount"`
	Errors       []string  `json:"errors"`
	DurationMs   int64     `json:"durationMs"`
	StartedAt    time.Time `json:"startedAt"`
}

type jobState int

const (
	jobSent jobState = iota
	jobFailed
	jobSkipped
	jobWriteError
	jobInterrupted
)

type jobResult struct {
	state  jobState
	reason string
}

// Service claims due sends and runs them through delivery and write-back.
type Service struct {
	sends   SendStore
	cards   CardStore
	tracker *DeliveryTracker
	hub     Broadcaster

	email     *RetryingSender
	messenger *RetryingSender
	link      *RetryingSender

	cfg Config
	log *logger.Logger
	now func() time.Time

	mu   sync.RWMutex
	last *BatchSummary
}

// NewService wires the dispatcher. hub may be nil.
func NewService(sends SendStore, cards CardStore, channels Channels, tracker *DeliveryTracker, hub Broadcaster, cfg Config, log *logger.Logger) (*Service, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be at least 1, got %d", cfg.BatchSize)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultConfig().JobTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	if channels.Email == nil {
		channels.Email = NewEmailSender(nil, log)
	}
	if channels.Messenger == nil {
		channels.Messenger = NewMessengerSender(nil, log)
	}
	if channels.Link == nil {
		channels.Link = NewLinkSender()
	}

	s := &Service{
		sends:   sends,
		cards:   cards,
		tracker: tracker,
		hub:     hub,
		cfg:     cfg,
		log:     log.Component("dispatcher"),
		now:     time.Now,
	}

	// one policy for every channel
	var err error
	if s.email, err = NewRetryingSender(channels.Email, cfg.Retry, log); err != nil {
		return nil, err
	}
	if s.messenger, err = NewRetryingSender(channels.Messenger, cfg.Retry, log); err != nil {
		return nil, err
	}
	if s.link, err = NewRetryingSender(channels.Link, cfg.Retry, log); err != nil {
		return nil, err
	}

	return s, nil
}

// Policy returns the effective configuration.
func (s *Service) Policy() Config {
	return s.cfg
}

// LastSummary returns the summary of the most recent Run, nil before the first.
func (s *Service) LastSummary() *BatchSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Run claims up to BatchSize due sends, earliest first, and processes them on a
// bounded worker pool. Individual send failures are reported in the summary;
// only a failed claim, a write-back failure for every claimed send, or ctx
// ending before every send finished is an error. Sends cut short by ctx stay
// PENDING.
func (s *Service) Run(ctx context.Context) (*BatchSummary, error) {
	start := time.Now()

	now := s.now()
	claimed, err := s.sends.FindDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("claim phase failed")
		return nil, fmt.Errorf("claim due sends: %w", err)
	}

	due := claimed[:0]
	for _, send := range claimed {
		if !send.IsDue(now) {
			s.log.Warn().Str("send_id", send.ID.String()).Str("status", string(send.Status)).Msg("store returned a send that is not due, ignoring")
			continue
		}
		due = append(due, send)
	}

	s.log.Info().Int("claimed", len(due)).Msg("dispatch batch started")

	results := make([]*jobResult, len(due))
	sem := semaphore.NewWeighted(int64(s.cfg.Workers))
	var wg sync.WaitGroup
	var runErr error

	for i, send := range due {
		if err := sem.Acquire(ctx, 1); err != nil {
			// unstarted sends stay PENDING for the next run
			runErr = fmt.Errorf("dispatch interrupted: %w", err)
			break
		}

		wg.Add(1)
		go func(i int, send *models.ScheduledSend) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = s.process(ctx, send)
		}(i, send)
	}
	wg.Wait()

	summary := &BatchSummary{
		Errors:    []string{},
		StartedAt: start.UTC(),
	}
	for i, res := range results {
		if res == nil {
			continue
		}
		if res.state == jobInterrupted {
			summary.Interrupted++
			continue
		}
		summary.Processed++
		switch res.state {
		case jobSent:
			summary.SuccessCount++
		case jobFailed:
			summary.FailedCount++
		case jobSkipped:
			summary.SkippedCount++
		case jobWriteError:
			summary.WriteErrors++
		}
		if res.reason != "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("send %s: %s", due[i].ID, res.reason))
		}
	}
	summary.DurationMs = time.Since(start).Milliseconds()
	if summary.Interrupted > 0 && runErr == nil {
		runErr = fmt.Errorf("dispatch interrupted: %w", ctx.Err())
	}

	s.mu.Lock()
	s.last = summary
	s.mu.Unlock()

	if s.hub != nil && summary.Processed > 0 {
		s.hub.Broadcast(web.DispatchBatchEvent(web.BatchPayload{
			Processed:    summary.Processed,
			SuccessCount: summary.SuccessCount,
			FailedCount:  summary.FailedCount,
			SkippedCount: summary.SkippedCount,
			DurationMs:   summary.DurationMs,
		}))
	}

	s.log.Info().
		Int("processed", summary.Processed).
		Int("sent", summary.SuccessCount).
		Int("failed", summary.FailedCount).
		Int("skipped", summary.SkippedCount).
		Int("write_errors", summary.WriteErrors).
		Int("interrupted", summary.Interrupted).
		Int64("duration_ms", summary.DurationMs).
		Msg("dispatch batch finished")

	if runErr != nil {
		return summary, runErr
	}
	if summary.Processed > 0 && summary.WriteErrors == summary.Processed {
		return summary, ErrWriteBackUnavailable
	}
	return summary, nil
}

// process runs one send end to end. It never panics out of the worker.
func (s *Service) process(ctx context.Context, send *models.ScheduledSend) (res *jobResult) {
	log := s.log.With().
		Str("send_id", send.ID.String()).
		Str("channel", string(send.Channel)).
		Logger()

	var outcomes []Outcome
	var reason string

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("delivery panicked")
				reason = fmt.Sprintf("internal error: %v", r)
			}
		}()

		jobCtx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()

		card, err := s.cards.Resolve(jobCtx, send.CardID)
		if err != nil {
			reason = fmt.Sprintf("resolve card: %v", err)
			return
		}
		outcomes, reason = s.deliver(jobCtx, send, payloadFor(card, send))
	}()

	// sends cut short by the run's own ctx stay PENDING; the per-job deadline
	// only ends jobCtx, so a timeout still fails the send
	if reason != "" && ctx.Err() != nil {
		log.Warn().Str("reason", reason).Msg("run cancelled during delivery, send left pending")
		return &jobResult{state: jobInterrupted}
	}

	// completed deliveries are recorded even when the run's context is gone
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	at := s.now()
	var updated bool
	var err error
	if reason == "" {
		updated, err = s.tracker.TrackSuccess(writeCtx, send, outcomes, at)
	} else {
		updated, err = s.tracker.TrackFailure(writeCtx, send, reason, outcomes, at)
	}

	switch {
	case err != nil:
		log.Error().Err(err).Msg("write-back failed")
		return &jobResult{state: jobWriteError, reason: fmt.Sprintf("write-back: %v", err)}
	case !updated:
		return &jobResult{state: jobSkipped}
	case reason != "":
		return &jobResult{state: jobFailed, reason: reason}
	default:
		return &jobResult{state: jobSent}
	}
}

// deliver returns the channel outcomes and an empty reason on success.
func (s *Service) deliver(ctx context.Context, send *models.ScheduledSend, payload Payload) ([]Outcome, string) {
	target := targetFor(send)

	switch send.Channel {
	case models.SendChannelEmail:
		o := s.email.Send(ctx, target, payload)
		return []Outcome{o}, failureText(o)
	case models.SendChannelMessenger:
		o := s.messenger.Send(ctx, target, payload)
		return []Outcome{o}, failureText(o)
	case models.SendChannelLinkOnly:
		o := s.link.Send(ctx, target, payload)
		return []Outcome{o}, failureText(o)
	case models.SendChannelBoth:
		var emailOut, messengerOut Outcome

		var g errgroup.Group
		g.Go(func() error {
			emailOut = s.email.Send(ctx, target, payload)
			return nil
		})
		g.Go(func() error {
			messengerOut = s.messenger.Send(ctx, target, payload)
			return nil
		})
		_ = g.Wait()

		return []Outcome{emailOut, messengerOut}, bothFailureText(emailOut, messengerOut)
	default:
		return nil, fmt.Sprintf("unsupported channel %q", send.Channel)
	}
}

func failureText(o Outcome) string {
	if o.OK() {
		return ""
	}
	return o.Err.Error()
}

// bothFailureText names every failing channel, e.g. "messenger delivery failed: timeout".
func bothFailureText(outcomes ...Outcome) string {
	var parts []string
	for _, o := range outcomes {
		if !o.OK() {
			parts = append(parts, fmt.Sprintf("%s delivery failed: %v", o.Channel, o.Err))
		}
	}
	return strings.Join(parts, "; ")
}
