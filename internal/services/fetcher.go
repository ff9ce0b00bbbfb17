package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bobarin/promptreel/internal/metrics"
	"github.com/bobarin/promptreel/internal/models"
)

// RetryPolicy bounds how hard the fetcher tries for a single frame.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitStep time.Duration // 429 waits attempt * RateLimitStep
	RetryDelay    time.Duration // wait after any other failure
}

// DefaultRetryPolicy: 5 attempts, 5s linear backoff on 429, 3s otherwise.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		RateLimitStep: 5 * time.Second,
		RetryDelay:    3 * time.Second,
	}
}

// Delay returns how long to wait after the given 1-based attempt failed with
// the given outcome.
func (p RetryPolicy) Delay(attempt int, outcome string) time.Duration {
	if outcome == OutcomeRateLimited {
		return time.Duration(attempt) * p.RateLimitStep
	}
	return p.RetryDelay
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Fetcher drives one frame at a time through
// pending -> in_flight -> (succeeded | retry_wait -> in_flight ... | failed).
type Fetcher struct {
	provider ImageProvider
	policy   RetryPolicy
	log      *slog.Logger
	metrics  *metrics.Metrics
	sleep    SleepFunc
}

func NewFetcher(provider ImageProvider, policy RetryPolicy, log *slog.Logger, m *metrics.Metrics) *Fetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Fetcher{
		provider: provider,
		policy:   policy,
		log:      log.With("component", "fetcher", "provider", provider.Name()),
		metrics:  m,
		sleep:    sleepContext,
	}
}

// WithSleep replaces the wait function (tests record waits instead of sleeping).
func (f *Fetcher) WithSleep(sleep SleepFunc) *Fetcher {
	f.sleep = sleep
	return f
}

// Fetch runs the retry loop for frame and writes the image to path on
// success. The frame is updated in place and always ends in a terminal state.
// A failed frame is not an error for the caller; it is simply absent.
func (f *Fetcher) Fetch(ctx context.Context, frame *models.Frame, path string) {
	frame.State = models.FrameStatePending
	frame.Attempts = 0
	frame.Path = ""

	for frame.Attempts < f.policy.MaxAttempts {
		frame.State = models.FrameStateInFlight
		frame.Attempts++

		err := f.attempt(ctx, frame, path)
		outcome := classify(err)
		f.metrics.ObserveFrameAttempt(outcome)

		if err == nil {
			frame.State = models.FrameStateSucceeded
			frame.Path = path
			f.metrics.ObserveFrame(string(frame.State))
			f.log.Info("frame generated", "frame", frame.Index+1, "attempts", frame.Attempts)
			return
		}

		if frame.Attempts >= f.policy.MaxAttempts {
			f.log.Warn("frame attempt failed", "frame", frame.Index+1, "attempt", frame.Attempts, "max_attempts", f.policy.MaxAttempts, "outcome", outcome, "error", err)
			break
		}

		wait := f.policy.Delay(frame.Attempts, outcome)
		frame.State = models.FrameStateRetryWait
		f.log.Warn("frame attempt failed, retrying", "frame", frame.Index+1, "attempt", frame.Attempts, "max_attempts", f.policy.MaxAttempts, "outcome", outcome, "wait", wait, "error", err)

		if err := f.sleep(ctx, wait); err != nil {
			f.log.Warn("frame retry aborted", "frame", frame.Index+1, "error", err)
			break
		}
	}

	frame.State = models.FrameStateFailed
	f.metrics.ObserveFrame(string(frame.State))
	f.log.Error("frame failed", "frame", frame.Index+1, "attempts", frame.Attempts)
}

func (f *Fetcher) attempt(ctx context.Context, frame *models.Frame, path string) error {
	data, err := f.provider.GenerateImage(ctx, frame.Prompt, frame.Seed)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
