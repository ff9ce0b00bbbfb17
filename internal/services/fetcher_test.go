package services

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/promptreel/internal/logger"
	"github.com/bobarin/promptreel/internal/models"
)

// scriptedProvider answers from a fixed list of errors, then succeeds.
type scriptedProvider struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	prompts []string
	seeds   []int64
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, prompt)
	p.seeds = append(p.seeds, seed)
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	return []byte("png-bytes"), nil
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestFetcher(p ImageProvider) (*Fetcher, *sleepRecorder) {
	rec := &sleepRecorder{}
	f := NewFetcher(p, DefaultRetryPolicy(), logger.Discard(), nil).WithSleep(rec.sleep)
	return f, rec
}

func assertWaits(t *testing.T, got []time.Duration, want ...time.Duration) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected waits %v, got %v", want, got)
		}
	}
}

func TestFetchSuccessWritesFrame(t *testing.T) {
	p := &scriptedProvider{}
	f, rec := newTestFetcher(p)

	path := filepath.Join(t.TempDir(), "frame_000.png")
	frame := &models.Frame{Index: 0, Seed: 42, Prompt: "a lake"}
	f.Fetch(context.Background(), frame, path)

	if frame.State != models.FrameStateSucceeded {
		t.Fatalf("expected succeeded, got %s", frame.State)
	}
	if frame.Attempts != 1 || frame.Path != path {
		t.Errorf("unexpected frame %+v", frame)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("frame file = %q, %v", data, err)
	}
	if len(rec.waits) != 0 {
		t.Errorf("no waits expected on first-try success, got %v", rec.waits)
	}
	if p.seeds[0] != 42 || p.prompts[0] != "a lake" {
		t.Errorf("provider got prompt=%q seed=%d", p.prompts[0], p.seeds[0])
	}
}

func TestFetchRateLimitedEveryAttempt(t *testing.T) {
	p := &scriptedProvider{errs: repeat(&StatusError{Code: http.StatusTooManyRequests}, 5)}
	f, rec := newTestFetcher(p)

	path := filepath.Join(t.TempDir(), "frame_003.png")
	frame := &models.Frame{Index: 3}
	f.Fetch(context.Background(), frame, path)

	if frame.State != models.FrameStateFailed {
		t.Fatalf("expected failed, got %s", frame.State)
	}
	if p.calls != 5 || frame.Attempts != 5 {
		t.Errorf("expected 5 attempts, got calls=%d attempts=%d", p.calls, frame.Attempts)
	}
	assertWaits(t, rec.waits, 5*time.Second, 10*time.Second, 15*time.Second, 20*time.Second)

	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Error("failed frame must not leave a file behind")
	}
}

func TestFetchTransportErrorsThenSuccess(t *testing.T) {
	p := &scriptedProvider{errs: repeat(errors.New("connection reset"), 2)}
	f, rec := newTestFetcher(p)

	frame := &models.Frame{Index: 1}
	f.Fetch(context.Background(), frame, filepath.Join(t.TempDir(), "frame_001.png"))

	if frame.State != models.FrameStateSucceeded || frame.Attempts != 3 {
		t.Fatalf("expected success on attempt 3, got %+v", frame)
	}
	assertWaits(t, rec.waits, 3*time.Second, 3*time.Second)
}

func TestFetchOtherStatusUsesFixedDelay(t *testing.T) {
	p := &scriptedProvider{errs: []error{
		&StatusError{Code: http.StatusInternalServerError},
		&StatusError{Code: http.StatusTooManyRequests},
		&StatusError{Code: http.StatusBadGateway},
	}}
	f, rec := newTestFetcher(p)

	frame := &models.Frame{}
	f.Fetch(context.Background(), frame, filepath.Join(t.TempDir(), "f.png"))

	if frame.State != models.FrameStateSucceeded || frame.Attempts != 4 {
		t.Fatalf("expected success on attempt 4, got %+v", frame)
	}
	// attempt 2 was rate limited: 2 * 5s
	assertWaits(t, rec.waits, 3*time.Second, 10*time.Second, 3*time.Second)
}

func TestFetchAllTransportErrorsNoTrailingWait(t *testing.T) {
	p := &scriptedProvider{errs: repeat(errors.New("dial tcp: timeout"), 5)}
	f, rec := newTestFetcher(p)

	frame := &models.Frame{}
	f.Fetch(context.Background(), frame, filepath.Join(t.TempDir(), "f.png"))

	if frame.State != models.FrameStateFailed {
		t.Fatalf("expected failed, got %s", frame.State)
	}
	if len(rec.waits) != 4 {
		t.Errorf("expected 4 waits for 5 attempts, got %v", rec.waits)
	}
}

func TestFetchStopsWhenContextCancelled(t *testing.T) {
	p := &scriptedProvider{errs: repeat(errors.New("boom"), 5)}
	f, _ := newTestFetcher(p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frame := &models.Frame{}
	f.Fetch(ctx, frame, filepath.Join(t.TempDir(), "f.png"))

	if frame.State != models.FrameStateFailed {
		t.Fatalf("expected failed, got %s", frame.State)
	}
	if p.calls != 1 {
		t.Errorf("expected the loop to stop after the aborted wait, got %d calls", p.calls)
	}
}

func TestFetchWriteFailureIsRetried(t *testing.T) {
	p := &scriptedProvider{}
	f, rec := newTestFetcher(p)

	frame := &models.Frame{}
	f.Fetch(context.Background(), frame, filepath.Join(t.TempDir(), "missing-dir", "f.png"))

	if frame.State != models.FrameStateFailed || frame.Attempts != 5 {
		t.Fatalf("expected failed after 5 attempts, got %+v", frame)
	}
	assertWaits(t, rec.waits, 3*time.Second, 3*time.Second, 3*time.Second, 3*time.Second)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{&StatusError{Code: 429}, OutcomeRateLimited},
		{&StatusError{Code: 500}, OutcomeRejected},
		{&StatusError{Code: 403}, OutcomeRejected},
		{errors.New("eof"), OutcomeTransport},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero wait should return immediately, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
