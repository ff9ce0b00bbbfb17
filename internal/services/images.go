package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Frame dimensions requested from every provider
const (
	FrameWidth  = 1920
	FrameHeight = 1080
)

// ImageProvider turns a prompt and seed into encoded image bytes.
// Providers that ignore seeds still accept one.
type ImageProvider interface {
	Name() string
	GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error)
}

// StatusError is a non-200 answer from a provider. Anything else a provider
// returns is treated as a transport failure.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Provider, e.Code, e.Body)
}

// Attempt outcomes, also used as metric labels
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeRejected    = "rejected"
	OutcomeTransport   = "transport"
)

// classify maps a provider error onto an attempt outcome.
func classify(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		if se.Code == http.StatusTooManyRequests {
			return OutcomeRateLimited
		}
		return OutcomeRejected
	}
	return OutcomeTransport
}

// truncate keeps error bodies readable in logs.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
