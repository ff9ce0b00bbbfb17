package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const pollinationsTimeout = 90 * time.Second

// PollinationsService fetches frames from the public Pollinations image API.
type PollinationsService struct {
	baseURL string
	client  *http.Client
}

func NewPollinationsService(baseURL string) *PollinationsService {
	return &PollinationsService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: pollinationsTimeout,
		},
	}
}

func (s *PollinationsService) Name() string { return "pollinations" }

// ImageURL builds the request URL. The prompt goes into the path with
// query-style escaping, so spaces become '+'.
func (s *PollinationsService) ImageURL(prompt string, seed int64) string {
	q := url.Values{}
	q.Set("seed", strconv.FormatInt(seed, 10))
	q.Set("width", strconv.Itoa(FrameWidth))
	q.Set("height", strconv.Itoa(FrameHeight))
	q.Set("nologo", "true")

	return fmt.Sprintf("%s/prompt/%s?%s", s.baseURL, url.QueryEscape(prompt), q.Encode())
}

func (s *PollinationsService) GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.ImageURL(prompt, seed), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: s.Name(), Code: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if len(body) == 0 {
		return nil, fmt.Errorf("pollinations returned an empty image")
	}

	return body, nil
}
