package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIService generates frames with the OpenAI images endpoint.
type OpenAIService struct {
	client *openai.Client
	model  string
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// NewOpenAIServiceWithConfig lets callers point the client at another base URL.
func NewOpenAIServiceWithConfig(cfg openai.ClientConfig, model string) *OpenAIService {
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *OpenAIService) Name() string { return "openai" }

// GenerateImage asks for one landscape image as base64. The images API has no
// seed parameter; seed is ignored.
func (s *OpenAIService) GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          s.model,
		N:              1,
		Size:           openai.CreateImageSize1792x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: s.Name(), Code: apiErr.HTTPStatusCode, Body: truncate(apiErr.Message, 200)}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return nil, &StatusError{Provider: s.Name(), Code: reqErr.HTTPStatusCode, Body: truncate(reqErr.Error(), 200)}
		}
		return nil, fmt.Errorf("openai image request failed: %w", err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("openai returned no image data")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	return data, nil
}
