package services

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// ImagenService generates frames with Imagen through the Gemini API.
type ImagenService struct {
	apiKey string
	model  string
}

func NewImagenService(apiKey, model string) *ImagenService {
	return &ImagenService{
		apiKey: apiKey,
		model:  model,
	}
}

func (s *ImagenService) Name() string { return "imagen" }

// GenerateImage requests a single 16:9 image. The Gemini API backend does not
// accept a seed, so consecutive frames vary only by prompt.
func (s *ImagenService) GenerateImage(ctx context.Context, prompt string, seed int64) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	resp, err := client.Models.GenerateImages(ctx, s.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    "16:9",
		OutputMIMEType: "image/png",
	})
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: s.Name(), Code: apiErr.Code, Body: truncate(apiErr.Message, 200)}
		}
		return nil, fmt.Errorf("imagen request failed: %w", err)
	}

	if len(resp.GeneratedImages) == 0 {
		return nil, fmt.Errorf("imagen returned no images")
	}

	img := resp.GeneratedImages[0]
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		if img.RAIFilteredReason != "" {
			return nil, fmt.Errorf("imagen filtered the image: %s", img.RAIFilteredReason)
		}
		return nil, fmt.Errorf("imagen returned an empty image")
	}

	return img.Image.ImageBytes, nil
}
