package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Image providers accepted by IMAGE_PROVIDER
const (
	ProviderPollinations = "pollinations"
	ProviderImagen       = "imagen"
	ProviderOpenAI       = "openai"
)

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Admin / sessions
	SessionSecret string // Cookie signing key (empty = random per process)
	AdminPassword string // Empty disables admin login entirely
	RedisURL      string // Optional session backend (empty = in-memory)

	// Filesystem layout
	FramesDir    string // Transient per-request frame workspaces live under here
	VideosDir    string // Persistent output videos
	MetadataFile string // JSON metadata document
	DownloadName string // Attachment filename offered on /download

	// Image generation
	ImageProvider    string
	PollinationsURL  string
	GeminiKey        string
	ImagenModel      string
	OpenAIKey        string
	OpenAIImageModel string
	FramePacing      time.Duration // Pause between consecutive frame requests

	// Rendering
	FFmpegPath  string
	FFprobePath string

	// Worker
	MaxConcurrentJobs int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "5000"),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		SessionSecret:      getEnv("SESSION_SECRET", ""),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		FramesDir:          getEnv("FRAMES_DIR", "frames"),
		VideosDir:          getEnv("VIDEOS_DIR", "static/videos"),
		MetadataFile:       getEnv("METADATA_FILE", "video_metadata.json"),
		DownloadName:       getEnv("DOWNLOAD_NAME", "generated_video.mp4"),
		ImageProvider:      strings.ToLower(getEnv("IMAGE_PROVIDER", ProviderPollinations)),
		PollinationsURL:    getEnv("POLLINATIONS_URL", "https://image.pollinations.ai"),
		GeminiKey:          getEnv("GEMINI_API_KEY", ""),
		ImagenModel:        getEnv("IMAGEN_MODEL", "imagen-4.0-generate-001"),
		OpenAIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIImageModel:   getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),
		FramePacing:        getEnvDuration("FRAME_PACING", 2*time.Second),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		MaxConcurrentJobs:  getEnvInt("MAX_CONCURRENT_JOBS", 2),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	switch c.ImageProvider {
	case ProviderPollinations:
		if c.PollinationsURL == "" {
			return fmt.Errorf("POLLINATIONS_URL is required for the pollinations provider")
		}
	case ProviderImagen:
		if c.GeminiKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the imagen provider")
		}
	case ProviderOpenAI:
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown IMAGE_PROVIDER %q (allowed: pollinations, imagen, openai)", c.ImageProvider)
	}

	if c.MaxConcurrentJobs < 1 {
		return fmt.Errorf("MAX_CONCURRENT_JOBS must be at least 1, got %d", c.MaxConcurrentJobs)
	}

	if c.FramePacing < 0 {
		return fmt.Errorf("FRAME_PACING must not be negative")
	}

	return nil
}

// AdminEnabled reports whether an admin password was configured.
func (c *Config) AdminEnabled() bool {
	return c.AdminPassword != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
