package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/bobarin/promptreel/internal/metadata"
	"github.com/bobarin/promptreel/internal/metrics"
	"github.com/bobarin/promptreel/internal/models"
	"github.com/bobarin/promptreel/internal/services"
	"github.com/bobarin/promptreel/internal/session"
	"github.com/bobarin/promptreel/internal/storage"
	"github.com/bobarin/promptreel/internal/worker"
	"github.com/go-chi/chi/v5"
)

// Generator runs one prompt-to-video generation.
type Generator interface {
	Generate(ctx context.Context, prompt string, numFrames int) (*worker.Result, error)
}

// HandlerConfig carries settings the handlers read from the environment.
type HandlerConfig struct {
	AdminPassword string // empty disables admin login
	DownloadName  string // attachment filename offered on /download
}

type Handler struct {
	generator Generator
	metadata  *metadata.Store
	storage   *storage.Storage
	sessions  *session.Manager
	metrics   *metrics.Metrics
	log       *slog.Logger
	templates *template.Template
	cfg       HandlerConfig
}

func NewHandler(
	gen Generator,
	meta *metadata.Store,
	stor *storage.Storage,
	sessions *session.Manager,
	m *metrics.Metrics,
	log *slog.Logger,
	cfg HandlerConfig,
) (*Handler, error) {
	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	if cfg.DownloadName == "" {
		cfg.DownloadName = "generated_video.mp4"
	}

	return &Handler{
		generator: gen,
		metadata:  meta,
		storage:   stor,
		sessions:  sessions,
		metrics:   m,
		log:       log.With("component", "api"),
		templates: tmpl,
		cfg:       cfg,
	}, nil
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	data := map[string]int{
		"MinFrames":     models.MinFrames,
		"MaxFrames":     models.MaxFrames,
		"DefaultFrames": models.DefaultFrames,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.render(w, "index.html", data); err != nil {
		h.log.Warn("render template", "url", r.URL.Path, "error", err)
	}
}

// Generate handles POST /generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}

	numFrames := req.FrameCount()
	h.log.Info("generation requested", "frames", numFrames, "prompt_len", len(prompt))

	res, err := h.generator.Generate(r.Context(), prompt, numFrames)
	if err != nil {
		var ae *services.AssembleError
		switch {
		case errors.Is(err, worker.ErrNoFrames):
			respondError(w, http.StatusInternalServerError, "Failed to generate frames")
		case errors.As(err, &ae):
			respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create video: %v", ae))
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, models.GenerateResponse{
		Success:         true,
		VideoURL:        storage.GetPublicURL(res.Record.Filename),
		DownloadURL:     storage.GetDownloadURL(res.Record.Filename),
		FramesGenerated: res.FramesGenerated,
	})
}

// Download handles GET /download/{filename}
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, err := h.storage.VideoPath(filename)
	if err != nil {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.Error(w, "Video not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.cfg.DownloadName))
	http.ServeContent(w, r, h.cfg.DownloadName, info.ModTime(), f)
}

// Videos serves stored clips inline under /static/videos/.
func (h *Handler) Videos() http.Handler {
	fs := http.StripPrefix("/static/videos/", http.FileServer(http.Dir(h.storage.VideosDir())))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/static/videos/")
		if _, err := h.storage.VideoPath(name); err != nil {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// refreshGauges runs before each metrics scrape.
func (h *Handler) refreshGauges() {
	doc, err := h.metadata.Load()
	if err != nil {
		h.log.Warn("failed to load metadata for metrics", "error", err)
		return
	}
	h.metrics.SetStoredVideos(len(doc.Videos))
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
