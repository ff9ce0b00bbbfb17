package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// URL prefixes under which videos are exposed by the API
	publicPrefix   = "/static/videos/"
	downloadPrefix = "/download/"

	videoExt = ".mp4"
)

// ErrInvalidName is returned for filenames that would escape the videos directory.
var ErrInvalidName = errors.New("invalid video filename")

// Storage owns the on-disk layout: a root for transient frame workspaces and
// a persistent videos directory.
type Storage struct {
	framesDir string
	videosDir string
	log       *slog.Logger
}

// New creates both directories if they don't exist.
func New(framesDir, videosDir string, log *slog.Logger) (*Storage, error) {
	for _, dir := range []string{framesDir, videosDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &Storage{
		framesDir: framesDir,
		videosDir: videosDir,
		log:       log.With("component", "storage"),
	}, nil
}

// Workspace is a private frame directory for one generation run.
type Workspace struct {
	ID  string
	Dir string
}

// FramePath returns the file path for the frame at index (zero-padded).
func (w *Workspace) FramePath(index int) string {
	return filepath.Join(w.Dir, fmt.Sprintf("frame_%03d.png", index))
}

// File returns a path for an auxiliary file inside the workspace.
func (w *Workspace) File(name string) string {
	return filepath.Join(w.Dir, name)
}

// NewWorkspace creates a fresh, empty workspace under the frames root.
func (s *Storage) NewWorkspace() (*Workspace, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.framesDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &Workspace{ID: id, Dir: dir}, nil
}

// RemoveWorkspace deletes a workspace and every frame in it.
func (s *Storage) RemoveWorkspace(w *Workspace) {
	if w == nil {
		return
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		s.log.Warn("failed to remove workspace", "workspace", w.ID, "error", err)
	}
}

// PurgeWorkspaces removes everything under the frames root. Only safe at
// startup, before any generation is running.
func (s *Storage) PurgeWorkspaces() error {
	entries, err := os.ReadDir(s.framesDir)
	if err != nil {
		return fmt.Errorf("failed to read frames dir: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(s.framesDir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			s.log.Warn("failed to purge stale frames", "path", path, "error", err)
		}
	}
	if len(entries) > 0 {
		s.log.Info("purged stale frame workspaces", "count", len(entries))
	}
	return nil
}

// NewVideoName returns a fresh record id and matching output filename.
func NewVideoName(now time.Time) (id, filename string) {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	ts := now.Unix()
	return fmt.Sprintf("vid_%d_%s", ts, suffix), fmt.Sprintf("video_%d_%s%s", ts, suffix, videoExt)
}

// VideoPath resolves filename inside the videos directory, rejecting anything
// that is not a plain file name.
func (s *Storage) VideoPath(filename string) (string, error) {
	if filename == "" || filename == "." || filename == ".." ||
		filepath.Base(filename) != filename || strings.ContainsAny(filename, `/\`) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.videosDir, filename), nil
}

// VideoSize returns the size in bytes of a stored video.
func (s *Storage) VideoSize(filename string) (int64, error) {
	path, err := s.VideoPath(filename)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat video: %w", err)
	}
	return info.Size(), nil
}

// DeleteVideo removes a stored video. A missing file is not an error.
func (s *Storage) DeleteVideo(filename string) error {
	path, err := s.VideoPath(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return nil
}

// VideosDir returns the persistent videos directory.
func (s *Storage) VideosDir() string {
	return s.videosDir
}

// GetPublicURL returns the inline playback URL for a video
func GetPublicURL(filename string) string {
	return publicPrefix + url.PathEscape(filename)
}

// GetDownloadURL returns the attachment download URL for a video
func GetDownloadURL(filename string) string {
	return downloadPrefix + url.PathEscape(filename)
}
