package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/bobarin/promptreel/internal/models"
)

// ErrNotFound is returned when deleting an id that is not in the document.
var ErrNotFound = errors.New("video not found")

// VideoRemover deletes the file backing a record.
type VideoRemover interface {
	DeleteVideo(filename string) error
}

// Store is the single writer of the metadata document. Every read-modify-write
// runs under mu.
type Store struct {
	path   string
	videos VideoRemover
	log    *slog.Logger

	mu sync.Mutex
}

// New returns a store backed by the JSON file at path.
func New(path string, videos VideoRemover, log *slog.Logger) *Store {
	return &Store{
		path:   path,
		videos: videos,
		log:    log.With("component", "metadata"),
	}
}

// Load reads the document. A missing file yields an empty document.
func (s *Store) Load() (*models.MetadataDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save overwrites the backing file with doc.
func (s *Store) Save(doc *models.MetadataDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(doc)
}

// Insert prepends rec and bumps the lifetime generation counter.
func (s *Store) Insert(rec models.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	doc.Videos = append([]models.VideoRecord{rec}, doc.Videos...)
	doc.TotalGenerated++

	if err := s.save(doc); err != nil {
		return err
	}

	s.log.Info("video recorded", "id", rec.ID, "filename", rec.Filename, "total_generated", doc.TotalGenerated)
	return nil
}

// Delete removes the record with the given id and its video file.
// TotalGenerated is left untouched.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	idx := -1
	for i, v := range doc.Videos {
		if v.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	rec := doc.Videos[idx]
	if err := s.videos.DeleteVideo(rec.Filename); err != nil {
		return fmt.Errorf("failed to delete video file for %s: %w", id, err)
	}

	doc.Videos = append(doc.Videos[:idx], doc.Videos[idx+1:]...)
	if err := s.save(doc); err != nil {
		return err
	}

	s.log.Info("video deleted", "id", id, "filename", rec.Filename)
	return nil
}

// Stats aggregates the document for the admin stats endpoint.
func (s *Store) Stats() (models.Stats, error) {
	doc, err := s.Load()
	if err != nil {
		return models.Stats{}, err
	}

	var totalBytes int64
	for _, v := range doc.Videos {
		totalBytes += v.FileSize
	}

	return models.Stats{
		TotalVideos:    len(doc.Videos),
		TotalGenerated: doc.TotalGenerated,
		TotalStorageMB: math.Round(float64(totalBytes)/(1024*1024)*100) / 100,
	}, nil
}

func (s *Store) load() (*models.MetadataDocument, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &models.MetadataDocument{Videos: []models.VideoRecord{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var doc models.MetadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", s.path, err)
	}
	if doc.Videos == nil {
		doc.Videos = []models.VideoRecord{}
	}
	return &doc, nil
}

// save writes to a temp file in the same directory and renames it over the
// target so readers never observe a half-written document.
func (s *Store) save(doc *models.MetadataDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create metadata dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".metadata-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close metadata: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace metadata: %w", err)
	}
	return nil
}
