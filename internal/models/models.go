package models

import "time"

// Frame count bounds for a single generation run
const (
	MinFrames     = 10
	MaxFrames     = 20
	DefaultFrames = 15
)

// FrameState tracks one frame through the fetch state machine.
// Succeeded and Failed are terminal.
type FrameState string

const (
	FrameStatePending   FrameState = "pending"
	FrameStateInFlight  FrameState = "in_flight"
	FrameStateRetryWait FrameState = "retry_wait"
	FrameStateSucceeded FrameState = "succeeded"
	FrameStateFailed    FrameState = "failed"
)

// Terminal reports whether no further transition can happen from s.
func (s FrameState) Terminal() bool {
	return s == FrameStateSucceeded || s == FrameStateFailed
}

// Frame is a single still requested from the image provider.
type Frame struct {
	Index    int        `json:"index"`
	Seed     int64      `json:"seed"`
	Prompt   string     `json:"prompt"`
	Path     string     `json:"path,omitempty"` // set once the frame succeeded
	State    FrameState `json:"state"`
	Attempts int        `json:"attempts"`
}

// VideoRecord is one entry of the metadata document.
type VideoRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Prompt    string    `json:"prompt"`
	NumFrames int       `json:"num_frames"`
	CreatedAt time.Time `json:"created_at"`
	FileSize  int64     `json:"file_size"`
}

// MetadataDocument is the persisted shape of the metadata file.
// TotalGenerated counts successful generations and is never decremented.
type MetadataDocument struct {
	Videos         []VideoRecord `json:"videos"`
	TotalGenerated int           `json:"total_generated"`
}

// Stats is the aggregate view served to admins.
type Stats struct {
	TotalVideos    int     `json:"total_videos"`
	TotalGenerated int     `json:"total_generated"`
	TotalStorageMB float64 `json:"total_storage_mb"`
}

// DTOs for the HTTP API

type GenerateRequest struct {
	Prompt    string `json:"prompt"`
	NumFrames *int   `json:"num_frames,omitempty"` // Default: 15
}

// FrameCount returns the requested frame count coerced into [MinFrames, MaxFrames].
// Missing or out-of-range values fall back to DefaultFrames.
func (r GenerateRequest) FrameCount() int {
	if r.NumFrames == nil {
		return DefaultFrames
	}
	return ClampFrames(*r.NumFrames)
}

// ClampFrames coerces n to DefaultFrames when it lies outside [MinFrames, MaxFrames].
func ClampFrames(n int) int {
	if n < MinFrames || n > MaxFrames {
		return DefaultFrames
	}
	return n
}

type GenerateResponse struct {
	Success         bool   `json:"success"`
	VideoURL        string `json:"video_url"`
	DownloadURL     string `json:"download_url"`
	FramesGenerated int    `json:"frames_generated"`
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
