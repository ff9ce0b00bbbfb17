package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/bobarin/promptreel/internal/metadata"
	"github.com/bobarin/promptreel/internal/metrics"
	"github.com/bobarin/promptreel/internal/models"
	"github.com/bobarin/promptreel/internal/services"
	"github.com/bobarin/promptreel/internal/storage"
	"golang.org/x/sync/semaphore"
)

// ErrNoFrames means every frame of a run failed, so there is nothing to encode.
var ErrNoFrames = errors.New("no frames generated")

// Seeds are drawn from [1, maxBaseSeed]
const maxBaseSeed = 1_000_000

// FrameFetcher runs the retry loop for one frame.
type FrameFetcher interface {
	Fetch(ctx context.Context, frame *models.Frame, path string)
}

// Assembler turns ordered frame files into a video at outputPath.
type Assembler interface {
	Assemble(ctx context.Context, frames []string, workDir, outputPath string) error
}

type Options struct {
	MaxConcurrentJobs int           // generation runs allowed at once
	FramePacing       time.Duration // pause between consecutive frames
}

// Result describes a finished generation.
type Result struct {
	Record          models.VideoRecord
	FramesGenerated int
}

type Worker struct {
	storage   *storage.Storage
	metadata  *metadata.Store
	fetcher   FrameFetcher
	assembler Assembler
	metrics   *metrics.Metrics
	log       *slog.Logger

	jobSem *semaphore.Weighted // bounds concurrent generation runs
	pacing time.Duration

	// stopCtx is cancelled by Shutdown; detached runs watch it
	stopCtx context.Context
	stop    context.CancelFunc

	sleep services.SleepFunc
	seed  func() int64
	now   func() time.Time
}

func New(
	stor *storage.Storage,
	meta *metadata.Store,
	fetcher FrameFetcher,
	assembler Assembler,
	m *metrics.Metrics,
	log *slog.Logger,
	opts Options,
) *Worker {
	if opts.MaxConcurrentJobs < 1 {
		opts.MaxConcurrentJobs = 1
	}

	stopCtx, stop := context.WithCancel(context.Background())

	return &Worker{
		storage:   stor,
		metadata:  meta,
		fetcher:   fetcher,
		assembler: assembler,
		metrics:   m,
		log:       log.With("component", "worker"),
		jobSem:    semaphore.NewWeighted(int64(opts.MaxConcurrentJobs)),
		pacing:    opts.FramePacing,
		stopCtx:   stopCtx,
		stop:      stop,
		sleep:     pause,
		seed:      func() int64 { return rand.Int63n(maxBaseSeed) + 1 },
		now:       time.Now,
	}
}

// Shutdown cancels every generation still running.
func (w *Worker) Shutdown() {
	w.stop()
}

// FramePrompt is the per-frame variation of the user prompt (k is 1-based).
func FramePrompt(prompt string, index int) string {
	return fmt.Sprintf("%s, cinematic scene %d", prompt, index+1)
}

// GenerateFrames fetches numFrames frames (clamped) one after another into ws
// and returns the paths of the ones that succeeded, in index order.
func (w *Worker) GenerateFrames(ctx context.Context, ws *storage.Workspace, prompt string, numFrames int) ([]string, error) {
	n := models.ClampFrames(numFrames)
	base := w.seed()

	w.log.Info("generating frames", "workspace", ws.ID, "frames", n, "base_seed", base)

	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		frame := &models.Frame{
			Index:  i,
			Seed:   base + int64(i),
			Prompt: FramePrompt(prompt, i),
		}

		w.fetcher.Fetch(ctx, frame, ws.FramePath(i))
		if frame.State == models.FrameStateSucceeded {
			paths = append(paths, frame.Path)
		}

		if i < n-1 {
			if err := w.sleep(ctx, w.pacing); err != nil {
				return nil, fmt.Errorf("frame generation interrupted: %w", err)
			}
		}
	}

	w.log.Info("frame generation complete", "workspace", ws.ID, "succeeded", len(paths), "requested", n)

	if len(paths) == 0 {
		return nil, ErrNoFrames
	}
	return paths, nil
}

// Generate runs the whole pipeline for one request: frames, clip, metadata.
// Waiting for a slot honours ctx; once the run starts it is detached from ctx
// and only Shutdown can cancel it.
func (w *Worker) Generate(ctx context.Context, prompt string, numFrames int) (*Result, error) {
	if err := w.jobSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for a generation slot: %w", err)
	}
	defer w.jobSem.Release(1)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stopWatch := context.AfterFunc(w.stopCtx, cancel)
	defer stopWatch()

	done := w.metrics.GenerationStarted()
	defer done()
	start := w.now()

	res, err := w.run(runCtx, prompt, numFrames)

	elapsed := w.now().Sub(start)
	w.metrics.ObserveGeneration(resultLabel(err), elapsed)

	if err != nil {
		w.log.Error("generation failed", "error", err, "elapsed", elapsed)
		return nil, err
	}

	w.log.Info("generation complete", "id", res.Record.ID, "filename", res.Record.Filename, "frames", res.FramesGenerated, "size", res.Record.FileSize, "elapsed", elapsed)
	return res, nil
}

func (w *Worker) run(ctx context.Context, prompt string, numFrames int) (*Result, error) {
	ws, err := w.storage.NewWorkspace()
	if err != nil {
		return nil, err
	}
	defer w.storage.RemoveWorkspace(ws)

	frames, err := w.GenerateFrames(ctx, ws, prompt, numFrames)
	if err != nil {
		return nil, err
	}

	id, filename := storage.NewVideoName(w.now())
	outputPath, err := w.storage.VideoPath(filename)
	if err != nil {
		return nil, err
	}

	if err := w.assembler.Assemble(ctx, frames, ws.Dir, outputPath); err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	size, err := w.storage.VideoSize(filename)
	if err != nil {
		return nil, err
	}

	rec := models.VideoRecord{
		ID:        id,
		Filename:  filename,
		Prompt:    prompt,
		NumFrames: len(frames),
		CreatedAt: w.now().UTC(),
		FileSize:  size,
	}

	if err := w.metadata.Insert(rec); err != nil {
		// an unrecorded video would never be listed or deleted
		if rmErr := os.Remove(outputPath); rmErr != nil {
			w.log.Warn("failed to remove unrecorded video", "path", outputPath, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to record video: %w", err)
	}

	return &Result{Record: rec, FramesGenerated: len(frames)}, nil
}

func resultLabel(err error) string {
	var ae *services.AssembleError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNoFrames):
		return "no_frames"
	case errors.As(err, &ae):
		return "assemble_failed"
	default:
		return "error"
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
