package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Output / rendering constants: 1080p landscape at 24fps
const (
	videoFPS     = 24
	videoBitrate = "8000k"
	videoPreset  = "medium"

	// Clip length bounds in seconds
	minClipSeconds = 4.0
	maxClipSeconds = 6.0

	concatListName = "concat_list.txt"
)

// Assembly stages reported in AssembleError
const (
	StageResize = "resize"
	StageEncode = "encode"
)

// AssembleError reports which step of clip assembly failed.
type AssembleError struct {
	Stage string
	Err   error
}

func (e *AssembleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *AssembleError) Unwrap() error { return e.Err }

// DurationPlan says how a frame sequence is stretched or cut to fit the
// 4-6 second window.
type DurationPlan struct {
	Natural float64 // frames / fps
	Loops   int     // times the sequence is played back to back
	Final   float64 // output duration in seconds
}

// Trimmed reports whether the output is cut short of the looped length.
func (p DurationPlan) Trimmed() bool {
	return p.Final < float64(p.Loops)*p.Natural
}

// PlanDuration decides looping and trimming for n frames at 24fps.
// Short sequences are looped floor(4/d)+1 times and cut to 4s, long ones are
// cut to 6s, everything in between plays once.
func PlanDuration(n int) DurationPlan {
	if n <= 0 {
		return DurationPlan{}
	}

	d := float64(n) / videoFPS
	switch {
	case d < minClipSeconds:
		return DurationPlan{Natural: d, Loops: int(math.Floor(minClipSeconds/d)) + 1, Final: minClipSeconds}
	case d > maxClipSeconds:
		return DurationPlan{Natural: d, Loops: 1, Final: maxClipSeconds}
	default:
		return DurationPlan{Natural: d, Loops: 1, Final: d}
	}
}

// CommandRunner executes an external binary and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(stderr.String(), 500))
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	run         CommandRunner
	log         *slog.Logger
}

func NewFFmpegService(ffmpegPath, ffprobePath string, log *slog.Logger) *FFmpegService {
	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		run:         execRunner,
		log:         log.With("component", "ffmpeg"),
	}
}

// WithRunner swaps the process runner.
func (s *FFmpegService) WithRunner(run CommandRunner) *FFmpegService {
	s.run = run
	return s
}

// Assemble resizes frames in place, then encodes them in order into an H.264
// MP4 at outputPath. workDir holds the temporary concat list.
func (s *FFmpegService) Assemble(ctx context.Context, frames []string, workDir, outputPath string) error {
	if len(frames) == 0 {
		return &AssembleError{Stage: StageEncode, Err: errors.New("no frames to assemble")}
	}

	for _, frame := range frames {
		if err := s.ResizeFrame(ctx, frame); err != nil {
			return &AssembleError{Stage: StageResize, Err: err}
		}
	}

	plan := PlanDuration(len(frames))
	s.log.Info("encoding clip", "frames", len(frames), "natural_seconds", plan.Natural, "loops", plan.Loops, "final_seconds", plan.Final)

	if err := s.encode(ctx, frames, plan, workDir, outputPath); err != nil {
		os.Remove(outputPath)
		return &AssembleError{Stage: StageEncode, Err: err}
	}

	if probed, err := s.ProbeDuration(ctx, outputPath); err != nil {
		s.log.Warn("failed to probe clip duration", "path", outputPath, "error", err)
	} else {
		s.log.Info("clip encoded", "path", outputPath, "duration_seconds", probed)
	}

	return nil
}

// ResizeFrame scales a frame to 1920x1080 with Lanczos and replaces the
// original file.
func (s *FFmpegService) ResizeFrame(ctx context.Context, framePath string) error {
	scaled := strings.TrimSuffix(framePath, filepath.Ext(framePath)) + "_scaled.png"

	args := []string{
		"-i", framePath,
		"-vf", fmt.Sprintf("scale=%d:%d:flags=lanczos", FrameWidth, FrameHeight),
		"-frames:v", "1",
		"-y",
		scaled,
	}

	if _, err := s.run(ctx, s.ffmpegPath, args...); err != nil {
		os.Remove(scaled)
		return fmt.Errorf("resize %s: %w", filepath.Base(framePath), err)
	}

	if err := os.Rename(scaled, framePath); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(framePath), err)
	}
	return nil
}

func (s *FFmpegService) encode(ctx context.Context, frames []string, plan DurationPlan, workDir, outputPath string) error {
	listPath := filepath.Join(workDir, concatListName)
	if err := os.WriteFile(listPath, []byte(BuildConcatList(frames, plan.Loops)), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-t", formatSeconds(plan.Final),
		"-r", strconv.Itoa(videoFPS),
		"-c:v", "libx264",
		"-preset", videoPreset,
		"-b:v", videoBitrate,
		"-pix_fmt", "yuv420p",
		"-an",
		"-movflags", "+faststart",
		"-y",
		outputPath,
	}

	if _, err := s.run(ctx, s.ffmpegPath, args...); err != nil {
		return err
	}
	return nil
}

// BuildConcatList renders a concat demuxer script showing every frame for
// 1/24s, with the whole sequence repeated loops times. The last file is listed
// again without a duration so the demuxer honours the final frame's duration.
func BuildConcatList(frames []string, loops int) string {
	if loops < 1 {
		loops = 1
	}
	frameDuration := formatSeconds(1.0 / videoFPS)

	var b strings.Builder
	for i := 0; i < loops; i++ {
		for _, f := range frames {
			fmt.Fprintf(&b, "file '%s'\nduration %s\n", escapeConcatPath(f), frameDuration)
		}
	}
	if len(frames) > 0 {
		fmt.Fprintf(&b, "file '%s'\n", escapeConcatPath(frames[len(frames)-1]))
	}
	return b.String()
}

// ProbeDuration returns the container duration of a media file in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output, err := s.run(ctx, s.ffprobePath, args...)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// escapeConcatPath quotes a path for a single-quoted concat list entry.
func escapeConcatPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return strings.ReplaceAll(path, "'", `'\''`)
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 6, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
