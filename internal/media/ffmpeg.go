// Package media segments a materialized audio or video file into a series
// of size-bounded MP3 chunks using the ffmpeg/ffprobe CLI tools.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"

	"github.com/asset-processing/worker/internal/job"
)

// Static errors for media segmentation.
var (
	// ErrNoAudioStream is returned when the input file has no audio track.
	ErrNoAudioStream = errors.New("media: no audio stream found in file")
	// ErrNoVideoStream is returned when the input file has no video track.
	ErrNoVideoStream = errors.New("media: no video stream found in file")
	// ErrChunkTooLarge is returned when a produced chunk exceeds MaxChunkSizeBytes.
	ErrChunkTooLarge = errors.New("media: chunk exceeds maximum size")
	// ErrFFprobeExecution is returned when ffprobe fails to run or parse.
	ErrFFprobeExecution = errors.New("media: ffprobe execution failed")
)

// Options configures a single segmentation run.
type Options struct {
	// MaxChunkSizeBytes bounds the size of every produced chunk.
	MaxChunkSizeBytes int64
	// WorkDir is the scratch directory chunks are written into; it must
	// already exist and be exclusive to the job.
	WorkDir string
	// BaseName seeds the chunk file name (original_filename stem).
	BaseName string
	// Timeout bounds each ffmpeg/ffprobe invocation; zero means no timeout.
	Timeout time.Duration
}

// Segmenter turns a materialized media file into ordered audio chunks.
type Segmenter interface {
	// SegmentAudio converts path to MP3 if needed and slices it into
	// chunks no larger than opts.MaxChunkSizeBytes.
	SegmentAudio(ctx context.Context, path string, opts Options) ([]job.AudioChunk, error)

	// SegmentVideo extracts the audio track from path and slices it the
	// same way SegmentAudio does.
	SegmentVideo(ctx context.Context, path string, opts Options) ([]job.AudioChunk, error)
}

// FFmpegSegmenter implements Segmenter using the ffmpeg/ffprobe CLI.
type FFmpegSegmenter struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegSegmenter builds a segmenter that shells out to ffmpegPath and
// to "ffprobe" found via PATH. An empty ffmpegPath defaults to "ffmpeg"
// found via PATH.
func NewFFmpegSegmenter(ffmpegPath string) *FFmpegSegmenter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpegSegmenter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
	}
}

// probeResult holds the subset of ffprobe output this package needs.
type probeResult struct {
	durationSeconds float64
	hasAudio        bool
	hasVideo        bool
}

// SegmentAudio implements Segmenter.
func (s *FFmpegSegmenter) SegmentAudio(ctx context.Context, path string, opts Options) ([]job.AudioChunk, error) {
	probe, err := s.probe(ctx, path, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if !probe.hasAudio {
		return nil, fmt.Errorf("%w: %s", ErrNoAudioStream, filepath.Base(path))
	}

	working := path
	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		converted := filepath.Join(opts.WorkDir, trimExt(filepath.Base(path))+".mp3")
		if err := s.convertToMP3(ctx, path, converted, opts.Timeout); err != nil {
			return nil, err
		}
		working = converted

		probe, err = s.probe(ctx, working, opts.Timeout)
		if err != nil {
			return nil, err
		}
	}

	return s.chunk(ctx, working, probe, opts)
}

// SegmentVideo implements Segmenter.
func (s *FFmpegSegmenter) SegmentVideo(ctx context.Context, path string, opts Options) ([]job.AudioChunk, error) {
	probe, err := s.probe(ctx, path, opts.Timeout)
	if err != nil {
		return nil, err
	}
	if !probe.hasVideo {
		return nil, fmt.Errorf("%w: %s", ErrNoVideoStream, filepath.Base(path))
	}

	audioPath := filepath.Join(opts.WorkDir, trimExt(filepath.Base(path))+".mp3")
	if err := s.extractAudioTrack(ctx, path, audioPath, opts.Timeout); err != nil {
		return nil, err
	}

	audioProbe, err := s.probe(ctx, audioPath, opts.Timeout)
	if err != nil {
		return nil, err
	}

	return s.chunk(ctx, audioPath, audioProbe, opts)
}

// chunk implements the size-bounded slicing algorithm: the number of
// chunks is the file size divided by the max chunk size, rounded up; each
// chunk gets an equal share of the duration except the last, which
// absorbs any remainder.
func (s *FFmpegSegmenter) chunk(ctx context.Context, path string, probe probeResult, opts Options) ([]job.AudioChunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("media: stat working file: %w", err)
	}

	numChunks := int(math.Ceil(float64(info.Size()) / float64(opts.MaxChunkSizeBytes)))
	if numChunks < 1 {
		numChunks = 1
	}
	chunkDuration := probe.durationSeconds / float64(numChunks)

	chunks := make([]job.AudioChunk, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := float64(i) * chunkDuration
		dur := chunkDuration
		if i == numChunks-1 {
			dur = probe.durationSeconds - start
		}

		fileName := fmt.Sprintf("%s_chunk_%03d.mp3", trimExt(opts.BaseName), i)
		chunkPath := filepath.Join(opts.WorkDir, fileName)

		if err := s.extractChunk(ctx, path, chunkPath, start, dur, opts.Timeout); err != nil {
			return nil, fmt.Errorf("media: extract chunk %d: %w", i, err)
		}

		chunkInfo, err := os.Stat(chunkPath)
		if err != nil {
			return nil, fmt.Errorf("media: stat chunk %d: %w", i, err)
		}
		if chunkInfo.Size() > opts.MaxChunkSizeBytes {
			return nil, fmt.Errorf("%w: chunk %d is %d bytes, max is %d", ErrChunkTooLarge, i, chunkInfo.Size(), opts.MaxChunkSizeBytes)
		}

		data, err := os.ReadFile(chunkPath) // #nosec G304 - chunkPath is built from a job-scoped work dir
		if err != nil {
			return nil, fmt.Errorf("media: read chunk %d: %w", i, err)
		}

		chunks = append(chunks, job.AudioChunk{
			FileName: fileName,
			Index:    i,
			Size:     chunkInfo.Size(),
			Data:     data,
		})
	}

	return chunks, nil
}

func (s *FFmpegSegmenter) convertToMP3(ctx context.Context, src, dst string, timeout time.Duration) error {
	args := []string{"-y", "-i", src, "-acodec", "libmp3lame", "-ab", "192k", dst}
	if err := s.run(ctx, s.ffmpegPath, args, timeout); err != nil {
		return err
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("media: converted file missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("media: converted file %s is empty", dst)
	}
	return nil
}

func (s *FFmpegSegmenter) extractAudioTrack(ctx context.Context, src, dst string, timeout time.Duration) error {
	args := []string{"-y", "-i", src, "-vn", "-acodec", "libmp3lame", "-ab", "192k", dst}
	return s.run(ctx, s.ffmpegPath, args, timeout)
}

func (s *FFmpegSegmenter) extractChunk(ctx context.Context, src, dst string, start, duration float64, timeout time.Duration) error {
	args := []string{
		"-y",
		"-i", src,
		"-ss", fmt.Sprintf("%.3f", start),
		"-t", fmt.Sprintf("%.3f", duration),
		"-acodec", "copy",
		dst,
	}
	return s.run(ctx, s.ffmpegPath, args, timeout)
}

// run executes ffmpeg with args, bounding the invocation by timeout when
// it is non-zero.
func (s *FFmpegSegmenter) run(ctx context.Context, path string, args []string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// #nosec G204 - path is operator-configured, not user input
	cmd := exec.CommandContext(ctx, path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("media: ffmpeg timed out: %w", ctx.Err())
		}
		return &FFmpegError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// probe inspects path with ffprobe, returning duration and stream presence.
func (s *FFmpegSegmenter) probe(ctx context.Context, path string, timeout time.Duration) (probeResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	duration, err := s.probeDuration(ctx, path)
	if err != nil {
		return probeResult{}, err
	}

	hasAudio, err := s.probeStream(ctx, path, "a")
	if err != nil {
		return probeResult{}, err
	}
	hasVideo, err := s.probeStream(ctx, path, "v")
	if err != nil {
		return probeResult{}, err
	}

	return probeResult{durationSeconds: duration, hasAudio: hasAudio, hasVideo: hasVideo}, nil
}

func (s *FFmpegSegmenter) probeDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is operator-configured, not user input
	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("media: ffprobe timed out: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %v: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var duration float64
	if _, err := fmt.Sscanf(strings.TrimSpace(stdout.String()), "%f", &duration); err != nil {
		return 0, fmt.Errorf("media: parse duration: %w", err)
	}
	return duration, nil
}

// probeStream reports whether path contains a stream of the given
// ffprobe codec_type short code ("a" audio, "v" video).
func (s *FFmpegSegmenter) probeStream(ctx context.Context, path, streamType string) (bool, error) {
	// #nosec G204 - ffprobePath is operator-configured, not user input
	cmd := exec.CommandContext(ctx, s.ffprobePath,
		"-v", "error",
		"-select_streams", streamType,
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return false, fmt.Errorf("media: ffprobe timed out: %w", ctx.Err())
		}
		return false, fmt.Errorf("%w: %v: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()) != "", nil
}

// ProbeTags reads best-effort ID3/container tags from an audio file as
// supplemental metadata. Failures are non-fatal: an unreadable
// or missing tag block returns a zero Metadata rather than an error.
func ProbeTags(path string) (Metadata, bool) {
	f, err := os.Open(path) // #nosec G304 - path is built from a job-scoped work dir
	if err != nil {
		return Metadata{}, false
	}
	defer func() { _ = f.Close() }()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return Metadata{}, false
	}

	return Metadata{
		Title:  m.Title(),
		Artist: m.Artist(),
		Album:  m.Album(),
		Format: string(m.Format()),
	}, true
}

// Metadata is a best-effort summary of an audio file's embedded tags.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Format string
}

// FFmpegError wraps a failed ffmpeg invocation with its stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("media: ffmpeg error: %v, args: %v, stderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Verify interface implementation at compile time.
var _ Segmenter = (*FFmpegSegmenter)(nil)
