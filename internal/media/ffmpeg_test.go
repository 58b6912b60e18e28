package media

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

// createTestTone creates a short, valid 440 Hz tone MP3 using ffmpeg's
// lavfi sine source, long enough to be sliced into multiple chunks.
func createTestTone(t *testing.T, path string, durationSeconds float64) {
	t.Helper()
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("sine=frequency=440:duration=%.1f", durationSeconds),
		"-acodec", "libmp3lame",
		"-ab", "64k",
		path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test tone: %v\noutput: %s", err, out)
	}
}

func TestFFmpegSegmenter_SegmentAudio_SingleChunk(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "tone.mp3")
	createTestTone(t, srcPath, 2)

	s := NewFFmpegSegmenter("")
	chunks, err := s.SegmentAudio(t.Context(), srcPath, Options{
		MaxChunkSizeBytes: 10 * 1024 * 1024, // comfortably larger than the 2s tone
		WorkDir:           dir,
		BaseName:          "tone.mp3",
		Timeout:           30 * time.Second,
	})

	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "tone_chunk_000.mp3", chunks[0].FileName)
	assert.Equal(t, 0, chunks[0].Index)
	assert.NotEmpty(t, chunks[0].Data)
}

func TestFFmpegSegmenter_SegmentAudio_MultipleChunks(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "tone.mp3")
	createTestTone(t, srcPath, 3)

	info, err := os.Stat(srcPath)
	require.NoError(t, err)

	s := NewFFmpegSegmenter("")
	chunks, err := s.SegmentAudio(t.Context(), srcPath, Options{
		MaxChunkSizeBytes: info.Size() / 2, // forces at least 2 chunks
		WorkDir:           dir,
		BaseName:          "tone.mp3",
		Timeout:           30 * time.Second,
	})

	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.LessOrEqual(t, c.Size, info.Size()/2)
	}
}

func TestFFmpegSegmenter_SegmentAudio_NoAudioStream(t *testing.T) {
	skipIfNoFFmpeg(t)

	dir := t.TempDir()
	textPath := filepath.Join(dir, "notaudio.mp3")
	require.NoError(t, os.WriteFile(textPath, []byte("not actually audio"), 0o600))

	s := NewFFmpegSegmenter("")
	_, err := s.SegmentAudio(t.Context(), textPath, Options{
		MaxChunkSizeBytes: 1024,
		WorkDir:           dir,
		BaseName:          "notaudio.mp3",
		Timeout:           10 * time.Second,
	})

	require.Error(t, err)
}

func TestProbeTags_MissingFileReturnsFalse(t *testing.T) {
	_, ok := ProbeTags(filepath.Join(t.TempDir(), "missing.mp3"))
	assert.False(t, ok)
}

func TestFFmpegError_Unwrap(t *testing.T) {
	inner := assert.AnError
	err := &FFmpegError{Args: []string{"-y"}, Stderr: "boom", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
}
