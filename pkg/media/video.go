package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// FrameExtractor pulls representative JPEG frames out of uploaded videos
// using ffmpeg/ffprobe subprocesses. There is no usable pure-Go decoder for
// the container formats phones produce, so the binaries are treated as a
// runtime dependency the same way the transcription API is.
type FrameExtractor struct {
	ffmpegPath  string
	ffprobePath string
	opts        Options
}

func NewFrameExtractor(opts Options) *FrameExtractor {
	return &FrameExtractor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		opts:        opts,
	}
}

// Available reports whether the ffmpeg binaries can be found.
func (e *FrameExtractor) Available() bool {
	_, err := exec.LookPath(e.ffmpegPath)
	if err != nil {
		return false
	}
	_, err = exec.LookPath(e.ffprobePath)
	return err == nil
}

// SingleFrame extracts one frame to stand in for the whole video in
// storage-constrained contexts. The seek point is one second in, capped at
// half the video's duration for very short clips.
func (e *FrameExtractor) SingleFrame(ctx context.Context, name string, data []byte) (string, error) {
	path, cleanup, err := e.writeTemp(name, data)
	if err != nil {
		return "", err
	}
	defer cleanup()

	duration, err := e.duration(ctx, path)
	if err != nil {
		return "", err
	}

	seek := min(1.0, duration*0.5)
	return e.frameAt(ctx, path, seek, e.opts.Quality)
}

// Frames extracts count frames evenly spaced across the video's duration,
// for model analysis only. Order matches playback order.
func (e *FrameExtractor) Frames(ctx context.Context, name string, data []byte, count int) ([]string, error) {
	if count <= 0 {
		count = 3
	}

	path, cleanup, err := e.writeTemp(name, data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	duration, err := e.duration(ctx, path)
	if err != nil {
		return nil, err
	}

	interval := duration / float64(count+1)
	frames := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		frame, err := e.frameAt(ctx, path, interval*float64(i), e.opts.FrameQuality)
		if err != nil {
			return nil, fmt.Errorf("extract frame %d/%d: %w", i, count, err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (e *FrameExtractor) writeTemp(name string, data []byte) (string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "frames-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(tmpDir, "video"+ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("write video file: %w", err)
	}
	return path, func() { os.RemoveAll(tmpDir) }, nil
}

func (e *FrameExtractor) duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probe video duration: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse video duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

func (e *FrameExtractor) frameAt(ctx context.Context, path string, seconds float64, quality int) (string, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-ss", fmt.Sprintf("%.3f", seconds),
		"-i", path,
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-f", "image2",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[len(msg)-200:]
		}
		return "", fmt.Errorf("extract frame at %.3fs: %w: %s", seconds, err, msg)
	}

	img, _, err := image.Decode(bytes.NewReader(stdout.Bytes()))
	if err != nil {
		return "", fmt.Errorf("decode extracted frame: %w", err)
	}

	return encodeBounded(img, quality, e.opts.FallbackMaxWidth, e.opts.FallbackMaxHeight)
}
