// Package converter extracts a compact audio track from a video on the
// submitting machine. Each Job owns a single ffmpeg invocation; a
// superseded job is torn down by cancelling its context.
package converter

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Audio target: mono mp3 at a constant 20 kbit/s, small enough to upload
// while keeping speech intelligible.
var encodeArgs = []string{"-map", "0:a", "-acodec", "libmp3lame", "-b:a", "20k", "-ac", "1"}

// ConversionError reports that the engine could not decode or encode the
// input. The caller must not proceed to upload.
type ConversionError struct {
	Err    error
	Stderr string
}

func (e *ConversionError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("conversion failed: %v: %s", e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("conversion failed: %v", e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// Job converts one video to audio, reporting fractional progress in
// [0,1]. Progress is monotonically non-decreasing during the run and is
// reset to 0 after completion so the next job starts clean. A Job is
// single-use.
type Job struct {
	input      string
	onProgress func(float64)

	mu   sync.Mutex
	last float64
	ran  bool
}

// NewJob prepares a conversion of input. onProgress may be nil.
func NewJob(input string, onProgress func(float64)) *Job {
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	return &Job{input: input, onProgress: onProgress}
}

// Run converts the input and returns the path of the derived audio file,
// placed in a fresh temporary directory. Cancelling ctx kills the engine.
func (j *Job) Run(ctx context.Context) (string, error) {
	j.mu.Lock()
	if j.ran {
		j.mu.Unlock()
		return "", errors.New("conversion job already consumed")
	}
	j.ran = true
	j.mu.Unlock()

	durationSec, err := probeDuration(ctx, j.input)
	if err != nil {
		return "", &ConversionError{Err: fmt.Errorf("probe input: %w", err)}
	}

	dir, err := os.MkdirTemp("", "clipscribe-convert-")
	if err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(j.input), filepath.Ext(j.input))
	out := filepath.Join(dir, base+".mp3")

	args := []string{"-y", "-i", j.input}
	args = append(args, encodeArgs...)
	args = append(args, "-nostats", "-loglevel", "error", "-progress", "pipe:1", out)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("pipe ffmpeg output: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", &ConversionError{Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if us, ok := parseOutTime(scanner.Text()); ok {
			j.report(fractionDone(us, durationSec))
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ConversionError{Err: err, Stderr: stderr.String()}
	}

	j.report(1)
	j.reset()
	return out, nil
}

// report forwards a progress value, skipping regressions so observers
// only ever see a non-decreasing sequence within the run.
func (j *Job) report(f float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if f < j.last {
		return
	}
	if f > 1 {
		f = 1
	}
	j.last = f
	j.onProgress(f)
}

func (j *Job) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.last = 0
	j.onProgress(0)
}

// parseOutTime extracts the out_time_us value from one line of
// `ffmpeg -progress` output.
func parseOutTime(line string) (int64, bool) {
	val, ok := strings.CutPrefix(line, "out_time_us=")
	if !ok {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}

func fractionDone(outTimeUs int64, durationSec float64) float64 {
	if durationSec <= 0 {
		return 0
	}
	f := float64(outTimeUs) / 1e6 / durationSec
	if f < 0 {
		return 0
	}
	if f > 1 {
		f = 1
	}
	return f
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
}
