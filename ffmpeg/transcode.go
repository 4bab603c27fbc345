package ffmpeg

import (
	"context"
	"strconv"
	"strings"
)

// ffmpeg writes the elapsed output time in microseconds under both keys;
// out_time_ms is a historical misnomer.
var progressKeys = []string{"out_time_us=", "out_time_ms="}

// Engine runs streaming ffmpeg transcodes and turns -progress output into
// percentages.
type Engine struct {
	runner     CommandRunner
	bin        string
	globalArgs []string
}

func NewEngine(runner CommandRunner, bin string, globalArgs []string) *Engine {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Engine{runner: runner, bin: bin, globalArgs: globalArgs}
}

// TranscodeArgs builds the full ffmpeg argument list. Progress goes to stdout
// as key=value lines; stderr carries errors only.
func (e *Engine) TranscodeArgs(input, output string, codecArgs []string) []string {
	args := make([]string, 0, len(e.globalArgs)+len(codecArgs)+10)
	args = append(args, e.globalArgs...)
	args = append(args,
		"-v", "error",
		"-y",
		"-nostats",
		"-progress", "pipe:1",
		"-i", input,
	)
	args = append(args, codecArgs...)
	return append(args, output)
}

// Transcode runs ffmpeg and reports progress through onProgress, which is only
// called when the percentage changes. Mid-stream values never exceed 99; a
// clean exit is followed by exactly one call with 100. The returned error is
// non-nil only for runner failures; a non-zero exit is reported via the exit
// code together with the captured stderr.
func (e *Engine) Transcode(
	ctx context.Context,
	input, output string,
	codecArgs []string,
	totalSeconds float64,
	onProgress func(percent int),
) (int, string, error) {
	tracker := NewProgressTracker(totalSeconds)

	res, err := e.runner.Stream(ctx, e.bin, e.TranscodeArgs(input, output, codecArgs), func(line string) bool {
		if p, changed := tracker.Observe(line); changed {
			onProgress(p)
		}
		return true
	})
	if err != nil {
		stderr := ""
		code := -1
		if res != nil {
			stderr = res.Stderr
			code = res.ExitCode
		}
		return code, stderr, err
	}

	if res.ExitCode == 0 {
		onProgress(100)
	}
	return res.ExitCode, res.Stderr, nil
}

// ParseProgress extracts the elapsed microseconds from one -progress line.
func ParseProgress(line string) (int64, bool) {
	line = strings.TrimSpace(line)
	for _, key := range progressKeys {
		if !strings.HasPrefix(line, key) {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimPrefix(line, key), 10, 64)
		if err != nil {
			return 0, false
		}
		return us, true
	}
	return 0, false
}

// ProgressTracker converts elapsed time into a de-duplicated, non-decreasing
// 0-99 percentage.
type ProgressTracker struct {
	totalUS int64
	last    int
}

// NewProgressTracker treats an unknown (zero) duration as a one microsecond
// denominator: the first non-zero timestamp reports 99, then completion 100.
// Durations beyond MaxDurationSeconds are clamped to it.
func NewProgressTracker(totalSeconds float64) *ProgressTracker {
	if !(totalSeconds > 0) {
		return &ProgressTracker{totalUS: 1}
	}
	total := int64(min(totalSeconds, MaxDurationSeconds) * 1_000_000)
	if total < 1 {
		total = 1
	}
	return &ProgressTracker{totalUS: total}
}

// Percent maps elapsed microseconds onto [0, 99].
func (t *ProgressTracker) Percent(elapsedUS int64) int {
	if elapsedUS <= 0 {
		return 0
	}
	// elapsed < total <= MaxDurationSeconds in µs from here, so elapsed*100 fits
	if elapsedUS >= t.totalUS {
		return 99
	}
	return min(99, int(elapsedUS*100/t.totalUS))
}

// Observe feeds one stdout line and reports the new percentage if it moved
// forward. A timestamp that jumps backwards is ignored.
func (t *ProgressTracker) Observe(line string) (int, bool) {
	us, ok := ParseProgress(line)
	if !ok {
		return t.last, false
	}
	p := t.Percent(us)
	if p <= t.last {
		return t.last, false
	}
	t.last = p
	return p, true
}
