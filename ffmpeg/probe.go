package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// MaxDurationSeconds is the longest duration accepted from a probe, about
// 31 years.
const MaxDurationSeconds = 1e9

// Prober asks ffprobe for a media file's total duration.
type Prober struct {
	runner  CommandRunner
	bin     string
	timeout time.Duration
}

func NewProber(runner CommandRunner, bin string, timeout time.Duration) *Prober {
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{runner: runner, bin: bin, timeout: timeout}
}

// ProbeArgs is the information query sent to ffprobe for path.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}
}

// Probe returns the duration of path in seconds. Every failure wraps
// ErrProbeFailed; there is no fallback value.
func (p *Prober) Probe(ctx context.Context, path string) (float64, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	res, err := p.runner.Run(ctx, p.bin, ProbeArgs(path))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrProbeFailed, path, err)
	}
	if res.ExitCode != 0 {
		return 0, fmt.Errorf("%w: ffprobe exited with code %d: %s", ErrProbeFailed, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return ParseDuration([]byte(res.Stdout))
}

// ffprobe -show_format output; only the field we need is decoded. Duration is
// kept loose because ffprobe prints it as a string while other tools emit a
// JSON number.
type probeOutput struct {
	Format *struct {
		Duration interface{} `json:"duration"`
	} `json:"format"`
}

// ParseDuration extracts format.duration from ffprobe JSON output.
func ParseDuration(data []byte) (float64, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("%w: parse ffprobe JSON: %v", ErrProbeFailed, err)
	}
	if out.Format == nil {
		return 0, fmt.Errorf("%w: ffprobe output has no format section", ErrProbeFailed)
	}
	if out.Format.Duration == nil {
		return 0, fmt.Errorf("%w: ffprobe output has no duration", ErrProbeFailed)
	}

	raw := out.Format.Duration
	switch v := raw.(type) {
	case string:
		raw = strings.TrimSpace(v)
	case float64:
	default:
		return 0, fmt.Errorf("%w: duration %v is not a number", ErrProbeFailed, v)
	}
	d, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %v is not a number", ErrProbeFailed, out.Format.Duration)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 || d > MaxDurationSeconds {
		return 0, fmt.Errorf("%w: invalid duration %v", ErrProbeFailed, out.Format.Duration)
	}
	return d, nil
}
