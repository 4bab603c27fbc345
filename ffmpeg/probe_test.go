package ffmpeg

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProber_Probe(t *testing.T) {
	t.Run("parses duration", func(t *testing.T) {
		runner := &fakeRunner{runFunc: func(ctx context.Context, name string, args []string) (*Result, error) {
			return &Result{Stdout: `{"format": {"filename": "clip.mov", "duration": "12.480000"}}`}, nil
		}}
		p := NewProber(runner, "ffprobe", 0)

		d, err := p.Probe(context.Background(), "/videos/clip.mov")
		require.NoError(t, err)
		assert.InDelta(t, 12.48, d, 1e-9)

		require.Len(t, runner.calls, 1)
		assert.Equal(t, []string{"ffprobe", "-v", "quiet", "-print_format", "json", "-show_format", "/videos/clip.mov"}, runner.calls[0])
	})

	t.Run("non-zero exit includes stderr", func(t *testing.T) {
		runner := &fakeRunner{runFunc: func(ctx context.Context, name string, args []string) (*Result, error) {
			return &Result{Stderr: "clip.mov: Invalid data found when processing input\n", ExitCode: 1}, nil
		}}
		_, err := NewProber(runner, "", 0).Probe(context.Background(), "clip.mov")
		assert.ErrorIs(t, err, ErrProbeFailed)
		assert.Contains(t, err.Error(), "Invalid data found when processing input")
		assert.Contains(t, err.Error(), "code 1")
	})

	t.Run("runner error is a probe failure", func(t *testing.T) {
		runner := &fakeRunner{runFunc: func(ctx context.Context, name string, args []string) (*Result, error) {
			return nil, errors.Join(ErrRunner, errors.New("exec: not found"))
		}}
		_, err := NewProber(runner, "", 0).Probe(context.Background(), "clip.mov")
		assert.ErrorIs(t, err, ErrProbeFailed)
		assert.ErrorIs(t, err, ErrRunner)
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    float64
		wantErr bool
	}{
		{name: "string duration", input: `{"format":{"duration":"3600.5"}}`, want: 3600.5},
		{name: "numeric duration", input: `{"format":{"duration":42.25}}`, want: 42.25},
		{name: "padded string", input: `{"format":{"duration":" 7.0 "}}`, want: 7},
		{name: "zero is allowed", input: `{"format":{"duration":"0.000000"}}`, want: 0},
		{name: "not json", input: `Input #0, mov`, wantErr: true},
		{name: "empty output", input: ``, wantErr: true},
		{name: "no format", input: `{"streams":[]}`, wantErr: true},
		{name: "no duration", input: `{"format":{"filename":"a.mov"}}`, wantErr: true},
		{name: "N/A duration", input: `{"format":{"duration":"N/A"}}`, wantErr: true},
		{name: "boolean duration", input: `{"format":{"duration":true}}`, wantErr: true},
		{name: "negative duration", input: `{"format":{"duration":"-1"}}`, wantErr: true},
		{name: "absurd duration", input: `{"format":{"duration":"1e13"}}`, wantErr: true},
		{name: "longest accepted", input: `{"format":{"duration":1e9}}`, want: 1e9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProbeFailed)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
