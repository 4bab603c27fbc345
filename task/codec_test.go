package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodecArgs(t *testing.T) {
	tests := []struct {
		output string
		want   []string
	}{
		{"/out/a.mp3", []string{"-vn", "-acodec", "libmp3lame", "-b:a", "192k"}},
		{"/out/a.MP3", []string{"-vn", "-acodec", "libmp3lame", "-b:a", "192k"}},
		{"/out/a.wav", []string{"-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2"}},
		{"/out/a.aac", []string{"-vn", "-acodec", "aac", "-b:a", "192k"}},
		{"/out/a.flac", []string{"-vn"}},
		{"/out/noext", []string{"-vn"}},
	}
	for _, tt := range tests {
		t.Run(tt.output, func(t *testing.T) {
			assert.Equal(t, tt.want, CodecArgs(tt.output))
		})
	}

	t.Run("returns a copy", func(t *testing.T) {
		args := CodecArgs("x.mp3")
		args[0] = "-an"
		assert.Equal(t, "-vn", CodecArgs("x.mp3")[0])
	})
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, canTransition(StatusQueued, StatusProbing))
	assert.True(t, canTransition(StatusProbing, StatusTranscoding))
	assert.True(t, canTransition(StatusTranscoding, StatusCompleted))
	assert.True(t, canTransition(StatusProbing, StatusFailed))
	assert.True(t, canTransition(StatusQueued, StatusCancelled))
	assert.True(t, canTransition(StatusTranscoding, StatusCancelled))

	assert.False(t, canTransition(StatusQueued, StatusFailed))
	assert.False(t, canTransition(StatusQueued, StatusTranscoding))
	assert.False(t, canTransition(StatusProbing, StatusCompleted))
	for _, terminal := range []Status{StatusCompleted, StatusFailed, StatusCancelled} {
		assert.True(t, terminal.Terminal())
		for _, to := range []Status{StatusQueued, StatusProbing, StatusTranscoding, StatusCompleted, StatusFailed, StatusCancelled} {
			assert.False(t, canTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
}
