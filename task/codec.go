package task

import (
	"path/filepath"
	"strings"
)

var codecArgsByExt = map[string][]string{
	".mp3": {"-vn", "-acodec", "libmp3lame", "-b:a", "192k"},
	".wav": {"-vn", "-acodec", "pcm_s16le", "-ar", "44100", "-ac", "2"},
	".aac": {"-vn", "-acodec", "aac", "-b:a", "192k"},
}

// SupportedFormats lists the extensions with a dedicated codec set.
func SupportedFormats() []string {
	return []string{".mp3", ".wav", ".aac"}
}

// CodecArgs returns the encoder flags for outputPath's extension. Unknown
// extensions only drop the video stream and leave the codec to ffmpeg.
func CodecArgs(outputPath string) []string {
	ext := strings.ToLower(filepath.Ext(outputPath))
	if args, ok := codecArgsByExt[ext]; ok {
		return append([]string(nil), args...)
	}
	return []string{"-vn"}
}
