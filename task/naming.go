package task

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxNameSuffix bounds the " (n)" search.
const maxNameSuffix = 10000

// OutputPath picks where the audio for input goes: "<stem><ext>" inside
// outputDir when that is an existing directory, otherwise next to the input.
// While the candidate exists on disk or taken reports it as claimed, " (n)" is
// appended to the stem with n counting up from 1. The check is not atomic
// against other processes creating files concurrently.
func OutputPath(input, outputDir, ext string, taken func(string) bool) (string, error) {
	if !strings.HasPrefix(ext, ".") || len(ext) < 2 || strings.ContainsAny(ext, `/\`) || strings.Contains(ext, "..") {
		return "", fmt.Errorf("%w: bad output extension %q", ErrInvalidInput, ext)
	}

	dir := filepath.Dir(input)
	if outputDir != "" {
		if info, err := os.Stat(outputDir); err == nil && info.IsDir() {
			dir = outputDir
		}
	}

	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	candidate := filepath.Join(dir, stem+ext)
	for n := 1; occupied(candidate, taken); n++ {
		if n > maxNameSuffix {
			return "", fmt.Errorf("no free output name for %s in %s", stem+ext, dir)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
	}
	return candidate, nil
}

func occupied(path string, taken func(string) bool) bool {
	if taken != nil && taken(path) {
		return true
	}
	_, err := os.Lstat(path)
	return err == nil
}
