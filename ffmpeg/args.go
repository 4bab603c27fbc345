package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// Flags that would change what the engine reads, writes or reports. They are
// owned by Engine and refused in the configured global arguments.
var reservedFlags = map[string]bool{
	"-i":        true,
	"-y":        true,
	"-n":        true,
	"-progress": true,
	"-v":        true,
	"-loglevel": true,
}

// SplitCommand splits a command string into arguments without a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	return args, nil
}

// ValidateGlobalArgs rejects shell metacharacters, bare values and the flags
// in reservedFlags.
func ValidateGlobalArgs(args []string) error {
	for _, arg := range args {
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
		if reservedFlags[arg] {
			return fmt.Errorf("argument %s is managed by the transcoder", arg)
		}
	}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return fmt.Errorf("global arguments must start with a flag, got %q", args[0])
	}
	return nil
}

// ParseGlobalArgs splits and validates the FF_GLOBAL_ARGS setting.
func ParseGlobalArgs(command string) ([]string, error) {
	args, err := SplitCommand(command)
	if err != nil {
		return nil, err
	}
	if err := ValidateGlobalArgs(args); err != nil {
		return nil, err
	}
	return args, nil
}
