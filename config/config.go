// video2audio/config/config.go
package config

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/spf13/viper"
)

type Config struct {
	FFBin            string        `mapstructure:"FF_BIN"`
	FFProbeBin       string        `mapstructure:"FFPROBE_BIN"`
	FFGlobalArgs     string        `mapstructure:"FF_GLOBAL_ARGS"`
	FFDrainTimeout   time.Duration `mapstructure:"FF_DRAIN_TIMEOUT"`
	FFProbeTimeout   time.Duration `mapstructure:"FF_PROBE_TIMEOUT"`
	MaxConcurrency   int           `mapstructure:"MAX_CONCURRENCY"`
	MaxInputSize     int64         `mapstructure:"MAX_INPUT_SIZE"`
	DefaultFormat    string        `mapstructure:"DEFAULT_FORMAT"`
	OutputDir        string        `mapstructure:"OUTPUT_DIR"`
	KeepFailedOutput bool          `mapstructure:"KEEP_FAILED_OUTPUT"`
	EventBacklog     bool          `mapstructure:"EVENT_BACKLOG"`
	TaskRetention    time.Duration `mapstructure:"TASK_RETENTION"`
	ThrottleCPU      float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem  int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk int64         `mapstructure:"THROTTLE_FREEDISK"`
	AuthEnable       bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey          string        `mapstructure:"AUTH_KEY"`
	Port             string        `mapstructure:"PORT"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

// DefaultConcurrency is half the logical CPU count, never less than one.
func DefaultConcurrency() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	return max(1, n/2)
}

var formatPattern = regexp.MustCompile(`^\.[a-z0-9]+$`)

// NormalizeFormat turns "MP3", "mp3" or ".mp3" into ".mp3". Anything that is
// not a single alphanumeric extension yields "".
func NormalizeFormat(format string) string {
	ext := strings.ToLower(strings.TrimSpace(format))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !formatPattern.MatchString(ext) {
		return ""
	}
	return ext
}

func Load() (*Config, error) {
	vp := viper.New()

	vp.SetDefault("FF_BIN", "ffmpeg")
	vp.SetDefault("FFPROBE_BIN", "ffprobe")
	vp.SetDefault("FF_GLOBAL_ARGS", "-hide_banner -nostdin")
	vp.SetDefault("FF_DRAIN_TIMEOUT", "30s")
	vp.SetDefault("FF_PROBE_TIMEOUT", "1m")
	vp.SetDefault("MAX_CONCURRENCY", 0)
	vp.SetDefault("MAX_INPUT_SIZE", "0")
	vp.SetDefault("DEFAULT_FORMAT", "mp3")
	vp.SetDefault("OUTPUT_DIR", "")
	vp.SetDefault("KEEP_FAILED_OUTPUT", false)
	vp.SetDefault("EVENT_BACKLOG", true)
	vp.SetDefault("TASK_RETENTION", "0s")
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0")
	vp.SetDefault("THROTTLE_FREEDISK", "100MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("PORT", "8080")

	vp.SetConfigName("video2audio_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/video2audio/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("VIDEO2AUDIO")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The order matters: the first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConcurrency()
	}
	cfg.DefaultFormat = NormalizeFormat(cfg.DefaultFormat)
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = ".mp3"
	}

	return &cfg, nil
}
