// Package config loads screencast settings.
//
// Values are layered: built-in defaults, then the YAML file, then
// environment variables, then command-line flags. A .env file in the
// current directory feeds the environment without overriding variables
// that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"go2tv.app/screencast/internal/domain"
)

const (
	EnvFFmpegBin          = "FFMPEG_BIN"
	EnvFFmpegHome         = "FFMPEG_HOME"
	EnvWorkDir            = "DLNA_CAST_DIR"
	EnvWorkDirLegacy      = "DLAN_CAST_DIR"
	EnvDevice             = "SCREENCAST_DEVICE"
	EnvVideoSource        = "SCREENCAST_VIDEO_SOURCE"
	EnvVideoFormat        = "SCREENCAST_VIDEO_FORMAT"
	EnvAudioSource        = "SCREENCAST_AUDIO_SOURCE"
	EnvAudioFormat        = "SCREENCAST_AUDIO_FORMAT"
	EnvEncoderOptions     = "SCREENCAST_ENCODER_OPTIONS"
	EnvFramerate          = "SCREENCAST_FRAMERATE"
	EnvSegmentSeconds     = "SCREENCAST_SEGMENT_SECONDS"
	EnvPlaylistSize       = "SCREENCAST_PLAYLIST_SIZE"
	EnvDiscoveryTimeout   = "SCREENCAST_DISCOVERY_TIMEOUT"
	EnvServerReadyTimeout = "SCREENCAST_SERVER_READY_TIMEOUT"
	EnvPlaylistTimeout    = "SCREENCAST_PLAYLIST_TIMEOUT"
	EnvLogLevel           = "SCREENCAST_LOG_LEVEL"
	EnvLogFormat          = "SCREENCAST_LOG_FORMAT"
	EnvConfig             = "SCREENCAST_CONFIG"
)

type Config struct {
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	WorkDir   string          `yaml:"work_dir"`
	Device    string          `yaml:"device"`
	Capture   CaptureConfig   `yaml:"capture"`
	Encoding  EncodingConfig  `yaml:"encoding"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type FFmpegConfig struct {
	Bin  string `yaml:"bin"`
	Home string `yaml:"home"`
}

// CaptureConfig overrides the platform capture defaults. Empty fields keep
// the default.
type CaptureConfig struct {
	VideoFormat string `yaml:"video_format"`
	VideoSource string `yaml:"video_source"`
	AudioFormat string `yaml:"audio_format"`
	AudioSource string `yaml:"audio_source"`
	// DisableAudio drops audio capture even when the platform has a default.
	DisableAudio bool `yaml:"disable_audio"`
}

type EncodingConfig struct {
	Options        string `yaml:"options"`
	Framerate      int    `yaml:"framerate"`
	SegmentSeconds int    `yaml:"segment_seconds"`
	PlaylistSize   int    `yaml:"playlist_size"`
}

type DiscoveryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	ServerReadyTimeout time.Duration `yaml:"server_ready_timeout"`
	PlaylistTimeout    time.Duration `yaml:"playlist_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in settings for a user whose home directory is
// home.
func Default(home string) *Config {
	return &Config{
		WorkDir: filepath.Join(home, "dlna-cast"),
		Encoding: EncodingConfig{
			Framerate:      30,
			SegmentSeconds: 2,
			PlaylistSize:   5,
		},
		Discovery: DiscoveryConfig{
			Timeout: 5 * time.Second,
		},
		Session: SessionConfig{
			ServerReadyTimeout: 10 * time.Second,
			PlaylistTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func DefaultPath(home string) string {
	return filepath.Join(home, ".config", "screencast", "config.yaml")
}

// Load reads the YAML file at path on top of the defaults. A missing file
// is only an error when required is set.
func Load(path, home string, required bool) (*Config, error) {
	cfg := Default(home)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, invalidConfigError(path, fmt.Errorf("parse yaml: %w", err))
	}
	cfg.WorkDir = expandHome(cfg.WorkDir, home)
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. Variables
// that are already set win. A missing file is ignored.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables. Each setting reads its own
// variable.
func (c *Config) ApplyEnv(lookup func(string) (string, bool), home string) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}

	str(EnvFFmpegBin, &c.FFmpeg.Bin)
	str(EnvFFmpegHome, &c.FFmpeg.Home)
	str(EnvWorkDirLegacy, &c.WorkDir)
	str(EnvWorkDir, &c.WorkDir)
	str(EnvDevice, &c.Device)
	str(EnvVideoSource, &c.Capture.VideoSource)
	str(EnvVideoFormat, &c.Capture.VideoFormat)
	// A set but empty audio source turns audio off, like --audio-source "".
	if v, ok := lookup(EnvAudioSource); ok {
		c.Capture.AudioSource = strings.TrimSpace(v)
		c.Capture.DisableAudio = c.Capture.AudioSource == ""
	}
	str(EnvAudioFormat, &c.Capture.AudioFormat)
	str(EnvEncoderOptions, &c.Encoding.Options)
	num(EnvFramerate, &c.Encoding.Framerate)
	num(EnvSegmentSeconds, &c.Encoding.SegmentSeconds)
	num(EnvPlaylistSize, &c.Encoding.PlaylistSize)
	dur(EnvDiscoveryTimeout, &c.Discovery.Timeout)
	dur(EnvServerReadyTimeout, &c.Session.ServerReadyTimeout)
	dur(EnvPlaylistTimeout, &c.Session.PlaylistTimeout)
	str(EnvLogLevel, &c.Logging.Level)
	str(EnvLogFormat, &c.Logging.Format)

	c.WorkDir = expandHome(c.WorkDir, home)
	if len(errs) > 0 {
		return invalidConfigError("environment", errors.Join(errs...))
	}
	return nil
}

// ParseDuration accepts Go durations ("1500ms", "5s") and bare seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(raw)
}

// Validate checks the values a screen session depends on.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.WorkDir) == "" {
		problems = append(problems, "work_dir must not be empty")
	}
	if c.Encoding.Framerate <= 0 {
		problems = append(problems, "framerate must be positive")
	}
	if c.Encoding.SegmentSeconds <= 0 {
		problems = append(problems, "segment_seconds must be positive")
	}
	if c.Encoding.PlaylistSize <= 0 {
		problems = append(problems, "playlist_size must be positive")
	}
	if c.Discovery.Timeout <= 0 {
		problems = append(problems, "discovery timeout must be positive")
	}
	if c.Session.ServerReadyTimeout <= 0 {
		problems = append(problems, "server_ready_timeout must be positive")
	}
	if c.Session.PlaylistTimeout <= 0 {
		problems = append(problems, "playlist_timeout must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return &domain.Error{
		Code:    domain.CodeInvalidConfig,
		Message: strings.Join(problems, "; "),
	}
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		return filepath.Join(home, path[2:])
	}
	return path
}

func invalidConfigError(source string, err error) *domain.Error {
	return &domain.Error{
		Code:    domain.CodeInvalidConfig,
		Message: "invalid configuration in " + source,
		Details: map[string]any{
			"source": source,
		},
		Err: err,
	}
}
