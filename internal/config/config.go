package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	EnvPrefix       = "SCREENREC"
	DefaultPort     = 3030
	defaultFileName = "config.yaml"
)

var captureModes = []string{"subprocess", "native"}

// Config stores runtime configuration for the recorder service and CLI.
type Config struct {
	Server               ServerConfig  `mapstructure:"server" yaml:"server"`
	RecordingsFolder     string        `mapstructure:"recordings_folder" yaml:"recordings_folder"`
	BasenameTemplate     string        `mapstructure:"basename_template" yaml:"basename_template"`
	Capture              CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Audio                AudioConfig   `mapstructure:"audio" yaml:"audio"`
	FFmpeg               FFmpegConfig  `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	KeepAliveTimeoutSecs int           `mapstructure:"keep_alive_timeout_secs" yaml:"keep_alive_timeout_secs"`
	Log                  LogConfig     `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host      string `mapstructure:"host" yaml:"host"`
	Port      int    `mapstructure:"port" yaml:"port"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
}

type CaptureConfig struct {
	Mode        string `mapstructure:"mode" yaml:"mode"`
	Bitrate     int    `mapstructure:"bitrate" yaml:"bitrate"`
	FPS         int    `mapstructure:"fps" yaml:"fps"`
	Display     string `mapstructure:"display" yaml:"display"`
	InputFormat string `mapstructure:"input_format" yaml:"input_format"`
}

type AudioConfig struct {
	InputFormat string `mapstructure:"input_format" yaml:"input_format"`
	InputDevice string `mapstructure:"input_device" yaml:"input_device"`
	SampleRate  int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels    int    `mapstructure:"channels" yaml:"channels"`
}

type FFmpegConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// KeepAliveTimeout returns the watchdog timeout as a duration.
func (c Config) KeepAliveTimeout() time.Duration {
	return time.Duration(c.KeepAliveTimeoutSecs) * time.Second
}

// Addr returns the host:port the API listens on.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"host":               "server.host",
	"port":               "server.port",
	"token":              "server.auth_token",
	"recordings-folder":  "recordings_folder",
	"capture-mode":       "capture.mode",
	"display":            "capture.display",
	"keep-alive-timeout": "keep_alive_timeout_secs",
	"log-level":          "log.level",
}

// Load resolves configuration from defaults, an optional YAML file,
// SCREENREC_* environment variables and flags, in increasing priority.
// An explicit path must exist; the default path is optional.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := readFile(v, path); err != nil {
		return Config{}, err
	}
	v.RegisterAlias("keep_alive_timeout_in_secs", "keep_alive_timeout_secs")

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Capture.Mode = resolveMode(v)

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(os.ExpandEnv(path))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return nil
	}

	defaultPath, err := DefaultConfigFilePath()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(defaultPath); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(defaultPath)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", defaultPath, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.auth_token", "")
	v.SetDefault("recordings_folder", filepath.Join(home, "Videos", "screenrec"))
	v.SetDefault("basename_template", "{timestamp}")
	v.SetDefault("capture.bitrate", 5_000_000)
	v.SetDefault("capture.fps", 30)
	v.SetDefault("capture.display", firstNonEmpty(os.Getenv("DISPLAY"), ":0"))
	v.SetDefault("capture.input_format", "x11grab")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 2)
	v.SetDefault("ffmpeg.command", "ffmpeg")
	v.SetDefault("keep_alive_timeout_secs", 10)
	v.SetDefault("log.level", "info")
}

// resolveMode honors the legacy capture.ffmpeg switch when no mode is given.
func resolveMode(v *viper.Viper) string {
	mode := strings.ToLower(strings.TrimSpace(v.GetString("capture.mode")))
	if mode != "" {
		return mode
	}
	if v.IsSet("capture.ffmpeg") && !v.GetBool("capture.ffmpeg") {
		return "native"
	}
	return "subprocess"
}

func normalize(cfg *Config) error {
	if !lo.Contains(captureModes, cfg.Capture.Mode) {
		return fmt.Errorf("invalid capture.mode %q, expected one of %s", cfg.Capture.Mode, strings.Join(captureModes, ", "))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Capture.FPS <= 0 {
		cfg.Capture.FPS = 30
	}
	if cfg.Capture.Bitrate <= 0 {
		cfg.Capture.Bitrate = 5_000_000
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 48000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 2
	}
	if cfg.KeepAliveTimeoutSecs <= 0 {
		cfg.KeepAliveTimeoutSecs = 10
	}
	cfg.FFmpeg.Command = firstNonEmpty(cfg.FFmpeg.Command, "ffmpeg")
	cfg.BasenameTemplate = firstNonEmpty(cfg.BasenameTemplate, "{timestamp}")
	cfg.Log.Level = firstNonEmpty(strings.ToLower(cfg.Log.Level), "info")

	folder := strings.TrimSpace(cfg.RecordingsFolder)
	if folder == "" {
		return errors.New("recordings_folder must not be empty")
	}
	if strings.HasPrefix(folder, "~"+string(filepath.Separator)) {
		if home, err := os.UserHomeDir(); err == nil {
			folder = filepath.Join(home, folder[2:])
		}
	}
	cfg.RecordingsFolder = os.ExpandEnv(folder)
	return nil
}

// DefaultConfigFilePath returns $XDG_CONFIG_HOME/screenrec/config.yaml,
// falling back to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultConfigFilePath() (string, error) {
	base, set := os.LookupEnv("XDG_CONFIG_HOME")
	if !set || base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("could not determine home directory")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "screenrec", defaultFileName), nil
}

// Dump writes the effective configuration as YAML.
func Dump(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
