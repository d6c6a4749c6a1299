package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Audio    AudioConfig    `mapstructure:"audio" yaml:"audio"`
	Waveform WaveformConfig `mapstructure:"waveform" yaml:"waveform"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`

	// Profile is the name of the applied profile, empty for the base config
	Profile string `mapstructure:"-" yaml:"-"`
	// Overrides lists the keys the profile changed, for the info command
	Overrides []string `mapstructure:"-" yaml:"-"`
}

type RecorderConfig struct {
	MaxDuration  time.Duration `mapstructure:"max_duration" yaml:"max_duration" validate:"min=1s"`
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval" validate:"gt=0"`
	FFTSize      int           `mapstructure:"fft_size" yaml:"fft_size" validate:"min=32,max=32768"`
}

type AudioConfig struct {
	Backend        string        `mapstructure:"backend" yaml:"backend" validate:"oneof=auto pulseaudio pipewire alsa jack coreaudio wasapi null"`
	SampleRate     int           `mapstructure:"sample_rate" yaml:"sample_rate" validate:"oneof=8000 16000 22050 24000 32000 44100 48000"`
	Channels       int           `mapstructure:"channels" yaml:"channels" validate:"min=1,max=2"`
	CaptureDevice  string        `mapstructure:"capture_device" yaml:"capture_device"` // substring of the device name
	UpdateInterval time.Duration `mapstructure:"update_interval" yaml:"update_interval" validate:"gt=0"`
}

type WaveformConfig struct {
	Width         int           `mapstructure:"width" yaml:"width" validate:"min=16"`
	Height        int           `mapstructure:"height" yaml:"height" validate:"min=8"`
	FrameInterval time.Duration `mapstructure:"frame_interval" yaml:"frame_interval" validate:"gt=0"`
	LineWidth     float64       `mapstructure:"line_width" yaml:"line_width" validate:"gt=0"`
	StrokeColor   Color         `mapstructure:"stroke_color" yaml:"stroke_color"`
	FadeColor     Color         `mapstructure:"fade_color" yaml:"fade_color"`
}

type StorageConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend" validate:"oneof=file redis"`
	Key     string      `mapstructure:"key" yaml:"key" validate:"required"`
	File    string      `mapstructure:"file" yaml:"file"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	DB       int           `mapstructure:"db" yaml:"db" validate:"min=0"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gte=0"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required"`
}

type LoggingConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" validate:"min=0"`
}

// Color is an RGBA color written as "#rrggbb" or "#rrggbbaa" in YAML
type Color struct {
	color.NRGBA
}

func (c Color) String() string {
	if c.A == 0xff {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func (c Color) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// ParseColor parses "#rrggbb" or "#rrggbbaa"
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	var c Color
	switch len(s) {
	case 6:
		c.A = 0xff
		if _, err := fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
			return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
	case 8:
		if _, err := fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
			return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
	default:
		return Color{}, fmt.Errorf("invalid color %q: expected #rrggbb or #rrggbbaa", s)
	}
	return c, nil
}

// DefaultConfigPath is used when --config is not given
func DefaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/cliprec.yaml")
}

// setDefaults registers a default for every key, so a missing file or a
// partial file still yields a complete config
func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("recorder.max_duration", "30s")
	v.SetDefault("recorder.tick_interval", "200ms")
	v.SetDefault("recorder.fft_size", 256)

	v.SetDefault("audio.backend", "auto")
	v.SetDefault("audio.sample_rate", 48000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.capture_device", "")
	v.SetDefault("audio.update_interval", "250ms")

	v.SetDefault("waveform.width", 600)
	v.SetDefault("waveform.height", 80)
	v.SetDefault("waveform.frame_interval", "16ms")
	v.SetDefault("waveform.line_width", 2.0)
	v.SetDefault("waveform.stroke_color", "#f26b8c")
	v.SetDefault("waveform.fade_color", "#ffffff26")

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.key", "recordedAudio")
	v.SetDefault("storage.file", filepath.Join(home, ".local", "share", "cliprec", "store.yaml"))
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "3s")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
}

// Default returns the configuration used when no file exists
func Default() *Config {
	cfg, err := LoadWithProfile("", "")
	if err != nil {
		// Defaults are static; failing here is a programming error
		panic(fmt.Sprintf("invalid default config: %v", err))
	}
	return cfg
}

// LoadWithProfile reads configFile (defaults only when empty) and applies
// the profile under configs.<name>. An empty profile falls back to the
// file's active_config.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CLIPREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	profileName := profile
	if profileName == "" {
		profileName = v.GetString("active_config")
	}

	var overrides []string
	if profileName != "" {
		sub := v.Sub("configs." + profileName)
		if sub == nil {
			return nil, fmt.Errorf("configuration profile '%s' not found", profileName)
		}
		settings := sub.AllSettings()
		overrides = flattenKeys("", settings)
		if err := v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("error applying profile '%s': %w", profileName, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		stringToColorHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Profile = profileName
	cfg.Overrides = overrides
	cfg.Storage.File = expandPath(cfg.Storage.File)
	cfg.Logging.File = expandPath(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// UpdateActiveConfig updates the active_config field in the config file
func UpdateActiveConfig(configFile, newActiveConfig string) error {
	if configFile == "" {
		return fmt.Errorf("no config file specified")
	}

	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveConfig != "" && v.Sub("configs."+newActiveConfig) == nil {
		return fmt.Errorf("configuration profile '%s' not found", newActiveConfig)
	}
	v.Set("active_config", newActiveConfig)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the constraints between fields
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value: %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Recorder.FFTSize&(c.Recorder.FFTSize-1) != 0 {
		return fmt.Errorf("recorder.fft_size must be a power of two, got %d", c.Recorder.FFTSize)
	}
	if c.Recorder.MaxDuration%time.Second != 0 {
		return fmt.Errorf("recorder.max_duration must be a whole number of seconds, got %s", c.Recorder.MaxDuration)
	}
	if c.Recorder.TickInterval >= c.Recorder.MaxDuration {
		return fmt.Errorf("recorder.tick_interval (%s) must be shorter than recorder.max_duration (%s)",
			c.Recorder.TickInterval, c.Recorder.MaxDuration)
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.File == "" {
			return fmt.Errorf("storage.file is required for the file backend")
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
	}

	return nil
}

func stringToColorHook(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t != reflect.TypeOf(Color{}) {
		return data, nil
	}
	return ParseColor(data.(string))
}

func flattenKeys(prefix string, m map[string]interface{}) []string {
	var keys []string
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]interface{}); ok {
			keys = append(keys, flattenKeys(key, nested)...)
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// expandPath expands a leading ~/ to the home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
