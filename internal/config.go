package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

type Config struct {
	StateDir          string   `mapstructure:"state_dir" toml:"state_dir"`
	ScratchDir        string   `mapstructure:"scratch_dir" toml:"scratch_dir"`
	ImageExt          []string `mapstructure:"image_extensions" toml:"image_extensions"`
	VideoExt          []string `mapstructure:"video_extensions" toml:"video_extensions"`
	FFmpegBinary      string   `mapstructure:"ffmpeg_binary" toml:"ffmpeg_binary"`
	FFprobeBinary     string   `mapstructure:"ffprobe_binary" toml:"ffprobe_binary"`
	ExiftoolBinary    string   `mapstructure:"exiftool_binary" toml:"exiftool_binary"`
	JPEGQuality       int      `mapstructure:"jpeg_quality" toml:"jpeg_quality"`
	ConvertVoiceMemos bool     `mapstructure:"convert_voice_memos" toml:"convert_voice_memos"`
	BrowseLinks       bool     `mapstructure:"browse_links" toml:"browse_links"`
	LogLevel          string   `mapstructure:"log_level" toml:"log_level"`
}

// ConfigDir is where snapsift.toml is looked up.
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to find user config dir: %w", err)
	}
	return filepath.Join(configDir, "snapsift"), nil
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Config{
		StateDir:       filepath.Join(home, ".local", "state", "snapsift"),
		ScratchDir:     filepath.Join(os.TempDir(), "snapsift"),
		ImageExt:       []string{".webp", ".png", ".jpeg", ".jpg"},
		VideoExt:       []string{".mp4"},
		FFmpegBinary:   "ffmpeg",
		FFprobeBinary:  "ffprobe",
		ExiftoolBinary: "exiftool",
		JPEGQuality:    95,
		LogLevel:       "info",
	}
}

// LoadConfigFile reads the given file, or the default location when path is
// empty. A missing file is not an error. SNAPSIFT_* environment variables
// override file values.
func LoadConfigFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("snapsift")
		v.AddConfigPath(dir)
	}

	// Set defaults:
	def := DefaultConfig()
	v.SetDefault("state_dir", def.StateDir)
	v.SetDefault("scratch_dir", def.ScratchDir)
	v.SetDefault("image_extensions", def.ImageExt)
	v.SetDefault("video_extensions", def.VideoExt)
	v.SetDefault("ffmpeg_binary", def.FFmpegBinary)
	v.SetDefault("ffprobe_binary", def.FFprobeBinary)
	v.SetDefault("exiftool_binary", def.ExiftoolBinary)
	v.SetDefault("jpeg_quality", def.JPEGQuality)
	v.SetDefault("convert_voice_memos", def.ConvertVoiceMemos)
	v.SetDefault("browse_links", def.BrowseLinks)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("SNAPSIFT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; that's OK, just use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.ImageExt = normalizeExts(c.ImageExt)
	c.VideoExt = normalizeExts(c.VideoExt)
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 95
	}
}

func normalizeExts(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// WriteSampleConfig writes cfg as TOML. An existing file is only replaced
// when overwrite is set.
func WriteSampleConfig(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	header := []byte("# snapsift configuration\n\n")
	return os.WriteFile(path, append(header, data...), 0644)
}
