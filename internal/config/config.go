package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	DeviceID   string `toml:"device_id"`
	FacingMode string `toml:"facing_mode"`
	Width      int    `toml:"width"`
	Height     int    `toml:"height"`
	FrameRate  int    `toml:"frame_rate"`
	Mirror     bool   `toml:"mirror"`
	Codec      string `toml:"codec"`
	OutputDir  string `toml:"output_dir"`

	WebsocketURL string `toml:"websocket_url"`
	StunURL      string `toml:"stun_url"`
	MetricsAddr  string `toml:"metrics_addr"`
}

func defaultConfig() *Config {
	return &Config{
		Width:     640,
		Height:    480,
		FrameRate: 30,
		Codec:     "h264",
		OutputDir: ".",
		StunURL:   "stun:stun.l.google.com:19302",
	}
}

// Load builds the configuration from defaults, the TOML file, a .env file in
// the working directory and CAMKIT_* variables, later sources winning.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return LoadFile(configFilePath())
}

// LoadFile is Load without the .env step. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"CAMKIT_DEVICE_ID":    &cfg.DeviceID,
		"CAMKIT_FACING_MODE":  &cfg.FacingMode,
		"CAMKIT_CODEC":        &cfg.Codec,
		"CAMKIT_OUTPUT_DIR":   &cfg.OutputDir,
		"WEBSOCKET_URL":       &cfg.WebsocketURL,
		"CAMKIT_STUN_URL":     &cfg.StunURL,
		"CAMKIT_METRICS_ADDR": &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"CAMKIT_WIDTH":      &cfg.Width,
		"CAMKIT_HEIGHT":     &cfg.Height,
		"CAMKIT_FRAME_RATE": &cfg.FrameRate,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}

	if v := os.Getenv("CAMKIT_MIRROR"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CAMKIT_MIRROR: %w", err)
		}
		cfg.Mirror = b
	}
	return nil
}

func configFilePath() string {
	var configDir string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		configDir = filepath.Join(xdg, "camkit")
	} else if home, err := os.UserHomeDir(); err == nil {
		configDir = filepath.Join(home, ".config", "camkit")
	} else {
		return ""
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
