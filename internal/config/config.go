// Package config loads proton settings: built-in defaults, then an optional
// YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"proton/internal/ipc"
)

type Config struct {
	Assistant Assistant         `yaml:"assistant"`
	Listen    Listen            `yaml:"listen"`
	Whisper   Whisper           `yaml:"whisper"`
	Speech    Speech            `yaml:"speech"`
	Chat      Chat              `yaml:"chat"`
	Bus       Bus               `yaml:"bus"`
	Control   Control           `yaml:"control"`
	Gesture   Gesture           `yaml:"gesture"`
	Apps      map[string]string `yaml:"apps"`
	Log       Log               `yaml:"log"`
}

type Assistant struct {
	Name           string        `yaml:"name"`
	StartPath      string        `yaml:"start_path"`
	GreetOnStart   bool          `yaml:"greet_on_start"`
	ListenOnStart  bool          `yaml:"listen_on_start"`
	RestartBackoff time.Duration `yaml:"restart_backoff"`
	MaxRestarts    int           `yaml:"max_restarts"`
}

type Listen struct {
	Timeout     time.Duration `yaml:"timeout"`
	PhraseLimit time.Duration `yaml:"phrase_limit"`
	Mailbox     int           `yaml:"mailbox"`
	Threshold   float64       `yaml:"threshold"`
	Silence     time.Duration `yaml:"silence"`
	Calibration time.Duration `yaml:"calibration"`
	// Replay, when set, feeds audio files from this directory instead of
	// the microphone.
	Replay string `yaml:"replay"`
	Cue    string `yaml:"cue"`
}

type Whisper struct {
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
	Threads  int    `yaml:"threads"`
}

type Speech struct {
	Enabled    bool    `yaml:"enabled"`
	Voice      string  `yaml:"voice"`
	Rate       int     `yaml:"rate"`
	Duck       bool    `yaml:"duck"`
	DuckFactor float64 `yaml:"duck_factor"`
}

type Chat struct {
	Enabled bool          `yaml:"enabled"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Proxy   string        `yaml:"proxy"`
	Timeout time.Duration `yaml:"timeout"`
	APIKey  string        `yaml:"-"`
}

type Bus struct {
	URL string `yaml:"url"`
}

type Control struct {
	Socket string `yaml:"socket"`
}

type Gesture struct {
	Command []string `yaml:"command"`
}

type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		Assistant: Assistant{
			Name:         "Proton",
			GreetOnStart: true,
		},
		Listen: Listen{
			Timeout:     5 * time.Second,
			PhraseLimit: 10 * time.Second,
			Mailbox:     32,
			Threshold:   0.015,
			Silence:     600 * time.Millisecond,
			Calibration: time.Second,
		},
		Whisper: Whisper{
			Model:    "models/ggml-base.en.bin",
			Language: "en",
		},
		Speech: Speech{
			Enabled:    true,
			Voice:      "en",
			Rate:       175,
			DuckFactor: 0.3,
		},
		Chat: Chat{
			Timeout: 30 * time.Second,
		},
		Control: Control{Socket: ipc.DefaultSocketPath},
		Log:     Log{Level: "info"},
	}
}

// Load returns the defaults overlaid with the file at path, if any, and
// the environment. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"OPENAI_API_KEY":    &c.Chat.APIKey,
		"WHISPER_MODEL":     &c.Whisper.Model,
		"PROTON_BUS_URL":    &c.Bus.URL,
		"PROTON_SOCKET":     &c.Control.Socket,
		"PROTON_START_PATH": &c.Assistant.StartPath,
		"PROTON_LOG_LEVEL":  &c.Log.Level,
		"SOCKS_PROXY":       &c.Chat.Proxy,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("PROTON_MAX_RESTARTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROTON_MAX_RESTARTS: %w", err)
		}
		c.Assistant.MaxRestarts = n
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen.Timeout <= 0 {
		errs = append(errs, errors.New("listen.timeout must be positive"))
	}
	if c.Listen.PhraseLimit <= 0 {
		errs = append(errs, errors.New("listen.phrase_limit must be positive"))
	}
	if c.Listen.Mailbox < 1 {
		errs = append(errs, errors.New("listen.mailbox must be at least 1"))
	}
	if c.Listen.Threshold < 0 || c.Listen.Threshold > 1 {
		errs = append(errs, errors.New("listen.threshold must be within 0..1"))
	}
	if c.Assistant.MaxRestarts < 0 {
		errs = append(errs, errors.New("assistant.max_restarts must not be negative"))
	}
	if c.Assistant.RestartBackoff < 0 {
		errs = append(errs, errors.New("assistant.restart_backoff must not be negative"))
	}
	if c.Speech.DuckFactor < 0 || c.Speech.DuckFactor > 1 {
		errs = append(errs, errors.New("speech.duck_factor must be within 0..1"))
	}
	if c.Chat.Enabled && c.Chat.APIKey == "" {
		errs = append(errs, errors.New("chat.enabled requires OPENAI_API_KEY"))
	}
	if _, ok := levels[c.Log.Level]; !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
