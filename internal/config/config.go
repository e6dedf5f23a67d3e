package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/petems/hub/internal/tmux"
)

// Settle modes.
const (
	SettleFixed  = "fixed"
	SettleStable = "stable"
)

// Environment overrides applied after the config files.
const (
	EnvTmuxBackend  = "HUB_COMPLETION_TMUX_BACKEND"
	EnvOTelEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

const (
	dirName = ".hub-completion"

	defaultTmuxPath              = "tmux"
	defaultWrapper               = "hub"
	defaultWrapped               = "git"
	defaultPrompt                = "$ "
	defaultHubZshCompletion      = "etc/hub.zsh_completion"
	defaultHubBashCompletion     = "etc/hub.bash_completion.sh"
	defaultPromptPollInterval    = 10 * time.Millisecond
	defaultPromptMaxAttempts     = 100
	defaultSettleDelay           = 400 * time.Millisecond
	defaultSettleStableSnapshots = 3
	defaultLogLevel              = "info"
)

// Config stores harness settings loaded from TOML files.
type Config struct {
	TmpDir      string
	Isolate     bool
	TmuxBackend string
	TmuxPath    string

	Wrapper string
	Wrapped string
	Prompt  string

	HubZshCompletion  string
	HubBashCompletion string
	// Empty git completion paths are derived from `git --exec-path`.
	GitZshCompletion  string
	GitBashCompletion string

	PromptPollInterval    time.Duration
	PromptMaxAttempts     int
	SettleMode            string
	SettleDelay           time.Duration
	SettleStableSnapshots int

	LogLevel     string
	LogDir       string
	OTelEndpoint string
}

type fileConfig struct {
	TmpDir      *string `toml:"tmp_dir"`
	Isolate     *bool   `toml:"isolate"`
	TmuxBackend *string `toml:"tmux_backend"`
	TmuxPath    *string `toml:"tmux_path"`

	Wrapper *string `toml:"wrapper"`
	Wrapped *string `toml:"wrapped"`
	Prompt  *string `toml:"prompt"`

	HubZshCompletion  *string `toml:"hub_zsh_completion"`
	HubBashCompletion *string `toml:"hub_bash_completion"`
	GitZshCompletion  *string `toml:"git_zsh_completion"`
	GitBashCompletion *string `toml:"git_bash_completion"`

	PromptPollInterval    *string `toml:"prompt_poll_interval"`
	PromptMaxAttempts     *int    `toml:"prompt_max_attempts"`
	SettleMode            *string `toml:"settle_mode"`
	SettleDelay           *string `toml:"settle_delay"`
	SettleStableSnapshots *int    `toml:"settle_stable_snapshots"`

	LogLevel     *string `toml:"log_level"`
	LogDir       *string `toml:"log_dir"`
	OTelEndpoint *string `toml:"otel_endpoint"`
}

// Load reads ~/.hub-completion/config.toml, overlays a project-local
// .hub-completion/config.toml and then the environment.
func Load(ctx context.Context) (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	return LoadFrom(ctx,
		filepath.Join(homeDir, dirName, "config.toml"),
		filepath.Join(workingDir, dirName, "config.toml"),
	)
}

// LoadFrom overlays each existing path in order on the defaults, then
// applies environment overrides. Missing files are skipped.
func LoadFrom(ctx context.Context, paths ...string) (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}

	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	_ = ctx
	return &cfg, nil
}

func defaults() (Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	return Config{
		TmpDir:                os.TempDir(),
		TmuxBackend:           tmux.BackendExec,
		TmuxPath:              defaultTmuxPath,
		Wrapper:               defaultWrapper,
		Wrapped:               defaultWrapped,
		Prompt:                defaultPrompt,
		HubZshCompletion:      defaultHubZshCompletion,
		HubBashCompletion:     defaultHubBashCompletion,
		PromptPollInterval:    defaultPromptPollInterval,
		PromptMaxAttempts:     defaultPromptMaxAttempts,
		SettleMode:            SettleFixed,
		SettleDelay:           defaultSettleDelay,
		SettleStableSnapshots: defaultSettleStableSnapshots,
		LogLevel:              defaultLogLevel,
		LogDir:                filepath.Join(homeDir, dirName, "logs"),
	}, nil
}

// Default returns the built-in settings without reading any file.
func Default() (*Config, error) {
	cfg, err := defaults()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	meta, err := toml.DecodeFile(path, &decoded)
	if err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse %s in %q: unsupported key", undecoded[0].String(), path)
	}

	applyStringOverrides(cfg, decoded)
	if err := applyDurationOverrides(cfg, decoded, path); err != nil {
		return err
	}
	if decoded.Isolate != nil {
		cfg.Isolate = *decoded.Isolate
	}
	if decoded.PromptMaxAttempts != nil {
		cfg.PromptMaxAttempts = *decoded.PromptMaxAttempts
	}
	if decoded.SettleStableSnapshots != nil {
		cfg.SettleStableSnapshots = *decoded.SettleStableSnapshots
	}
	return nil
}

func applyStringOverrides(cfg *Config, decoded fileConfig) {
	trimmed := []struct {
		src *string
		dst *string
	}{
		{decoded.TmpDir, &cfg.TmpDir},
		{decoded.TmuxPath, &cfg.TmuxPath},
		{decoded.Wrapper, &cfg.Wrapper},
		{decoded.Wrapped, &cfg.Wrapped},
		{decoded.HubZshCompletion, &cfg.HubZshCompletion},
		{decoded.HubBashCompletion, &cfg.HubBashCompletion},
		{decoded.GitZshCompletion, &cfg.GitZshCompletion},
		{decoded.GitBashCompletion, &cfg.GitBashCompletion},
		{decoded.LogDir, &cfg.LogDir},
		{decoded.OTelEndpoint, &cfg.OTelEndpoint},
	}
	for _, field := range trimmed {
		if field.src != nil {
			*field.dst = strings.TrimSpace(*field.src)
		}
	}

	if decoded.TmuxBackend != nil {
		cfg.TmuxBackend = normalizeKey(*decoded.TmuxBackend)
	}
	if decoded.SettleMode != nil {
		cfg.SettleMode = normalizeKey(*decoded.SettleMode)
	}
	if decoded.LogLevel != nil {
		cfg.LogLevel = normalizeKey(*decoded.LogLevel)
	}
	// The prompt keeps its trailing space.
	if decoded.Prompt != nil {
		cfg.Prompt = *decoded.Prompt
	}
}

func applyDurationOverrides(cfg *Config, decoded fileConfig, path string) error {
	if decoded.PromptPollInterval != nil {
		value, err := parseDuration(*decoded.PromptPollInterval, "prompt_poll_interval", path)
		if err != nil {
			return err
		}
		cfg.PromptPollInterval = value
	}
	if decoded.SettleDelay != nil {
		value, err := parseDuration(*decoded.SettleDelay, "settle_delay", path)
		if err != nil {
			return err
		}
		cfg.SettleDelay = value
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv(EnvTmuxBackend)); value != "" {
		cfg.TmuxBackend = normalizeKey(value)
	}
	if value := strings.TrimSpace(os.Getenv(EnvOTelEndpoint)); value != "" {
		cfg.OTelEndpoint = value
	}
}

// Validate rejects settings the harness cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config must not be nil")
	}

	switch c.TmuxBackend {
	case tmux.BackendExec, tmux.BackendGotmux:
	default:
		return fmt.Errorf("tmux_backend %q: must be %q or %q", c.TmuxBackend, tmux.BackendExec, tmux.BackendGotmux)
	}
	switch c.SettleMode {
	case SettleFixed, SettleStable:
	default:
		return fmt.Errorf("settle_mode %q: must be %q or %q", c.SettleMode, SettleFixed, SettleStable)
	}

	if strings.TrimSpace(c.TmpDir) == "" {
		return errors.New("tmp_dir must not be empty")
	}
	if strings.TrimSpace(c.Prompt) == "" {
		return errors.New("prompt must contain a non-space terminator")
	}
	if strings.TrimSpace(c.Wrapper) == "" || strings.TrimSpace(c.Wrapped) == "" {
		return errors.New("wrapper and wrapped must not be empty")
	}
	if c.PromptPollInterval <= 0 {
		return errors.New("prompt_poll_interval must be > 0")
	}
	if c.PromptMaxAttempts <= 0 {
		return errors.New("prompt_max_attempts must be > 0")
	}
	if c.SettleDelay < 0 {
		return errors.New("settle_delay must be >= 0")
	}
	if c.SettleStableSnapshots < 2 {
		return errors.New("settle_stable_snapshots must be >= 2")
	}
	return nil
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}

func normalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
