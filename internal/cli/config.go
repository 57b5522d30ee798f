package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/hujson"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config")
	ErrRootURLMissing     = errors.New("wiki root url is not configured")
	ErrSpaceKeyMissing    = errors.New("space key is not configured")
)

// Config holds the resolved CLI configuration.
type Config struct {
	// From config files (serialized)
	RootURL  string `json:"root_url"`
	UserID   string `json:"user_id,omitempty"`
	APIToken string `json:"api_token,omitempty"`
	SpaceKey string `json:"space_key,omitempty"`

	// Ceiling for concurrent wiki requests. 1 forces strictly
	// sequential execution.
	RequestLimit int `json:"request_limit,omitempty"`

	// Sources tracks which config files were loaded (for diagnostics)
	Sources ConfigSources `json:"-"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string
	Project string
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RequestLimit: 10,
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".wikisync.json"

// Environment variable names recognized on top of config files.
const (
	EnvRootURL  = "WIKISYNC_ROOT_URL"
	EnvUserID   = "WIKISYNC_USER_ID"
	EnvAPIToken = "WIKISYNC_API_TOKEN"
	EnvSpaceKey = "WIKISYNC_SPACE_KEY"
	EnvLimit    = "WIKISYNC_REQUEST_LIMIT"
)

// globalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/wikisync/config.json if set, otherwise
// ~/.config/wikisync/config.json. Empty if neither can be determined.
func globalConfigPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "wikisync", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "wikisync", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config ($XDG_CONFIG_HOME/wikisync/config.json)
// 3. Project config file in the working directory (.wikisync.json, if exists)
// 4. Explicit config file via configPath (if non-empty)
// 5. Environment variables.
func LoadConfig(workDir, configPath string, env map[string]string) (Config, error) {
	cfg := DefaultConfig()

	globalCfg, globalPath, err := loadConfigFile(globalConfigPath(env), false)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	cfg = applyEnv(cfg, env)

	if cfg.RequestLimit < 1 {
		return Config{}, fmt.Errorf("%w: request_limit must be at least 1", ErrConfigInvalid)
	}

	return cfg, nil
}

// Validate checks the fields every wiki-touching command needs. The
// token is checked separately because it can still be prompted for.
func (c Config) Validate() error {
	if c.RootURL == "" {
		return ErrRootURLMissing
	}

	if c.SpaceKey == "" {
		return ErrSpaceKeyMissing
	}

	return nil
}

// FormatConfig renders the resolved config as JSON with the token
// redacted.
func FormatConfig(cfg Config) (string, error) {
	redacted := cfg
	if redacted.APIToken != "" {
		redacted.APIToken = "<redacted>"
	}

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// loadProjectConfig loads the project config file (.wikisync.json) or
// an explicit config file.
func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		return loadConfigFile(filepath.Join(workDir, ConfigFileName), false)
	}

	cfgFile := configPath
	if !filepath.IsAbs(cfgFile) {
		cfgFile = filepath.Join(workDir, cfgFile)
	}

	if _, err := os.Stat(cfgFile); err != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	return loadConfigFile(cfgFile, true)
}

// loadConfigFile loads a config file. If mustExist is false, missing
// files return zero config. Returns the config, the path if loaded, and
// any error.
func loadConfigFile(path string, mustExist bool) (Config, string, error) {
	if path == "" {
		return Config{}, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, "", nil
		}

		return Config{}, "", fmt.Errorf("cannot read config %s: %w", path, err)
	}

	cfg, parseErr := parseConfig(data)
	if parseErr != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, path, nil
}

func parseConfig(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.RootURL != "" {
		base.RootURL = overlay.RootURL
	}

	if overlay.UserID != "" {
		base.UserID = overlay.UserID
	}

	if overlay.APIToken != "" {
		base.APIToken = overlay.APIToken
	}

	if overlay.SpaceKey != "" {
		base.SpaceKey = overlay.SpaceKey
	}

	if overlay.RequestLimit != 0 {
		base.RequestLimit = overlay.RequestLimit
	}

	return base
}

func applyEnv(cfg Config, env map[string]string) Config {
	if v := env[EnvRootURL]; v != "" {
		cfg.RootURL = v
	}

	if v := env[EnvUserID]; v != "" {
		cfg.UserID = v
	}

	if v := env[EnvAPIToken]; v != "" {
		cfg.APIToken = v
	}

	if v := env[EnvSpaceKey]; v != "" {
		cfg.SpaceKey = v
	}

	if v := env[EnvLimit]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RequestLimit = n
		}
	}

	return cfg
}
