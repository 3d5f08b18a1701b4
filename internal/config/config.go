// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/levchat/internal/util"
)

// DirName is the configuration directory under the user's home.
const DirName = ".levchat"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete levchat configuration.
type Config struct {
	// Inference server connection
	Server ServerConfig `toml:"server" json:"server"`

	// Generation request parameters
	Generation GenerationConfig `toml:"generation" json:"generation"`

	// Chat history storage
	History HistoryConfig `toml:"history" json:"history"`

	// Model file library
	Models ModelsConfig `toml:"models" json:"models"`

	// Logging
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Terminal output
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains inference server settings.
type ServerConfig struct {
	// URL is the WebSocket endpoint of the inference process
	URL string `toml:"url" json:"url"`

	// HandshakeTimeoutSecs bounds connect plus WebSocket upgrade
	HandshakeTimeoutSecs int `toml:"handshake_timeout_secs" json:"handshake_timeout_secs"`

	// WriteTimeoutSecs bounds each outbound frame
	WriteTimeoutSecs int `toml:"write_timeout_secs" json:"write_timeout_secs"`

	// ReadLimitBytes is the largest inbound frame accepted
	ReadLimitBytes int64 `toml:"read_limit_bytes" json:"read_limit_bytes"`
}

// GenerationConfig contains the parameters sent with each prompt.
type GenerationConfig struct {
	Temperature float64 `toml:"temperature" json:"temperature"`
	MaxTokens   int     `toml:"max_tokens" json:"max_tokens"`

	// StrictFrames rejects text frames that are not JSON status objects
	// instead of treating them as text
	StrictFrames bool `toml:"strict_frames" json:"strict_frames"`

	// CompletionMarker is the status substring that ends a reply
	CompletionMarker string `toml:"completion_marker" json:"completion_marker"`
}

// HistoryConfig contains chat history settings.
type HistoryConfig struct {
	// DatabasePath of the SQLite file; empty means ~/.levchat/chats.db
	DatabasePath string `toml:"database_path" json:"database_path"`

	// PollIntervalSecs between chat list refreshes
	PollIntervalSecs int `toml:"poll_interval_secs" json:"poll_interval_secs"`

	// AppendRetries after a failed message write (0 disables retries)
	AppendRetries int `toml:"append_retries" json:"append_retries"`

	// RetryDelayMs is the base of the linear retry backoff
	RetryDelayMs int `toml:"retry_delay_ms" json:"retry_delay_ms"`

	// ChatNameWidth is the display width of names derived from prompts
	ChatNameWidth int `toml:"chat_name_width" json:"chat_name_width"`
}

// ModelsConfig contains model library settings.
type ModelsConfig struct {
	// Root of the library; empty means ~/Documents/LevChat
	Root string `toml:"root" json:"root"`

	// ProgressPerSec limits download progress updates
	ProgressPerSec float64 `toml:"progress_per_sec" json:"progress_per_sec"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`   // debug, info, warn, error
	Format string `toml:"format" json:"format"` // text, json
	File   string `toml:"file" json:"file"`     // empty means stderr
}

// UIConfig contains terminal output settings.
type UIConfig struct {
	// Markdown renders assistant replies with glamour after they complete
	Markdown bool `toml:"markdown" json:"markdown"`

	// WordWrap is the render width; 0 uses the terminal width
	WordWrap int `toml:"word_wrap" json:"word_wrap"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                  "ws://127.0.0.1:15555",
			HandshakeTimeoutSecs: 5,
			WriteTimeoutSecs:     5,
			ReadLimitBytes:       1 << 20,
		},
		Generation: GenerationConfig{
			Temperature:      0.7,
			MaxTokens:        1024,
			StrictFrames:     false,
			CompletionMarker: "completed",
		},
		History: HistoryConfig{
			PollIntervalSecs: 2,
			AppendRetries:    2,
			RetryDelayMs:     250,
			ChatNameWidth:    40,
		},
		Models: ModelsConfig{
			ProgressPerSec: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			Markdown: true,
			WordWrap: 80,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the levchat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, DirName), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
//
// When a file exists but cannot be parsed, the defaults are returned
// together with the load error.
func Load() (*Config, error) {
	var loadErr error

	if tomlPath, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			cfg := Default()
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finish(cfg)
			}
		}
	}

	// Try JSON as fallback
	if jsonPath, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			cfg := Default()
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = errors.Join(loadErr, fmt.Errorf("failed to load JSON config: %w", err))
			} else {
				return finish(cfg)
			}
		}
	}

	cfg, err := finish(Default())
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadTOML decodes a TOML file over cfg. Keys missing from the file keep
// the values already in cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation. The format is chosen by extension; anything but .json is
// read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

// finish applies environment overrides, fills defaults and validates.
func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that have no meaning of their own.
func (c *Config) SetDefaults() {
	defaults := Default()

	// Server
	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.HandshakeTimeoutSecs == 0 {
		c.Server.HandshakeTimeoutSecs = defaults.Server.HandshakeTimeoutSecs
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = defaults.Server.WriteTimeoutSecs
	}
	if c.Server.ReadLimitBytes == 0 {
		c.Server.ReadLimitBytes = defaults.Server.ReadLimitBytes
	}

	// Generation
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = defaults.Generation.Temperature
	}
	if c.Generation.MaxTokens == 0 {
		c.Generation.MaxTokens = defaults.Generation.MaxTokens
	}
	if c.Generation.CompletionMarker == "" {
		c.Generation.CompletionMarker = defaults.Generation.CompletionMarker
	}

	// History
	if c.History.PollIntervalSecs == 0 {
		c.History.PollIntervalSecs = defaults.History.PollIntervalSecs
	}
	if c.History.RetryDelayMs == 0 {
		c.History.RetryDelayMs = defaults.History.RetryDelayMs
	}
	if c.History.ChatNameWidth == 0 {
		c.History.ChatNameWidth = defaults.History.ChatNameWidth
	}

	// Models
	if c.Models.ProgressPerSec == 0 {
		c.Models.ProgressPerSec = defaults.Models.ProgressPerSec
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# levchat configuration file")
	fmt.Fprintln(&buf, "# Generated by levchat - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Server
	if u, err := url.Parse(c.Server.URL); err != nil {
		errs = append(errs, ValidationError{Field: "server.url", Message: fmt.Sprintf("invalid URL: %v", err)})
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, ValidationError{Field: "server.url", Message: "must use ws:// or wss://"})
	} else if u.Host == "" {
		errs = append(errs, ValidationError{Field: "server.url", Message: "missing host"})
	}
	if c.Server.HandshakeTimeoutSecs < 1 || c.Server.HandshakeTimeoutSecs > 300 {
		errs = append(errs, ValidationError{Field: "server.handshake_timeout_secs", Message: "must be between 1 and 300"})
	}
	if c.Server.WriteTimeoutSecs < 1 || c.Server.WriteTimeoutSecs > 300 {
		errs = append(errs, ValidationError{Field: "server.write_timeout_secs", Message: "must be between 1 and 300"})
	}
	if c.Server.ReadLimitBytes < 1024 {
		errs = append(errs, ValidationError{Field: "server.read_limit_bytes", Message: "must be at least 1024"})
	}

	// Generation
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		errs = append(errs, ValidationError{Field: "generation.temperature", Message: "must be between 0 and 2"})
	}
	if c.Generation.MaxTokens < 1 || c.Generation.MaxTokens > 1<<20 {
		errs = append(errs, ValidationError{Field: "generation.max_tokens", Message: "must be between 1 and 1048576"})
	}
	if strings.TrimSpace(c.Generation.CompletionMarker) == "" {
		errs = append(errs, ValidationError{Field: "generation.completion_marker", Message: "must not be empty"})
	}

	// History
	if c.History.PollIntervalSecs < 1 || c.History.PollIntervalSecs > 3600 {
		errs = append(errs, ValidationError{Field: "history.poll_interval_secs", Message: "must be between 1 and 3600"})
	}
	if c.History.AppendRetries < 0 || c.History.AppendRetries > 10 {
		errs = append(errs, ValidationError{Field: "history.append_retries", Message: "must be between 0 and 10"})
	}
	if c.History.RetryDelayMs < 0 || c.History.RetryDelayMs > 60000 {
		errs = append(errs, ValidationError{Field: "history.retry_delay_ms", Message: "must be between 0 and 60000"})
	}
	if c.History.ChatNameWidth < 8 || c.History.ChatNameWidth > 200 {
		errs = append(errs, ValidationError{Field: "history.chat_name_width", Message: "must be between 8 and 200"})
	}

	// Models
	if c.Models.ProgressPerSec <= 0 || c.Models.ProgressPerSec > 100 {
		errs = append(errs, ValidationError{Field: "models.progress_per_sec", Message: "must be greater than 0 and at most 100"})
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{Field: "logging.level", Message: "must be one of debug, info, warn, error"})
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{Field: "logging.format", Message: "must be text or json"})
	}

	// UI
	if c.UI.WordWrap < 0 || c.UI.WordWrap > 1000 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must be between 0 and 1000"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// HandshakeTimeout returns server.handshake_timeout_secs as a duration.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Server.HandshakeTimeoutSecs) * time.Second
}

// WriteTimeout returns server.write_timeout_secs as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSecs) * time.Second
}

// PollInterval returns history.poll_interval_secs as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.History.PollIntervalSecs) * time.Second
}

// RetryDelay returns history.retry_delay_ms as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.History.RetryDelayMs) * time.Millisecond
}

// DatabasePath returns the configured database path, expanding a leading
// "~/", or ~/.levchat/chats.db when none is set.
func (c *Config) DatabasePath() (string, error) {
	if c.History.DatabasePath != "" {
		return expandHome(c.History.DatabasePath)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chats.db"), nil
}

// ModelsRoot returns the configured model library root with a leading
// "~/" expanded. An empty result means the library default.
func (c *Config) ModelsRoot() (string, error) {
	if c.Models.Root == "" {
		return "", nil
	}
	return expandHome(c.Models.Root)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Values that fail to parse are ignored.
//
// Supported environment variables:
//   - LEVCHAT_SERVER_URL: overrides server.url
//   - LEVCHAT_TEMPERATURE: overrides generation.temperature
//   - LEVCHAT_MAX_TOKENS: overrides generation.max_tokens
//   - LEVCHAT_STRICT_FRAMES: set to "1" or "true" to enable strict frames
//   - LEVCHAT_DB_PATH: overrides history.database_path
//   - LEVCHAT_MODELS_ROOT: overrides models.root
//   - LEVCHAT_LOG_LEVEL: overrides logging.level
//   - LEVCHAT_LOG_FORMAT: overrides logging.format
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("LEVCHAT_SERVER_URL"); v != "" {
		c.Server.URL = v
	}

	if v := os.Getenv("LEVCHAT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Generation.Temperature = f
		}
	}

	if v := os.Getenv("LEVCHAT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Generation.MaxTokens = n
		}
	}

	if v := os.Getenv("LEVCHAT_STRICT_FRAMES"); v != "" {
		c.Generation.StrictFrames = v == "1" || strings.ToLower(v) == "true"
	}

	if v := os.Getenv("LEVCHAT_DB_PATH"); v != "" {
		c.History.DatabasePath = v
	}

	if v := os.Getenv("LEVCHAT_MODELS_ROOT"); v != "" {
		c.Models.Root = v
	}

	if v := os.Getenv("LEVCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("LEVCHAT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup resolves a dotted key to a leaf field.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("field '%s' is a section, not a value", key)
			}
			return field, nil
		}

		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.ToLower(strVal) == "yes"
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"server.url",
		"server.handshake_timeout_secs",
		"server.write_timeout_secs",
		"server.read_limit_bytes",
		"generation.temperature",
		"generation.max_tokens",
		"generation.strict_frames",
		"generation.completion_marker",
		"history.database_path",
		"history.poll_interval_secs",
		"history.append_retries",
		"history.retry_delay_ms",
		"history.chat_name_width",
		"models.root",
		"models.progress_per_sec",
		"logging.level",
		"logging.format",
		"logging.file",
		"ui.markdown",
		"ui.word_wrap",
	}
}

// String returns the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
