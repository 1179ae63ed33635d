// Package config provides configuration management for the canter
// toolchain.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/ternarybob/canter/pkg/message"
)

// Config represents the toolchain configuration loaded from canter.toml.
type Config struct {
	Compiler CompilerConfig `toml:"compiler"`
	Warnings WarningsConfig `toml:"warnings"`
	Logging  LoggingConfig  `toml:"logging"`
	Server   ServerConfig   `toml:"server"`
}

// CompilerConfig contains compiler-level settings.
type CompilerConfig struct {
	ModulesDir      string `toml:"modules_dir"`
	AsyncJobWorkers int    `toml:"async_job_workers"`
}

// WarningsConfig mirrors the -W toggles so projects can pin them in
// configuration instead of on every invocation.
type WarningsConfig struct {
	UnrecognizedEscapeSequences bool `toml:"unrecognized_escape_sequences"`
	ShadowingDirectLocals       bool `toml:"shadowing_direct_locals"`
	ShadowingParentFuncLocals   bool `toml:"shadowing_parent_func_locals"`
	ShadowingGlobals            bool `toml:"shadowing_globals"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	Directory  string      `toml:"directory"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
}

// ServerConfig contains the inspection server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
	MaxRequestSize int64    `toml:"max_request_size_bytes"`
}

// StringSlice is a custom type that can unmarshal from either a string
// or a list of strings.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array of strings, got %T", data)
	}
	return nil
}

// Default returns the configuration used when no canter.toml exists.
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			ModulesDir:      "modules",
			AsyncJobWorkers: 2,
		},
		Warnings: WarningsConfig{
			UnrecognizedEscapeSequences: true,
			ShadowingDirectLocals:       true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"stderr"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           4330,
			MaxRequestSize: 4 * 1024 * 1024,
		},
	}
}

// Load reads a config file, falling back to defaults for everything the
// file does not set. An empty path searches the standard locations.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return cfg, nil
		}
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{"canter.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "canter", "canter.toml"))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// Validate checks value ranges after loading.
func (c *Config) Validate() error {
	if c.Compiler.AsyncJobWorkers < 1 {
		return fmt.Errorf("compiler.async_job_workers must be at least 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// WarnConfig converts the warnings section into the compiler's warning
// configuration.
func (c *Config) WarnConfig() *message.WarnConfig {
	return &message.WarnConfig{
		WarnUnrecognizedEscapeSequences: c.Warnings.UnrecognizedEscapeSequences,
		WarnShadowingDirectLocals:       c.Warnings.ShadowingDirectLocals,
		WarnShadowingParentFuncLocals:   c.Warnings.ShadowingParentFuncLocals,
		WarnShadowingGlobals:            c.Warnings.ShadowingGlobals,
	}
}
