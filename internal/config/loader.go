package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPrefix prefixes every environment override (ELASTASK_LOG_LEVEL).
	EnvPrefix = "ELASTASK"
	// FileName is the config file searched for when none is given.
	FileName = "elastask.yaml"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
	searchDirs []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: EnvPrefix,
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithSearchDirs replaces the directories searched for elastask.yaml.
func (l *Loader) WithSearchDirs(dirs ...string) *Loader {
	l.searchDirs = dirs
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (ELASTASK_*)
// 3. Project config (elastask.yaml in current directory)
// 4. User config (~/.config/elastask/elastask.yaml)
// 5. Defaults
//
// Malformed individual values fall back to their default and are reported
// in Config.Warnings. Only an unreadable or unparsable file is an error.
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
	l.v.SetConfigType("yaml")

	path, err := l.locate()
	if err != nil {
		return nil, err
	}

	var warnings []string
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		settings, w, err := decodeSettings(data)
		if err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		warnings = append(warnings, w...)
		if err := l.v.MergeConfigMap(settings); err != nil {
			return nil, fmt.Errorf("merging config %s: %w", path, err)
		}
		l.v.SetConfigFile(path)
	}

	r := &reader{v: l.v}
	cfg := r.build()
	cfg.Warnings = append(warnings, r.warnings...)
	cfg.Source = path
	return cfg, nil
}

// decodeSettings parses YAML into the nested settings map. Empty documents
// and documents whose top level is not a mapping yield no settings.
func decodeSettings(data []byte) (map[string]interface{}, []string, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, err
	}
	switch top := doc.(type) {
	case nil:
		return map[string]interface{}{}, nil, nil
	case map[string]interface{}:
		settings, warnings := normalizeLegacyConfigMap(top)
		return settings, warnings, nil
	default:
		return map[string]interface{}{}, []string{"config file: top level is not a mapping, using defaults"}, nil
	}
}

// locate returns the config file to read, or "" when none exists.
func (l *Loader) locate() (string, error) {
	if l.configFile != "" {
		if _, err := os.Stat(l.configFile); err != nil {
			return "", fmt.Errorf("reading config: %w", err)
		}
		return l.configFile, nil
	}

	dirs := l.searchDirs
	if dirs == nil {
		dirs = DefaultSearchDirs()
	}
	for _, dir := range dirs {
		candidate := filepath.Join(dir, FileName)
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
	}
	return "", nil
}

// DefaultSearchDirs returns the directories searched for elastask.yaml in
// precedence order.
func DefaultSearchDirs() []string {
	dirs := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", "elastask"))
	}
	return dirs
}

// UserConfigPath returns the per-user config file location.
func UserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "elastask", FileName), nil
}

// setDefaults configures default values. The indices password and the
// Kibana credentials have no default of their own; they inherit from the
// Elasticsearch pair at build time.
func (l *Loader) setDefaults() {
	l.v.SetDefault("elasticsearch.host", "http://localhost:9200")
	l.v.SetDefault("elasticsearch.username", "elastic")
	l.v.SetDefault("elasticsearch.password", "changeme")
	l.v.SetDefault("elasticsearch.indices_username", "system_indices_superuser")
	l.v.SetDefault("elasticsearch.index", ".kibana_task_manager")
	l.v.SetDefault("elasticsearch.page_size", defaultPageSize)
	l.v.SetDefault("elasticsearch.timeout", "30s")

	l.v.SetDefault("kibana.hosts", []string{"http://localhost:5601"})
	l.v.SetDefault("kibana.timeout", "30s")

	l.v.SetDefault("kibana_capacity", defaultCapacity)
	l.v.SetDefault("polling_interval", defaultPollingInterval)

	l.v.SetDefault("scheduler.max_attempts", defaultMaxAttempts)
	l.v.SetDefault("scheduler.retry_backoff", defaultRetryBackoff.String())
	l.v.SetDefault("scheduler.conditional_claims", true)

	l.v.SetDefault("store.backend", BackendElasticsearch)
	l.v.SetDefault("store.sqlite_path", ".elastask/tasks.db")

	l.v.SetDefault("server.enabled", false)
	l.v.SetDefault("server.host", "localhost")
	l.v.SetDefault("server.port", 8089)

	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}

// Watch reloads the config file whenever it is written and passes the fresh
// result to onChange. It reports false when no file was loaded.
func (l *Loader) Watch(onChange func(*Config, error)) bool {
	path := l.ConfigFile()
	if path == "" {
		return false
	}
	prefix := l.envPrefix
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := NewLoader().WithEnvPrefix(prefix).WithConfigFile(path).Load()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
	return true
}
