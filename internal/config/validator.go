package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateElasticsearch(&cfg.Elasticsearch)
	v.validateKibana(&cfg.Kibana)
	v.validateLimits(cfg)
	v.validateStore(&cfg.Store)
	v.validateServer(&cfg.Server)
	v.validateLog(&cfg.Log)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateElasticsearch(cfg *ElasticsearchConfig) {
	if !isHTTPURL(cfg.Host) {
		v.addError("elasticsearch.host", cfg.Host, "must be an http(s) URL")
	}

	if cfg.Index == "" {
		v.addError("elasticsearch.index", cfg.Index, "index required")
	} else if strings.ContainsAny(cfg.Index, "/ ,*?\"<>|") {
		v.addError("elasticsearch.index", cfg.Index, "invalid index name")
	}

	if cfg.Username == "" {
		v.addError("elasticsearch.username", cfg.Username, "username required")
	}
	if cfg.IndicesUsername == "" {
		v.addError("elasticsearch.indices_username", cfg.IndicesUsername, "username required")
	}
}

func (v *Validator) validateKibana(cfg *KibanaConfig) {
	if len(cfg.Hosts) == 0 {
		v.addError("kibana.hosts", cfg.Hosts, "at least one node required")
	}

	seen := make(map[string]bool, len(cfg.Hosts))
	for _, host := range cfg.Hosts {
		if !isHTTPURL(host) {
			v.addError("kibana.hosts", host, "must be an http(s) URL")
			continue
		}
		if seen[host] {
			v.addError("kibana.hosts", host, "duplicate node")
		}
		seen[host] = true
	}
}

func (v *Validator) validateLimits(cfg *Config) {
	if cfg.KibanaCapacity <= 0 {
		v.addError("kibana_capacity", cfg.KibanaCapacity, "must be positive")
	}
	if cfg.PollingIntervalMS <= 0 {
		v.addError("polling_interval", cfg.PollingIntervalMS, "must be positive")
	}
	if cfg.Scheduler.MaxAttempts <= 0 {
		v.addError("scheduler.max_attempts", cfg.Scheduler.MaxAttempts, "must be positive")
	}
	if cfg.Scheduler.RetryBackoff <= 0 {
		v.addError("scheduler.retry_backoff", cfg.Scheduler.RetryBackoff, "must be positive")
	}
	if cfg.Elasticsearch.PageSize <= 0 || cfg.Elasticsearch.PageSize > maxResultWindow {
		v.addError("elasticsearch.page_size", cfg.Elasticsearch.PageSize, fmt.Sprintf("must be between 1 and %d", maxResultWindow))
	}
}

// maxResultWindow is the Elasticsearch index.max_result_window default.
const maxResultWindow = 10000

func (v *Validator) validateStore(cfg *StoreConfig) {
	switch cfg.Backend {
	case BackendElasticsearch:
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			v.addError("store.sqlite_path", cfg.SQLitePath, "path required for the sqlite backend")
		} else if !isValidPath(cfg.SQLitePath) {
			v.addError("store.sqlite_path", cfg.SQLitePath, "invalid file path")
		}
	default:
		v.addError("store.backend", cfg.Backend, "must be one of: elasticsearch, sqlite")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Host == "" {
		v.addError("server.host", cfg.Host, "host required when enabled")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
