// Package config loads dispatcher settings from elastask.yaml, ELASTASK_*
// environment variables and built-in defaults.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
)

// Config holds the complete dispatcher configuration.
type Config struct {
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Kibana        KibanaConfig        `yaml:"kibana"`
	// KibanaCapacity is the maximum number of tasks a single node may own.
	KibanaCapacity int `yaml:"kibana_capacity"`
	// PollingIntervalMS is the pause between polling cycles in milliseconds.
	PollingIntervalMS int             `yaml:"polling_interval"`
	Scheduler         SchedulerConfig `yaml:"scheduler"`
	Store             StoreConfig     `yaml:"store"`
	Server            ServerConfig    `yaml:"server"`
	Log               LogConfig       `yaml:"log"`

	// Warnings lists settings that were malformed and replaced by defaults.
	Warnings []string `yaml:"-"`
	// Source is the config file that was read, empty when none was found.
	Source string `yaml:"-"`
}

// ElasticsearchConfig configures the task store connection.
type ElasticsearchConfig struct {
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// The indices pair is used for writes to the system task index.
	IndicesUsername string   `yaml:"indices_username"`
	IndicesPassword string   `yaml:"indices_password"`
	Index           string   `yaml:"index"`
	PageSize        int      `yaml:"page_size"`
	Timeout         Duration `yaml:"timeout"`
}

// KibanaConfig configures the execution nodes.
type KibanaConfig struct {
	Hosts    []string `yaml:"hosts"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

// SchedulerConfig configures the readiness policy and claim protocol.
type SchedulerConfig struct {
	MaxAttempts       int      `yaml:"max_attempts"`
	RetryBackoff      Duration `yaml:"retry_backoff"`
	ConditionalClaims bool     `yaml:"conditional_claims"`
}

// StoreConfig selects the task store backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig configures the optional status API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Store backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendSQLite        = "sqlite"
)

// PollingInterval returns the pause between cycles.
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.PollingIntervalMS) * time.Millisecond
}

// ServerAddr returns the host:port the status API listens on.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Masked returns a copy with every password replaced, for display.
func (c *Config) Masked() *Config {
	out := *c
	out.Kibana.Hosts = append([]string(nil), c.Kibana.Hosts...)
	out.Warnings = append([]string(nil), c.Warnings...)
	out.Elasticsearch.Password = mask(c.Elasticsearch.Password)
	out.Elasticsearch.IndicesPassword = mask(c.Elasticsearch.IndicesPassword)
	out.Kibana.Password = mask(c.Kibana.Password)
	return &out
}

// Secrets returns the configured passwords so the logger can redact them.
func (c *Config) Secrets() []string {
	return []string{c.Elasticsearch.Password, c.Elasticsearch.IndicesPassword, c.Kibana.Password}
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// Duration is a time.Duration that renders as "30s" in YAML.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// Defaults mirrored from the domain constants.
var (
	defaultCapacity        = core.DefaultNodeCapacity
	defaultPollingInterval = int(core.DefaultPollingInterval / time.Millisecond)
	defaultPageSize        = core.DefaultPageSize
	defaultMaxAttempts     = core.DefaultMaxAttempts
	defaultRetryBackoff    = core.DefaultRetryBackoff
)

func (c *Config) String() string {
	return fmt.Sprintf("es=%s nodes=%d capacity=%d interval=%s backend=%s",
		c.Elasticsearch.Host, len(c.Kibana.Hosts), c.KibanaCapacity, c.PollingInterval(), c.Store.Backend)
}
