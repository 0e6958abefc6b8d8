package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// reader converts raw viper values leniently. A value that cannot be used
// is replaced by def and recorded as a warning.
type reader struct {
	v        *viper.Viper
	warnings []string
}

func (r *reader) build() *Config {
	cfg := &Config{}

	es := &cfg.Elasticsearch
	es.Host = r.str("elasticsearch.host", "http://localhost:9200")
	es.Username = r.str("elasticsearch.username", "elastic")
	es.Password = r.str("elasticsearch.password", "changeme")
	es.IndicesUsername = r.str("elasticsearch.indices_username", "system_indices_superuser")
	es.IndicesPassword = r.str("elasticsearch.indices_password", es.Password)
	es.Index = r.str("elasticsearch.index", ".kibana_task_manager")
	es.PageSize = r.integer("elasticsearch.page_size", defaultPageSize, 1)
	es.Timeout = Duration(r.duration("elasticsearch.timeout", 30*time.Second))

	kb := &cfg.Kibana
	kb.Hosts = r.strSlice("kibana.hosts", []string{"http://localhost:5601"})
	kb.Username = r.str("kibana.username", es.Username)
	kb.Password = r.str("kibana.password", es.Password)
	kb.Timeout = Duration(r.duration("kibana.timeout", 30*time.Second))

	cfg.KibanaCapacity = r.integer("kibana_capacity", defaultCapacity, 1)
	cfg.PollingIntervalMS = r.integer("polling_interval", defaultPollingInterval, 1)

	cfg.Scheduler.MaxAttempts = r.integer("scheduler.max_attempts", defaultMaxAttempts, 1)
	cfg.Scheduler.RetryBackoff = Duration(r.duration("scheduler.retry_backoff", defaultRetryBackoff))
	cfg.Scheduler.ConditionalClaims = r.boolean("scheduler.conditional_claims", true)

	cfg.Store.Backend = r.oneOf("store.backend", BackendElasticsearch, BackendElasticsearch, BackendSQLite)
	cfg.Store.SQLitePath = r.str("store.sqlite_path", ".elastask/tasks.db")

	cfg.Server.Enabled = r.boolean("server.enabled", false)
	cfg.Server.Host = r.str("server.host", "localhost")
	cfg.Server.Port = r.integer("server.port", 8089, 1)

	cfg.Log.Level = r.oneOf("log.level", "info", "debug", "info", "warn", "error")
	cfg.Log.Format = r.oneOf("log.format", "auto", "auto", "text", "json")

	return cfg
}

func (r *reader) warn(key string, raw interface{}, reason string, def interface{}) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s: %s (got %v), using default %v", key, reason, raw, def))
}

func isComposite(raw interface{}) bool {
	switch raw.(type) {
	case map[string]interface{}, []interface{}, []string:
		return true
	}
	return false
}

func (r *reader) str(key, def string) string {
	raw := r.v.Get(key)
	if raw == nil {
		return def
	}
	if isComposite(raw) {
		r.warn(key, raw, "expected a string", def)
		return def
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		r.warn(key, raw, "expected a string", def)
		return def
	}
	return s
}

func (r *reader) oneOf(key, def string, allowed ...string) string {
	s := strings.ToLower(strings.TrimSpace(r.str(key, def)))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.warn(key, s, "must be one of "+strings.Join(allowed, ", "), def)
	return def
}

func (r *reader) integer(key string, def, min int) int {
	raw := r.v.Get(key)
	if raw == nil {
		return def
	}
	if _, isBool := raw.(bool); isBool || isComposite(raw) {
		r.warn(key, raw, "expected an integer", def)
		return def
	}
	if f, ok := raw.(float64); ok && f != math.Trunc(f) {
		r.warn(key, raw, "expected an integer", def)
		return def
	}
	if s, ok := raw.(string); ok {
		// cast would read a leading zero as octal
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			r.warn(key, raw, "expected an integer", def)
			return def
		}
		raw = n
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		r.warn(key, raw, "expected an integer", def)
		return def
	}
	if n < min {
		r.warn(key, raw, fmt.Sprintf("must be at least %d", min), def)
		return def
	}
	return n
}

// duration accepts Go duration strings ("30s") or a bare number of seconds.
func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.v.Get(key)
	if raw == nil {
		return def
	}

	var d time.Duration
	switch val := raw.(type) {
	case string:
		s := strings.TrimSpace(val)
		if parsed, err := time.ParseDuration(s); err == nil {
			d = parsed
		} else if secs, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
		} else {
			r.warn(key, raw, "expected a duration", def)
			return def
		}
	case time.Duration:
		d = val
	case bool:
		r.warn(key, raw, "expected a duration", def)
		return def
	default:
		secs, err := cast.ToFloat64E(raw)
		if err != nil {
			r.warn(key, raw, "expected a duration", def)
			return def
		}
		d = time.Duration(secs * float64(time.Second))
	}

	if d <= 0 {
		r.warn(key, raw, "must be positive", def)
		return def
	}
	return d
}

func (r *reader) boolean(key string, def bool) bool {
	raw := r.v.Get(key)
	if raw == nil {
		return def
	}
	if isComposite(raw) {
		r.warn(key, raw, "expected true or false", def)
		return def
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		r.warn(key, raw, "expected true or false", def)
		return def
	}
	return b
}

// strSlice accepts a YAML list of strings or a comma separated string
// (the form environment variables take).
func (r *reader) strSlice(key string, def []string) []string {
	raw := r.v.Get(key)
	if raw == nil {
		return def
	}

	var out []string
	switch val := raw.(type) {
	case string:
		for _, part := range strings.Split(val, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []string:
		for _, item := range val {
			if p := strings.TrimSpace(item); p != "" {
				out = append(out, p)
			}
		}
	case []interface{}:
		for _, item := range val {
			s, ok := item.(string)
			if !ok || strings.TrimSpace(s) == "" {
				r.warn(key, raw, "expected a list of strings", def)
				return def
			}
			out = append(out, strings.TrimSpace(s))
		}
	default:
		r.warn(key, raw, "expected a list of strings", def)
		return def
	}

	if len(out) == 0 {
		r.warn(key, raw, "list is empty", def)
		return def
	}
	return out
}
