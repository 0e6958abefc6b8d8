package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/elastask/internal/adapters/elasticsearch"
	"github.com/hugo-lorenzo-mato/elastask/internal/adapters/kibana"
	"github.com/hugo-lorenzo-mato/elastask/internal/adapters/sqlite"
	"github.com/hugo-lorenzo-mato/elastask/internal/config"
	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/dispatcher"
	"github.com/hugo-lorenzo-mato/elastask/internal/logging"
)

// loadConfig loads and validates configuration using the global viper
// instance, so bound flags take precedence over file and environment.
func loadConfig() (*config.Config, *config.Loader, error) {
	cfg, loader, err := readConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, loader, nil
}

// readConfig loads configuration without validating it.
func readConfig(v *viper.Viper, path string) (*config.Config, *config.Loader, error) {
	loader := config.NewLoaderWithViper(v)
	if path != "" {
		loader.WithConfigFile(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, loader, nil
}

// newLogger creates the process logger. Logs go to stderr so command
// output on stdout stays machine readable.
func newLogger(cfg *config.Config) *logging.Logger {
	level := cfg.Log.Level
	if quiet && (level == "debug" || level == "info") {
		level = "warn"
	}
	logger := logging.New(logging.Config{
		Level:   level,
		Format:  cfg.Log.Format,
		Output:  os.Stderr,
		Secrets: cfg.Secrets(),
	})
	for _, w := range cfg.Warnings {
		logger.Warn("ignored malformed setting", "warning", w)
	}
	return logger
}

// deps holds the collaborators built from configuration.
type deps struct {
	cfg         *config.Config
	logger      *logging.Logger
	store       core.TaskStore
	storeTarget string
	client      *kibana.Client
	registry    *core.Registry
	closers     []func() error
}

// buildDeps opens the task store and creates the node client and registry.
// The caller must Close the result.
func buildDeps(cfg *config.Config, logger *logging.Logger) (*deps, error) {
	registry, err := core.NewRegistry(cfg.Kibana.Hosts)
	if err != nil {
		return nil, fmt.Errorf("registering kibana nodes: %w", err)
	}

	d := &deps{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		client: kibana.New(cfg.Kibana.Username, cfg.Kibana.Password, cfg.Kibana.Timeout.Std(),
			kibana.WithLogger(logger)),
	}

	switch cfg.Store.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		d.store = store
		d.storeTarget = store.Path()
		d.closers = append(d.closers, store.Close)
	default:
		store, err := elasticsearch.New(elasticsearch.Config{
			Host:  cfg.Elasticsearch.Host,
			Index: cfg.Elasticsearch.Index,
			Search: elasticsearch.Credentials{
				Username: cfg.Elasticsearch.Username,
				Password: cfg.Elasticsearch.Password,
			},
			Write: elasticsearch.Credentials{
				Username: cfg.Elasticsearch.IndicesUsername,
				Password: cfg.Elasticsearch.IndicesPassword,
			},
			Timeout: cfg.Elasticsearch.Timeout.Std(),
		}, elasticsearch.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("creating elasticsearch client: %w", err)
		}
		d.store = store
		d.storeTarget = redactURL(cfg.Elasticsearch.Host) + "/" + cfg.Elasticsearch.Index
	}
	return d, nil
}

// Close releases the store.
func (d *deps) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// newDispatcher creates a dispatcher over the built collaborators.
func (d *deps) newDispatcher(opts ...dispatcher.Option) (*dispatcher.Dispatcher, error) {
	opts = append([]dispatcher.Option{dispatcher.WithLogger(d.logger)}, opts...)
	return dispatcher.New(d.store, d.client, d.registry, dispatcherConfig(d.cfg), opts...)
}

func dispatcherConfig(cfg *config.Config) dispatcher.Config {
	return dispatcher.Config{
		Capacity:          cfg.KibanaCapacity,
		MaxAttempts:       cfg.Scheduler.MaxAttempts,
		RetryBackoff:      cfg.Scheduler.RetryBackoff.Std(),
		PollingInterval:   cfg.PollingInterval(),
		PageSize:          cfg.Elasticsearch.PageSize,
		ConditionalClaims: cfg.Scheduler.ConditionalClaims,
	}
}

func limitsOf(cfg *config.Config) dispatcher.Limits {
	return dispatcher.Limits{
		Capacity:        cfg.KibanaCapacity,
		MaxAttempts:     cfg.Scheduler.MaxAttempts,
		PollingInterval: cfg.PollingInterval(),
	}
}

// redactURL drops credentials and trailing slashes from a URL for display.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.User = nil
	return strings.TrimSuffix(u.String(), "/")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
