//go:build go1.18

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hugo-lorenzo-mato/elastask/internal/config"
)

// FuzzConfigLoad checks that any parsable file loads into a configuration
// whose limits are usable, whatever the individual values look like.
func FuzzConfigLoad(f *testing.F) {
	f.Add(config.DefaultConfigYAML)
	f.Add(`elasticsearch.host: http://es:9200
kibana_capacity: 5
polling_interval: 100
kibana.hosts:
  - http://kb:5601
`)
	f.Add(`kibana_capacity: -1
polling_interval: "abc"
scheduler: {max_attempts: [1]}
`)
	f.Add(`{}`)
	f.Add(``)
	f.Add(`- 1`)

	f.Fuzz(func(t *testing.T, data string) {
		path := filepath.Join(t.TempDir(), config.FileName)
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := config.NewLoader().WithConfigFile(path).Load()
		if err != nil {
			return // unparsable YAML is reported, not recovered
		}

		if cfg.KibanaCapacity <= 0 {
			t.Fatalf("KibanaCapacity = %d", cfg.KibanaCapacity)
		}
		if cfg.PollingInterval() <= 0 {
			t.Fatalf("PollingInterval() = %s", cfg.PollingInterval())
		}
		if cfg.Scheduler.MaxAttempts <= 0 || cfg.Scheduler.RetryBackoff <= 0 {
			t.Fatalf("Scheduler = %+v", cfg.Scheduler)
		}
		if len(cfg.Kibana.Hosts) == 0 {
			t.Fatal("no kibana hosts")
		}

		_ = config.ValidateConfig(cfg)
	})
}
