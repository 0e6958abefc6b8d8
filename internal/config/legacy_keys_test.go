package config

import (
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeLegacyConfigMap_DottedKeys(t *testing.T) {
	data := map[string]interface{}{
		"elasticsearch.host":     "http://es:9200",
		"elasticsearch.username": "u",
		"kibana.hosts":           []interface{}{"http://kb:5601"},
		"kibana_capacity":        5,
	}

	got, warnings := normalizeLegacyConfigMap(data)
	if len(warnings) != 0 {
		t.Fatalf("warnings = %v", warnings)
	}

	want := map[string]interface{}{
		"elasticsearch": map[string]interface{}{
			"host":     "http://es:9200",
			"username": "u",
		},
		"kibana": map[string]interface{}{
			"hosts": []interface{}{"http://kb:5601"},
		},
		"kibana_capacity": 5,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("normalizeLegacyConfigMap() = %#v\nwant %#v", got, want)
	}
}

func TestNormalizeLegacyConfigMap_NestedWins(t *testing.T) {
	data := map[string]interface{}{
		"elasticsearch":      map[string]interface{}{"host": "http://nested:9200"},
		"elasticsearch.host": "http://flat:9200",
	}

	got, warnings := normalizeLegacyConfigMap(data)
	es := got["elasticsearch"].(map[string]interface{})
	if es["host"] != "http://nested:9200" {
		t.Errorf("host = %v, want the nested value", es["host"])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "elasticsearch.host") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestNormalizeLegacyConfigMap_SectionConflict(t *testing.T) {
	data := map[string]interface{}{
		"kibana":       "oops",
		"kibana.hosts": []interface{}{"http://kb:5601"},
	}

	got, warnings := normalizeLegacyConfigMap(data)
	if got["kibana"] != "oops" {
		t.Errorf("kibana = %v, want untouched", got["kibana"])
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0], "not a section") {
		t.Errorf("warnings = %v", warnings)
	}
}

func TestNormalizeLegacyConfigMap_NoUnderscoreAndCase(t *testing.T) {
	data := map[string]interface{}{
		"PollingInterval": 100,
		"Scheduler":       map[string]interface{}{"MaxAttempts": 4, "retrybackoff": "1s"},
	}

	got, _ := normalizeLegacyConfigMap(data)
	if got["polling_interval"] != 100 {
		t.Errorf("polling_interval = %v", got["polling_interval"])
	}
	sched := got["scheduler"].(map[string]interface{})
	if sched["max_attempts"] != 4 || sched["retry_backoff"] != "1s" {
		t.Errorf("scheduler = %#v", sched)
	}
	if _, ok := got["PollingInterval"]; ok {
		t.Error("original key should be removed")
	}
}

func TestNormalizeLegacyConfigMap_Nil(t *testing.T) {
	got, warnings := normalizeLegacyConfigMap(nil)
	if got != nil || warnings != nil {
		t.Errorf("normalizeLegacyConfigMap(nil) = %v, %v", got, warnings)
	}
}
