package config

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// normalizeLegacyConfigMap rewrites a decoded config file into the nested
// layout the loader reads. Two legacy forms are accepted:
//
//   - flat dotted keys at the top level ("elasticsearch.host: ..."), the
//     original file layout;
//   - keys written without underscores ("pollinginterval").
//
// When both a flat and a nested form set the same setting, the nested form
// wins. It mutates and returns the provided map plus any conflicts found.
func normalizeLegacyConfigMap(data map[string]interface{}) (map[string]interface{}, []string) {
	if data == nil {
		return nil, nil
	}
	lowerKeys(data)
	warnings := expandDottedKeys(data)
	return normalizeMapForStruct(data, reflect.TypeOf(Config{})), warnings
}

func lowerKeys(data map[string]interface{}) {
	for k, v := range data {
		if nested, ok := v.(map[string]interface{}); ok {
			lowerKeys(nested)
		}
		lk := strings.ToLower(k)
		if lk == k {
			continue
		}
		if _, exists := data[lk]; !exists {
			data[lk] = v
		}
		delete(data, k)
	}
}

func expandDottedKeys(data map[string]interface{}) []string {
	var dotted []string
	for k := range data {
		if strings.Contains(k, ".") {
			dotted = append(dotted, k)
		}
	}
	// deterministic order so conflicts are reported the same way every run
	sort.Strings(dotted)

	var warnings []string
	for _, key := range dotted {
		val := data[key]
		delete(data, key)

		parts := strings.Split(key, ".")
		parent := data
		ok := true
		for _, p := range parts[:len(parts)-1] {
			next, exists := parent[p]
			if !exists {
				m := make(map[string]interface{})
				parent[p] = m
				parent = m
				continue
			}
			m, isMap := next.(map[string]interface{})
			if !isMap {
				warnings = append(warnings, fmt.Sprintf("%s: ignored, %q is not a section", key, p))
				ok = false
				break
			}
			parent = m
		}
		if !ok {
			continue
		}
		leaf := parts[len(parts)-1]
		if _, exists := parent[leaf]; exists {
			warnings = append(warnings, fmt.Sprintf("%s: ignored, also set in nested form", key))
			continue
		}
		parent[leaf] = val
	}
	return warnings
}

func normalizeMapForStruct(data map[string]interface{}, t reflect.Type) map[string]interface{} {
	if data == nil {
		return nil
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return data
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := canonicalTagName(field)
		if name == "" || name == "-" {
			continue
		}

		legacy := strings.ReplaceAll(name, "_", "")
		if legacy != name {
			if val, ok := data[legacy]; ok {
				if _, exists := data[name]; !exists {
					data[name] = val
				}
				delete(data, legacy)
			}
		}

		if val, ok := data[name]; ok {
			data[name] = normalizeValueForType(val, field.Type)
		}
	}

	return data
}

func normalizeValueForType(value interface{}, t reflect.Type) interface{} {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		if m, ok := value.(map[string]interface{}); ok {
			return normalizeMapForStruct(m, t)
		}
	}
	return value
}

func canonicalTagName(field reflect.StructField) string {
	if tag := field.Tag.Get("yaml"); tag != "" {
		return strings.Split(tag, ",")[0]
	}
	return strings.ToLower(field.Name)
}
