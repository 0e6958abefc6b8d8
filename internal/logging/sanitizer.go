package logging

import (
	"regexp"
)

// redactRule replaces matches of a pattern. A replacement of "" means the
// whole match becomes the redacted placeholder.
type redactRule struct {
	re          *regexp.Regexp
	replacement string
}

// Sanitizer redacts credentials from log messages and attributes.
type Sanitizer struct {
	rules    []redactRule
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	s := &Sanitizer{redacted: "[REDACTED]"}
	s.rules = defaultRules()
	return s
}

func defaultRules() []redactRule {
	rules := []struct {
		pattern     string
		replacement string
	}{
		// user:password@ in store and node URLs; keep the scheme
		{`(?i)\b(https?://)[^/\s:@]+:[^/\s@]+@`, "${1}[REDACTED]@"},
		// Basic credentials in an Authorization header
		{`(?i)\bbasic\s+[A-Za-z0-9+/]{8,}={0,2}`, ""},
		// Elasticsearch API keys
		{`(?i)\bapikey\s+[A-Za-z0-9+/_-]{20,}={0,2}`, ""},
		// Generic Bearer tokens
		{`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`, ""},
		// AWS Access Key
		{`AKIA[0-9A-Z]{16}`, ""},
		// Generic API keys
		{`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`, ""},
		// Generic secrets
		{`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`, ""},
		// Passwords, including short defaults such as "changeme"
		{`(?i)password["'\s:=]+[^\s"',}]{4,}`, ""},
		// Generic tokens
		{`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`, ""},
	}

	compiled := make([]redactRule, 0, len(rules))
	for _, r := range rules {
		compiled = append(compiled, redactRule{
			re:          regexp.MustCompile(r.pattern),
			replacement: r.replacement,
		})
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	result := input
	for _, rule := range s.rules {
		if rule.replacement == "" {
			result = rule.re.ReplaceAllLiteralString(result, s.redacted)
			continue
		}
		result = rule.re.ReplaceAllString(result, rule.replacement)
	}
	return result
}

// SanitizeMap redacts values in a map.
func (s *Sanitizer) SanitizeMap(m map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range m {
		switch val := v.(type) {
		case string:
			result[k] = s.Sanitize(val)
		case map[string]interface{}:
			result[k] = s.SanitizeMap(val)
		default:
			result[k] = v
		}
	}
	return result
}

// AddPattern adds a custom pattern whose matches are fully redacted.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.rules = append(s.rules, redactRule{re: re})
	return nil
}

// AddSecret redacts every literal occurrence of secret, such as a configured
// password. Empty secrets are ignored.
func (s *Sanitizer) AddSecret(secret string) {
	if secret == "" {
		return
	}
	s.rules = append(s.rules, redactRule{re: regexp.MustCompile(regexp.QuoteMeta(secret))})
}

// SetRedactedPlaceholder sets the placeholder text for redacted content.
func (s *Sanitizer) SetRedactedPlaceholder(placeholder string) {
	s.redacted = placeholder
}
