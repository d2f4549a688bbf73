package kintone

import (
	"fmt"
	"strings"

	"github.com/nucleus/ucl-kintone/internal/endpoint"
)

// init registers the kintone factory with the global registry.
func init() {
	endpoint.DefaultRegistry().Register(TemplateID, func(config map[string]any) (endpoint.Endpoint, error) {
		return New(ConfigFromMap(config))
	})
}

// ConfigFromMap reads a loosely typed config. camelCase and snake_case keys
// are both accepted.
func ConfigFromMap(m map[string]any) *Config {
	cfg := &Config{
		Domain:            getString(m, "", "domain"),
		AppIDs:            getStrings(m, "appIds", "app_ids"),
		IncludeLabel:      getBool(m, "includeLabel", "include_label"),
		GuestSpaceID:      getString(m, "", "guestSpaceId", "guest_space_id"),
		Query:             getString(m, "", "query"),
		PageSize:          getInt(m, DefaultPageSize, "pageSize", "page_size"),
		Lang:              getString(m, DefaultLang, "lang"),
		RequestsPerSecond: getFloat(m, "requestsPerSecond", "requests_per_second"),
		MaxRetries:        getInt(m, 0, "maxRetries", "max_retries"),
	}

	auth, _ := lookup(m, "authType", "auth_type").(map[string]any)
	if auth == nil {
		auth = m
	}
	cfg.AuthType = AuthType{
		Option:   getString(auth, "", "option"),
		Username: getString(auth, "", "username"),
		Password: getString(auth, "", "password"),
		APIToken: getString(auth, "", "apiToken", "api_token"),
	}
	return cfg
}

// --- Config Helpers ---

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func getString(m map[string]any, defaultVal string, keys ...string) string {
	switch v := lookup(m, keys...).(type) {
	case string:
		return v
	case int:
		return fmt.Sprint(v)
	case float64:
		return fmt.Sprint(int64(v))
	}
	return defaultVal
}

func getInt(m map[string]any, defaultVal int, keys ...string) int {
	switch v := lookup(m, keys...).(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultVal
}

func getFloat(m map[string]any, keys ...string) float64 {
	switch v := lookup(m, keys...).(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

func getBool(m map[string]any, keys ...string) bool {
	v, _ := lookup(m, keys...).(bool)
	return v
}

// getStrings accepts a list or a comma separated string. Numeric ids are
// rendered as integers.
func getStrings(m map[string]any, keys ...string) []string {
	switch v := lookup(m, keys...).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch item := item.(type) {
			case string:
				out = append(out, item)
			case int:
				out = append(out, fmt.Sprint(item))
			case float64:
				out = append(out, fmt.Sprint(int64(item)))
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	}
	return nil
}
