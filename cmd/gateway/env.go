package main

import (
	"strings"

	"github.com/vyrodovalexey/tenantgw/internal/config"
)

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(lookup config.LookupFunc, key, defaultValue string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}
