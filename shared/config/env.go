// Package config provides environment variable helpers used across services.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup returns the first non-empty value among keys.
func lookup(keys ...string) (string, bool) {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value, true
		}
	}
	return "", false
}

func GetEnv(key, defaultValue string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	return defaultValue
}

// MustEnv fatally exits if the env var is not set.
func MustEnv(key string) string {
	if value, ok := lookup(key); ok {
		return value
	}
	log.Fatalf("Required env var %s not set", key)
	return ""
}

func GetEnvWithFallback(primary, fallback, defaultValue string) string {
	if value, ok := lookup(primary, fallback); ok {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value, ok := lookup(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func GetEnvIntWithFallback(primary, fallback string, defaultValue int) int {
	if value, ok := lookup(primary, fallback); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	if value, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func GetEnvBoolWithFallback(primary, fallback string, defaultValue bool) bool {
	if value, ok := lookup(primary, fallback); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := lookup(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func GetEnvDurationWithFallback(primary, fallback string, defaultValue time.Duration) time.Duration {
	if value, ok := lookup(primary, fallback); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// GetEnvSlice parses a comma-separated env var into a string slice.
func GetEnvSlice(key string, defaultValue []string) []string {
	if value, ok := lookup(key); ok {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func GetEnvSliceWithFallback(primary, fallback string, defaultValue []string) []string {
	if value, ok := lookup(primary, fallback); ok {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
