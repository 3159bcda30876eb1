package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// env reads key and converts it with parse. Unset or blank variables yield
// fallback, as do values parse rejects; the latter are logged so a typo in a
// deployment does not go unnoticed.
func env[T any](key string, fallback T, parse func(string) (T, error)) T {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := parse(raw)
	if err != nil {
		slog.Warn("ignoring invalid environment value", "key", key, "error", err)
		return fallback
	}
	return value
}

// GetString returns the trimmed value of key, or fallback when it is unset
// or blank.
func GetString(key, fallback string) string {
	return env(key, fallback, func(s string) (string, error) { return s, nil })
}

// GetInt returns key parsed as a base-10 integer.
func GetInt(key string, fallback int) int {
	return env(key, fallback, strconv.Atoi)
}

// GetBool returns key parsed by strconv.ParseBool.
func GetBool(key string, fallback bool) bool {
	return env(key, fallback, strconv.ParseBool)
}
