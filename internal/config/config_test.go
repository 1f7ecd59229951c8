package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for _, k := range []string{
		"ENV", "PLACES_DB_PATH", "PLACES_BUSY_TIMEOUT", "HTTP_ADDR",
		"MAINTENANCE_SCHEDULE", "MAINTENANCE_TIMEOUT",
		"LOG_CONSOLE_LEVEL", "LOG_FILE_LEVEL", "LOG_FILE",
	} {
		t.Setenv(k, env[k])
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"PLACES_DB_PATH": "data/places.sqlite"})

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, "data/places.sqlite", c.Places.DBPath)
	assert.Equal(t, 5*time.Second, c.Places.BusyTimeout)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "0 */30 * * * *", c.Maintenance.Schedule)
	assert.Equal(t, 2*time.Minute, c.Maintenance.Timeout)
	assert.Equal(t, "info", c.Log.ConsoleLevel)
	assert.Equal(t, "debug", c.Log.FileLevel)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, map[string]string{
		"ENV":                  "dev",
		"PLACES_DB_PATH":       "/tmp/p.sqlite",
		"PLACES_BUSY_TIMEOUT":  "250ms",
		"HTTP_ADDR":            "127.0.0.1:9000",
		"MAINTENANCE_SCHEDULE": "@hourly",
		"MAINTENANCE_TIMEOUT":  "30s",
		"LOG_CONSOLE_LEVEL":    "WARN",
	})

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", c.Env)
	assert.Equal(t, 250*time.Millisecond, c.Places.BusyTimeout)
	assert.Equal(t, "127.0.0.1:9000", c.HTTP.Addr)
	assert.Equal(t, "@hourly", c.Maintenance.Schedule)
	assert.Equal(t, 30*time.Second, c.Maintenance.Timeout)
	assert.Equal(t, "warn", c.Log.ConsoleLevel)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing db path", map[string]string{}},
		{"bad env", map[string]string{"PLACES_DB_PATH": "p", "ENV": "staging"}},
		{"bad duration", map[string]string{"PLACES_DB_PATH": "p", "MAINTENANCE_TIMEOUT": "soon"}},
		{"zero timeout", map[string]string{"PLACES_DB_PATH": "p", "MAINTENANCE_TIMEOUT": "0s"}},
		{"bad schedule", map[string]string{"PLACES_DB_PATH": "p", "MAINTENANCE_SCHEDULE": "every day"}},
		{"bad level", map[string]string{"PLACES_DB_PATH": "p", "LOG_FILE_LEVEL": "trace"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
