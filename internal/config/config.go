package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration values.
type Config struct {
	Env    string `validate:"required,oneof=dev prod"`
	Places struct {
		DBPath      string        `validate:"required"`
		BusyTimeout time.Duration `validate:"gte=0"`
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Maintenance struct {
		Schedule string        `validate:"required"`
		Timeout  time.Duration `validate:"gt=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.Places.DBPath = os.Getenv("PLACES_DB_PATH")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Maintenance.Schedule = getenv("MAINTENANCE_SCHEDULE", "0 */30 * * * *")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/placesd.log")

	var err error
	if c.Places.BusyTimeout, err = durationEnv("PLACES_BUSY_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if c.Maintenance.Timeout, err = durationEnv("MAINTENANCE_TIMEOUT", 2*time.Minute); err != nil {
		return Config{}, err
	}

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if _, err := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
		cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(c.Maintenance.Schedule); err != nil {
		return Config{}, fmt.Errorf("invalid MAINTENANCE_SCHEDULE %q: %w", c.Maintenance.Schedule, err)
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func durationEnv(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", k, v, err)
	}
	return d, nil
}
