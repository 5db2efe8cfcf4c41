package realtime

import (
	"encoding/base64"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type ConfigLoader interface {
	Load() (*Config, error)
}

// EnvConfigLoader loads the configuration from environment variables,
// reading a .env file first when one is present. The SECRET variable is
// expected to be a base64-encoded string used to verify connection tokens.
// ALLOWED_ORIGINS is a comma-separated list of origins that are allowed to
// connect to the server.
type EnvConfigLoader struct {
}

func (l *EnvConfigLoader) Load() (*Config, error) {
	// .env is optional; real environment variables win either way
	godotenv.Load()

	config := &Config{}

	config.Port, _ = strconv.Atoi(getEnv("PORT"))
	config.Hostname = getEnv("HOSTNAME")

	secret, err := base64.StdEncoding.DecodeString(getEnv("SECRET"))
	if err != nil {
		return nil, errors.New("invalid secret value")
	}
	config.Auth.Secret = secret

	if v := getEnv("PRESENCE_DISCONNECT_GRACE"); v != "" {
		grace, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.New("invalid presence disconnect grace")
		}
		config.Presence.DisconnectGrace = grace
	}
	if v := getEnv("VIDEO_ENDED_PURGE_DELAY"); v != "" {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return nil, errors.New("invalid video ended purge delay")
		}
		config.Video.EndedPurgeDelay = delay
	}

	config.AllowedOrigins = strings.Split(getEnv("ALLOWED_ORIGINS"), ",")

	return config, nil
}

// Utility function to get an environment variable.
func getEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return ""
	}
	return value
}
