// Package env loads configuration for the service from a .env file with an
// OS-environment fallback. Everything is read through GetEnv so callers never
// touch os.Getenv directly.
//
// Keys the service reads:
//
//	APP_HOST, APP_PORT, APP_ENV
//	DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME
//	CACHE_HOST, CACHE_PORT, CACHE_PASSWORD, CACHE_DB
//	PAYMENT_API_KEY, PAYMENT_IPN_SECRET
//	COMPUTE_ENDPOINT_URL, COMPUTE_CALLBACK_SECRET
//	S3_ENDPOINT, S3_REGION, S3_BUCKET, S3_ACCESS_KEY, S3_SECRET_KEY
//	ADMIN_PASSWORD, ADMIN_SESSION_SECRET, METRICS_PASSWORD
package env

import (
	"os"

	"github.com/joho/godotenv"
)

// Env holds the key/value pairs read from the .env file. Empty when the
// service runs on plain OS environment variables only.
var Env map[string]string

// GetEnv returns the value for key, preferring the .env file over the OS
// environment. def is returned when neither has the key set.
func GetEnv(key, def string) string {
	if val, ok := Env[key]; ok {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// SetupEnvFile reads the first .env file it finds. The relative paths cover
// running from the repo root and from cmd/creatorengine or cmd/migrate
// during development. In containers there is usually no .env file and the
// process runs on injected environment variables, so a missing file is only
// fatal when APP_ENV is not set either.
func SetupEnvFile() {
	paths := []string{
		".env",
		"../../.env",
		"../../../.env",
	}

	for _, p := range paths {
		if vals, err := godotenv.Read(p); err == nil {
			Env = vals
			return
		}
	}

	if os.Getenv("APP_ENV") == "" {
		panic("no .env file found and APP_ENV is not set")
	}
	Env = map[string]string{}
}

// IsDev reports whether the service runs in development mode.
func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
