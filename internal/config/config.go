// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field corresponds to an
// environment variable. Payment processor settings are required: the service
// must not accept payment traffic with a missing API token, so Load exits
// fatally rather than degrading per-request.
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	DBMaxOpenConns int           // connection pool ceiling
	DBMaxIdleConns int           // idle connections kept ready
	DBConnLifetime time.Duration // recycle connections after this long
	HelcimAPIURL   string        // base URL of the payment processor API
	HelcimToken    string        // server-side processor API token
	PortalBaseURL  string        // public base URL used to build return/cancel links
	JWTSecret      string        // secret used to sign operator JWTs
	AccessTTLMin   int           // operator access token time-to-live in minutes
	OperatorEmail  string        // email of the configured operator account
	OperatorHash   string        // bcrypt hash of the operator password
}

// Load reads configuration values from environment variables and returns a
// Config. Required variables are enforced by must() and missing values cause
// the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: envInt("DB_MAX_IDLE_CONNS", 25),
		DBConnLifetime: envDur("DB_CONN_LIFETIME", 30*time.Minute),
		HelcimAPIURL:   must("HELCIM_API_URL"),
		HelcimToken:    must("HELCIM_API_TOKEN"),
		PortalBaseURL:  must("PORTAL_BASE_URL"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		OperatorEmail:  must("OPERATOR_EMAIL"),
		OperatorHash:   must("OPERATOR_PASSWORD_HASH"),
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
