package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  Strings for identifiers and secrets, ints
// for durations.
type Config struct {
	Env             string // application environment (e.g. "dev", "prod")
	Port            string // HTTP port to listen on
	DBUser          string // database username
	DBPass          string // database password (optional)
	DBHost          string // database host address
	DBPort          string // database port number
	DBName          string // database name
	JWTSecret       string // secret used to sign admin session JWTs
	AdminSecretHash string // bcrypt hash of the shared admin secret
	AdminTTLMin     int    // admin session time-to-live in minutes
	GraceMinutes    int    // default claim grace period in minutes
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  The grace period
// must be a positive number of minutes; anything else falls back to 30.
func Load() Config {
	cfg := Config{
		Env:             must("APP_ENV"),           // environment (dev/test/prod)
		Port:            must("APP_PORT"),          // port to bind the HTTP server
		DBUser:          must("DB_USER"),           // database user
		DBPass:          os.Getenv("DB_PASS"),      // database password (empty allowed)
		DBHost:          must("DB_HOST"),           // database host
		DBPort:          must("DB_PORT"),           // database port
		DBName:          must("DB_NAME"),           // database name
		JWTSecret:       must("JWT_SECRET"),        // secret for signing admin JWTs
		AdminSecretHash: must("ADMIN_SECRET_HASH"), // bcrypt hash of the admin shared secret
		AdminTTLMin:     envInt("ADMIN_SESSION_TTL_MIN", 720),
		GraceMinutes:    envInt("WISHLIST_GRACE_MINUTES", 30),
	}
	if cfg.GraceMinutes < 1 {
		cfg.GraceMinutes = 30
	}
	if cfg.AdminTTLMin < 1 {
		cfg.AdminTTLMin = 720
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// envInt reads an integer environment variable with a default.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}
