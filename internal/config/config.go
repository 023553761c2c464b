package config // package config loads application configuration from environment variables

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Database settings are interpreted according to
// DBDriver: the MySQL fields for "mysql" and SQLitePath for "sqlite".
type Config struct {
	Env        string // application environment (e.g. "dev", "prod")
	Port       string // HTTP port to listen on
	LogLevel   string // zerolog level name
	DBDriver   string // "mysql" or "sqlite"
	DBUser     string // database username
	DBPass     string // database password (optional)
	DBHost     string // database host address
	DBPort     string // database port number
	DBName     string // database name
	SQLitePath string // database file when DBDriver is "sqlite"
	JWTSecret  string // secret used to verify access tokens
	Notify     NotifyConfig
}

// Load reads configuration values from environment variables and returns a
// Config.  A .env file in the working directory is loaded first when
// present; real environment variables take precedence over it.  Required
// variables are enforced by must() and missing values cause the program to
// exit with a fatal log message.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("component", "config").Err(err).Msg("ignoring unreadable .env")
	}
	cfg := Config{
		Env:        must("APP_ENV"),
		Port:       must("APP_PORT"),
		LogLevel:   envStr("LOG_LEVEL", "info"),
		DBDriver:   envStr("DB_DRIVER", "mysql"),
		SQLitePath: envStr("SQLITE_PATH", "parish.db"),
		JWTSecret:  must("JWT_SECRET"),
		Notify:     LoadNotifyConfig(),
	}
	if cfg.DBDriver == "mysql" {
		cfg.DBUser = must("DB_USER")
		cfg.DBPass = os.Getenv("DB_PASS") // empty allowed
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	}
	return cfg
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatal().Str("component", "config").Str("var", key).Msg("missing required env var")
	}
	return v
}
