package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"time"    // time parses the confirmation period duration
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, a duration for the
// key expiration window and a bool for the provisioning hook.
type Config struct {
	Env                 string        // application environment (e.g. "dev", "prod")
	Port                string        // HTTP port to listen on
	DBUser              string        // database username
	DBPass              string        // database password (optional)
	DBHost              string        // database host address
	DBPort              string        // database port number
	DBName              string        // database name
	DBMaxConns          int           // connection pool cap (open and idle)
	DBConnMaxLifetime   time.Duration // recycle age for pooled connections
	JWTSecret           string        // secret used to verify access tokens issued by the account system
	ConfirmationPeriod  time.Duration // how long a confirmation key stays valid; zero means keys never expire
	AutoAddOnUserCreate bool          // provision an unconfirmed address for every new user account
	DefaultKeyLength    int           // confirmation key length when the caller does not request one
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  CONFIRMATION_PERIOD
// accepts any Go duration string ("72h", "15m"); leaving it unset keeps
// keys valid forever.
func Load() Config {
	return Config{
		Env:                 must("APP_ENV"),                          // environment (dev/test/prod)
		Port:                must("APP_PORT"),                         // port to bind the HTTP server
		DBUser:              must("DB_USER"),                          // database user
		DBPass:              os.Getenv("DB_PASS"),                     // database password (empty allowed)
		DBHost:              must("DB_HOST"),                          // database host
		DBPort:              must("DB_PORT"),                          // database port
		DBName:              must("DB_NAME"),                          // database name
		DBMaxConns:          optInt("DB_MAX_CONNS", 25),               // pool size
		DBConnMaxLifetime:   optDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		JWTSecret:           must("JWT_SECRET"),                       // secret used to verify bearer tokens
		ConfirmationPeriod:  optDuration("CONFIRMATION_PERIOD", 0),    // key expiration window (unset = none)
		AutoAddOnUserCreate: getenv("AUTO_ADD_ON_USER_CREATE", "true") == "true",
		DefaultKeyLength:    optInt("DEFAULT_KEY_LENGTH", 0),          // 0 defers to the key generator default
	}
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

// optDuration parses an optional duration variable, falling back to def
// when unset.  An unparsable value is a configuration error and halts
// startup.
func optDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		log.Fatalf("invalid duration for %s: %q", key, s)
	}
	return d
}

// optInt parses an optional integer variable, falling back to def when
// unset.  An unparsable value halts startup.
func optInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
