package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env, optionally seeded from the file named by
// APP_ENV_FILE. No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	Session SessionConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

type TwilioConfig struct {
	// AuthToken signs status callbacks. Empty disables signature checks.
	AuthToken string
	// PublicBaseURL is the externally visible origin Twilio posts to; the
	// signature covers the full URL.
	PublicBaseURL string
}

type SessionConfig struct {
	FollowUpReset       time.Duration
	NotesDebounce       time.Duration
	NotesAck            time.Duration
	CalendarDelay       time.Duration
	CalendarIntegration bool
	SnapshotTTL         time.Duration
	StrictOutcomes      bool
	PersistTimeout      time.Duration
	ActionLockTTL       time.Duration
}

// Load reads the environment. If APP_ENV_FILE is set the file is loaded
// first; variables already present in the environment win.
func Load() (Config, error) {
	if path := strings.TrimSpace(os.Getenv("APP_ENV_FILE")); path != "" {
		if err := godotenv.Load(path); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = collect(parseErrs, mustInt("APP_PORT"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = collect(parseErrs, mustInt("DB_PORT"))
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = collect(parseErrs, mustInt("REDIS_PORT"))
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB, parseErrs = collect(parseErrs, optionalInt("REDIS_DB"))

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("TWILIO_PUBLIC_BASE_URL")), "/")

	// Duration and bool env vars are optional; defaults applied in Validate().
	c.Session.FollowUpReset, parseErrs = collect(parseErrs, optionalDuration("SESSION_FOLLOWUP_RESET"))
	c.Session.NotesDebounce, parseErrs = collect(parseErrs, optionalDuration("SESSION_NOTES_DEBOUNCE"))
	c.Session.NotesAck, parseErrs = collect(parseErrs, optionalDuration("SESSION_NOTES_ACK"))
	c.Session.CalendarDelay, parseErrs = collect(parseErrs, optionalDuration("SESSION_CALENDAR_DELAY"))
	c.Session.SnapshotTTL, parseErrs = collect(parseErrs, optionalDuration("SESSION_SNAPSHOT_TTL"))
	c.Session.PersistTimeout, parseErrs = collect(parseErrs, optionalDuration("SESSION_PERSIST_TIMEOUT"))
	c.Session.ActionLockTTL, parseErrs = collect(parseErrs, optionalDuration("SESSION_ACTION_LOCK_TTL"))
	c.Session.CalendarIntegration, parseErrs = collect(parseErrs, optionalBool("SESSION_CALENDAR_INTEGRATION", false))
	c.Session.StrictOutcomes, parseErrs = collect(parseErrs, optionalBool("SESSION_STRICT_OUTCOMES", c.App.Env != "production"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	if c.Redis.DB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must be >= 0, got %d", c.Redis.DB))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
	}
	if c.Twilio.AuthToken != "" && c.Twilio.PublicBaseURL == "" {
		errs = append(errs, errors.New("TWILIO_PUBLIC_BASE_URL is required when TWILIO_AUTH_TOKEN is set"))
	}

	s := &c.Session
	defaultDuration(&s.FollowUpReset, 3*time.Second)
	defaultDuration(&s.NotesDebounce, 2*time.Second)
	defaultDuration(&s.NotesAck, 2*time.Second)
	defaultDuration(&s.CalendarDelay, 2*time.Second)
	defaultDuration(&s.SnapshotTTL, 12*time.Hour)
	defaultDuration(&s.PersistTimeout, 10*time.Second)
	defaultDuration(&s.ActionLockTTL, 15*time.Second)
	if s.ActionLockTTL < s.PersistTimeout {
		errs = append(errs, errors.New("SESSION_ACTION_LOCK_TTL must be >= SESSION_PERSIST_TIMEOUT"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

type parsed[T any] struct {
	v   T
	err error
}

func collect[T any](errs []error, p parsed[T]) (T, []error) {
	if p.err != nil {
		errs = append(errs, p.err)
	}
	return p.v, errs
}

func mustInt(key string) parsed[int] {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return parsed[int]{err: fmt.Errorf("%s is required", key)}
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return parsed[int]{err: fmt.Errorf("%s must be an integer, got %q", key, v)}
	}
	return parsed[int]{v: n}
}

func optionalInt(key string) parsed[int] {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return parsed[int]{}
	}
	return mustInt(key)
}

func optionalDuration(key string) parsed[time.Duration] {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return parsed[time.Duration]{}
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return parsed[time.Duration]{err: fmt.Errorf("%s must be a duration, got %q", key, v)}
	}
	if d < 0 {
		return parsed[time.Duration]{err: fmt.Errorf("%s must not be negative, got %q", key, v)}
	}
	return parsed[time.Duration]{v: d}
}

func optionalBool(key string, def bool) parsed[bool] {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return parsed[bool]{v: def}
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return parsed[bool]{err: fmt.Errorf("%s must be a boolean, got %q", key, v)}
	}
	return parsed[bool]{v: b}
}

func defaultDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
