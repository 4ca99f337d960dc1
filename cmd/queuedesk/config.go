package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/queuedesk/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProd
	defaultIssuer          = "queuedesk"
	defaultAudience        = "queuedesk-api"
	defaultAccessTTL       = 15 * time.Minute
	defaultRefreshTTL      = 30 * 24 * time.Hour
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = time.Minute
	defaultSweepInterval   = time.Hour
)

type Config struct {
	// Default logging level
	LogLevel string

	// Environment: 'dev' or 'prod'
	Environment string

	// Address on which the service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis to keep rate limits in, e.g. 'redis://localhost:6379/0'
	// If empty limits are kept in process memory
	RedisURL string

	// RSA key pair in PEM files. Private key signs access tokens, public one verifies them
	PrivateKeyPath string
	PublicKeyPath  string

	// Access token 'iss' and 'aud' claims
	Issuer   string
	Audience string

	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Requests allowed per client in a window
	RateLimitMax    int
	RateLimitWindow time.Duration

	// Trust 'X-Forwarded-For' header. Enable only behind reverse proxy
	TrustProxy bool

	// Send auth cookies over https only
	CookieSecure bool

	// Revoke every user session when rotated refresh token is presented again
	RevokeOnReplay bool

	// How often expired refresh tokens are deleted. Zero disables sweeping
	SweepInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:        defaultLoggingLevel,
		Environment:     defaultEnvironment,
		ListenAddr:      defaultListenAddr,
		Issuer:          defaultIssuer,
		Audience:        defaultAudience,
		AccessTTL:       defaultAccessTTL,
		RefreshTTL:      defaultRefreshTTL,
		RateLimitMax:    defaultRateLimitMax,
		RateLimitWindow: defaultRateLimitWindow,
		CookieSecure:    true,
		SweepInterval:   defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = time.ParseDuration(value)
			}
			return err
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.Atoi(value)
			}
			return err
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) (err error) {
			if value != "" {
				*o, err = strconv.ParseBool(value)
			}
			return err
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"REDIS_URL":            setString(&c.RedisURL),
		"JWT_PRIVATE_KEY_PATH": setString(&c.PrivateKeyPath),
		"JWT_PUBLIC_KEY_PATH":  setString(&c.PublicKeyPath),
		"JWT_ISSUER":           setString(&c.Issuer),
		"JWT_AUDIENCE":         setString(&c.Audience),
		"ACCESS_TOKEN_TTL":     setDuration(&c.AccessTTL),
		"REFRESH_TOKEN_TTL":    setDuration(&c.RefreshTTL),
		"RATE_LIMIT_MAX":       setInt(&c.RateLimitMax),
		"RATE_LIMIT_WINDOW":    setDuration(&c.RateLimitWindow),
		"TRUST_PROXY":          setBool(&c.TrustProxy),
		"COOKIE_SECURE":        setBool(&c.CookieSecure),
		"REVOKE_ON_REPLAY":     setBool(&c.RevokeOnReplay),
		"SWEEP_INTERVAL":       setDuration(&c.SweepInterval),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"ENVIRONMENT":          setString(&c.Environment),
	}

	var errs []error
	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
		}
	}

	return errors.Join(errs...)
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("queuedesk", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURL, "redis", "r", c.RedisURL, "Redis URL for shared rate limits")
	fs.StringVar(&c.PrivateKeyPath, "jwt-private-key", c.PrivateKeyPath, "Path to PEM encoded RSA private key")
	fs.StringVar(&c.PublicKeyPath, "jwt-public-key", c.PublicKeyPath, "Path to PEM encoded RSA public key")
	fs.StringVar(&c.Issuer, "jwt-issuer", c.Issuer, "Access token issuer")
	fs.StringVar(&c.Audience, "jwt-audience", c.Audience, "Access token audience")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.IntVar(&c.RateLimitMax, "rate-limit-max", c.RateLimitMax, "Requests allowed per client in a window")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", c.RateLimitWindow, "Rate limit window")
	fs.BoolVar(&c.TrustProxy, "trust-proxy", c.TrustProxy, "Use X-Forwarded-For header as client address")
	fs.BoolVar(&c.CookieSecure, "cookie-secure", c.CookieSecure, "Send auth cookies over https only")
	fs.BoolVar(&c.RevokeOnReplay, "revoke-on-replay", c.RevokeOnReplay, "Revoke all user sessions on refresh token replay")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expired refresh tokens sweep interval, 0 disables")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")

	return fs.Parse(args)
}

// Check config could be used to start the service
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if c.PrivateKeyPath == "" || c.PublicKeyPath == "" {
		errs = append(errs, errors.New("JWT private and public key paths are required"))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes have to be positive"))
	}
	if c.AccessTTL >= c.RefreshTTL {
		errs = append(errs, errors.New("access token has to live less than refresh token"))
	}
	if c.RateLimitMax <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit max and window have to be positive"))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, errors.New("sweep interval could not be negative"))
	}

	return errors.Join(errs...)
}
