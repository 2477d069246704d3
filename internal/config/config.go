package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the api and jobs processes.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Telephony TelephonyConfig
	Dialer    DialerConfig
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

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// TelephonyConfig covers the external call-scenario runtime boundary:
// the outbound call-initiation API and the inbound signed webhooks.
type TelephonyConfig struct {
	APIURL     string
	AccountID  string
	AccountKey string

	// WebhookBaseURL is the public base URL this service is reachable on;
	// the call runtime posts outcome events to <base>/webhooks/call-events.
	WebhookBaseURL string
	WebhookSecret  string

	RequestTimeout time.Duration
	ConnectTimeout time.Duration
}

// DialerConfig tunes the batch passes.
type DialerConfig struct {
	// CallThrottle is the fixed delay between consecutive call placements
	// within one scheduler pass (provider rate limits).
	CallThrottle time.Duration

	// StaleCallTTL bounds concurrency-slot leakage from lost callbacks.
	StaleCallTTL time.Duration

	// RetrySweepLimit caps retry-queue entries handled per sweep.
	RetrySweepLimit int

	// LeaseTTL bounds how long a crashed batch run can hold its run lease.
	LeaseTTL time.Duration

	// PoolReleaseCooldown is how long after campaign completion a claimed
	// pool lead with a bad outcome stays off the market.
	PoolReleaseCooldown time.Duration

	// PoolTopUpTarget is the dialable backlog each active campaign is
	// topped up to from the shared pool.
	PoolTopUpTarget int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Telephony.APIURL = strings.TrimSpace(os.Getenv("TELEPHONY_API_URL"))
	c.Telephony.AccountID = strings.TrimSpace(os.Getenv("TELEPHONY_ACCOUNT_ID"))
	c.Telephony.AccountKey = os.Getenv("TELEPHONY_ACCOUNT_KEY")
	c.Telephony.WebhookBaseURL = strings.TrimSpace(os.Getenv("WEBHOOK_BASE_URL"))
	c.Telephony.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	c.Telephony.RequestTimeout = optDuration("TELEPHONY_REQUEST_TIMEOUT")
	c.Telephony.ConnectTimeout = optDuration("TELEPHONY_CONNECT_TIMEOUT")

	c.Dialer.CallThrottle = optDuration("DIALER_CALL_THROTTLE")
	c.Dialer.StaleCallTTL = optDuration("DIALER_STALE_CALL_TTL")
	c.Dialer.RetrySweepLimit = optInt("DIALER_RETRY_SWEEP_LIMIT")
	c.Dialer.LeaseTTL = optDuration("DIALER_LEASE_TTL")
	c.Dialer.PoolReleaseCooldown = optDuration("POOL_RELEASE_COOLDOWN")
	c.Dialer.PoolTopUpTarget = optInt("POOL_TOPUP_TARGET")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

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
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
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

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 8 * time.Hour // one agent shift
	}

	if c.Telephony.APIURL == "" {
		errs = append(errs, errors.New("TELEPHONY_API_URL is required"))
	}
	if c.Telephony.AccountID == "" {
		errs = append(errs, errors.New("TELEPHONY_ACCOUNT_ID is required"))
	}
	if c.Telephony.WebhookBaseURL == "" {
		errs = append(errs, errors.New("WEBHOOK_BASE_URL is required"))
	}
	if c.Telephony.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	}
	if c.Telephony.RequestTimeout <= 0 {
		c.Telephony.RequestTimeout = 15 * time.Second
	}
	if c.Telephony.ConnectTimeout <= 0 {
		c.Telephony.ConnectTimeout = 5 * time.Second
	}

	if c.Dialer.CallThrottle <= 0 {
		c.Dialer.CallThrottle = 1200 * time.Millisecond
	}
	if c.Dialer.StaleCallTTL <= 0 {
		c.Dialer.StaleCallTTL = 30 * time.Minute
	}
	if c.Dialer.RetrySweepLimit <= 0 {
		c.Dialer.RetrySweepLimit = 500
	}
	if c.Dialer.LeaseTTL <= 0 {
		c.Dialer.LeaseTTL = 10 * time.Minute
	}
	if c.Dialer.PoolReleaseCooldown <= 0 {
		c.Dialer.PoolReleaseCooldown = 48 * time.Hour
	}
	if c.Dialer.PoolTopUpTarget <= 0 {
		c.Dialer.PoolTopUpTarget = 100
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

// WebhookURL is the absolute callback URL handed to the call runtime.
func (c Config) WebhookURL() string {
	return strings.TrimRight(c.Telephony.WebhookBaseURL, "/") + "/webhooks/call-events"
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
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
