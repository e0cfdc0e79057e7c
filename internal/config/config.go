package config

import (
	"errors"
	"fmt"
	"time"
)

type Mode string

const (
	ModeData   Mode = "data"
	ModeBFF    Mode = "bff"
	ModeDriver Mode = "driver"
)

var (
	errInvalidAttempts  = errors.New("retry max attempts must be positive")
	errInvalidDelay     = errors.New("retry base delay must not be negative")
	errUnknownBackend   = errors.New("unknown session backend")
	errUnknownStrategy  = errors.New("unknown order feed strategy")
	errMissingSecret    = errors.New("token secret is required")
	errInvalidTokenTTL  = errors.New("token ttl must be positive")
	errInvalidPollDelay = errors.New("poll interval must be positive")
)

type Config struct {
	DataService  DataService  `yaml:"data_service" envPrefix:"DATA_"`
	BFF          BFF          `yaml:"bff" envPrefix:"BFF_"`
	Token        Token        `yaml:"token" envPrefix:"TOKEN_"`
	Remote       Remote       `yaml:"remote" envPrefix:"REMOTE_"`
	Retry        Retry        `yaml:"retry" envPrefix:"RETRY_"`
	Connectivity Connectivity `yaml:"connectivity" envPrefix:"PROBE_"`
	SessionStore SessionStore `yaml:"session_store" envPrefix:"SESSION_"`
	Orders       Orders       `yaml:"orders" envPrefix:"ORDERS_"`
	Driver       Driver       `yaml:"driver" envPrefix:"DRIVER_"`
}

type DataService struct {
	Port                     int    `yaml:"port" env:"PORT"`
	DBPath                   string `yaml:"db_path" env:"DB_PATH"`
	RequireEmailConfirmation bool   `yaml:"require_email_confirmation" env:"REQUIRE_CONFIRMATION"`
	SeedPath                 string `yaml:"seed_path" env:"SEED_PATH"`
}

type BFF struct {
	Port          int    `yaml:"port" env:"PORT"`
	DriversDB     string `yaml:"drivers_db" env:"DRIVERS_DB"`
	RestaurantsDB string `yaml:"restaurants_db" env:"RESTAURANTS_DB"`
	SeedPath      string `yaml:"seed_path" env:"SEED_PATH"`
}

type Token struct {
	Secret     string        `yaml:"secret" env:"SECRET"`
	Issuer     string        `yaml:"issuer" env:"ISSUER"`
	AccessTTL  time.Duration `yaml:"access_ttl" env:"ACCESS_TTL"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env:"REFRESH_TTL"`
}

type Remote struct {
	BaseURL string        `yaml:"base_url" env:"URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type Retry struct {
	MaxAttempts int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	BaseDelay   time.Duration `yaml:"base_delay" env:"BASE_DELAY"`
}

type Connectivity struct {
	// URL defaults to the remote health endpoint.
	URL     string        `yaml:"url" env:"URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type SessionStore struct {
	Backend   string `yaml:"backend" env:"BACKEND"`
	Path      string `yaml:"path" env:"PATH"`
	Key       string `yaml:"key" env:"KEY"`
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
}

type Orders struct {
	Strategy     string        `yaml:"strategy" env:"STRATEGY"`
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
}

type Driver struct {
	Email    string `yaml:"email" env:"EMAIL"`
	Password string `yaml:"password" env:"PASSWORD"`
}

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	StrategyPoll = "poll"
	StrategyPush = "push"
)

func Default() *Config {
	return &Config{
		DataService: DataService{
			Port:   8124,
			DBPath: "data/drivers.db",
		},
		BFF: BFF{
			Port:          3000,
			DriversDB:     "data/drivers.db",
			RestaurantsDB: "data/restaurants.db",
		},
		Token: Token{
			Issuer:     "courier",
			AccessTTL:  time.Hour,
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Remote: Remote{
			BaseURL: "http://localhost:8124",
			Timeout: 10 * time.Second,
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
		},
		Connectivity: Connectivity{
			Timeout: 3 * time.Second,
		},
		SessionStore: SessionStore{
			Backend: BackendFile,
			Path:    "data/session.json",
			Key:     "driver.session",
		},
		Orders: Orders{
			Strategy:     StrategyPoll,
			PollInterval: time.Minute,
		},
	}
}

// New builds the config from defaults, the optional yaml file and the
// environment, in that order.
func New() (*Config, error) {
	c := Default()
	if err := loadYAML(configPath(), c); err != nil {
		return nil, err
	}
	if err := loadEnv(c); err != nil {
		return nil, err
	}
	if c.Connectivity.URL == "" {
		c.Connectivity.URL = c.Remote.BaseURL + "/health"
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.Retry.MaxAttempts <= 0 {
		return errInvalidAttempts
	}
	if c.Retry.BaseDelay < 0 {
		return errInvalidDelay
	}
	switch c.SessionStore.Backend {
	case BackendFile, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, c.SessionStore.Backend)
	}
	switch c.Orders.Strategy {
	case StrategyPoll, StrategyPush:
	default:
		return fmt.Errorf("%w: %q", errUnknownStrategy, c.Orders.Strategy)
	}
	if c.Orders.PollInterval <= 0 {
		return errInvalidPollDelay
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errInvalidTokenTTL
	}
	return nil
}

// RequireSecret is checked only by the modes that sign or verify tokens.
func (c *Config) RequireSecret() error {
	if c.Token.Secret == "" {
		return errMissingSecret
	}
	return nil
}
