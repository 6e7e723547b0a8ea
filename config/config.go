// Package config loads service settings from defaults, an optional YAML file
// and TODO_ prefixed environment variables, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/EliorMigdal/kaplat-ex7/storage"
)

const envPrefix = "TODO"

type Config struct {
	Port     int      `mapstructure:"port"`
	Postgres Postgres `mapstructure:"postgres"`
	Mongo    Mongo    `mapstructure:"mongo"`
	Log      Log      `mapstructure:"log"`
	Redis    Redis    `mapstructure:"redis"`
	Repair   Repair   `mapstructure:"repair"`
}

type Postgres struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
}

type Mongo struct {
	URI string `mapstructure:"uri"`
}

type Log struct {
	Dir string `mapstructure:"dir"`
}

// Redis is optional. An empty URL disables caching and cross-instance title
// reservations.
type Redis struct {
	URL            string        `mapstructure:"url"`
	CacheTTL       time.Duration `mapstructure:"cacheTTL"`
	ReservationTTL time.Duration `mapstructure:"reservationTTL"`
}

type Repair struct {
	Workers        int           `mapstructure:"workers"`
	Buffer         int           `mapstructure:"buffer"`
	MaxAttempts    int           `mapstructure:"maxAttempts"`
	RetryInitial   time.Duration `mapstructure:"retryInitial"`
	RetryMax       time.Duration `mapstructure:"retryMax"`
	HandoffTimeout time.Duration `mapstructure:"handoffTimeout"`
}

// Default returns the settings used when nothing overrides them.
func Default() *Config {
	return &Config{
		Port: 9285,
		Postgres: Postgres{
			User:     "postgres",
			Password: "docker",
			Host:     "postgres",
			Port:     5432,
			Database: "todos",
		},
		Mongo: Mongo{URI: "mongodb://mongo/todos"},
		Log:   Log{Dir: "logs"},
		Redis: Redis{
			CacheTTL:       30 * time.Second,
			ReservationTTL: 5 * time.Second,
		},
		Repair: Repair{
			Workers:        2,
			Buffer:         64,
			MaxAttempts:    5,
			RetryInitial:   200 * time.Millisecond,
			RetryMax:       5 * time.Second,
			HandoffTimeout: 50 * time.Millisecond,
		},
	}
}

// Load reads path when it is not empty and applies environment overrides on
// top. Keys map to variables by upper-casing and replacing dots, e.g.
// postgres.host is TODO_POSTGRES_HOST and redis.cacheTTL is TODO_REDIS_CACHETTL.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// AutomaticEnv only resolves keys viper already knows about, so every field
// gets a default.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("port", d.Port)

	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.database", d.Postgres.Database)

	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("log.dir", d.Log.Dir)

	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.cacheTTL", d.Redis.CacheTTL)
	v.SetDefault("redis.reservationTTL", d.Redis.ReservationTTL)

	v.SetDefault("repair.workers", d.Repair.Workers)
	v.SetDefault("repair.buffer", d.Repair.Buffer)
	v.SetDefault("repair.maxAttempts", d.Repair.MaxAttempts)
	v.SetDefault("repair.retryInitial", d.Repair.RetryInitial)
	v.SetDefault("repair.retryMax", d.Repair.RetryMax)
	v.SetDefault("repair.handoffTimeout", d.Repair.HandoffTimeout)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Postgres: storage.PostgresConfig{
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			Database: c.Postgres.Database,
		},
		MongoURI:       c.Mongo.URI,
		RedisURL:       c.Redis.URL,
		CacheTTL:       c.Redis.CacheTTL,
		ReservationTTL: c.Redis.ReservationTTL,
	}
}

func (c *Config) RepairConfig() storage.RepairConfig {
	return storage.RepairConfig{
		Workers:        c.Repair.Workers,
		Buffer:         c.Repair.Buffer,
		MaxAttempts:    c.Repair.MaxAttempts,
		RetryInitial:   c.Repair.RetryInitial,
		RetryMax:       c.Repair.RetryMax,
		HandoffTimeout: c.Repair.HandoffTimeout,
	}
}
