package main

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type config struct {
	Server   serverConfig   `mapstructure:"server"`
	Store    storeConfig    `mapstructure:"store"`
	Delivery deliveryConfig `mapstructure:"delivery"`
	Logging  loggingConfig  `mapstructure:"logging"`
}

type serverConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type storeConfig struct {
	// Backend selects the persistence layer: memory, redis, postgres, sqlite.
	Backend string `mapstructure:"backend"`

	// DSN is the Postgres connection string or SQLite file path.
	DSN string `mapstructure:"dsn"`

	// RedisAddr is the Redis host:port.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type deliveryConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
}

type loggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func loadConfig(path string) (*config, error) {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("delivery.concurrency", 10)
	viper.SetDefault("delivery.poll_interval", time.Second)
	viper.SetDefault("delivery.batch_size", 50)
	viper.SetDefault("delivery.request_timeout", 30*time.Second)
	viper.SetDefault("delivery.max_attempts", 3)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetEnvPrefix("COURIER")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
