// Package config loads settings for the bb client and the dev server from an
// optional YAML file, a .env file and BLINDBOX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/and161185/blindbox/internal/repository/file"
)

// EnvPrefix prefixes every environment override, e.g. BLINDBOX_API_BASE_URL.
const EnvPrefix = "BLINDBOX"

type API struct {
	BaseURL         string        `mapstructure:"base_url"         validate:"required,url"`
	Timeout         time.Duration `mapstructure:"timeout"          validate:"gt=0"`
	CoalesceRefresh bool          `mapstructure:"coalesce_refresh"`
}

type Storage struct {
	Driver      string        `mapstructure:"driver"       validate:"oneof=file redis postgres"`
	Dir         string        `mapstructure:"dir"`
	RedisURL    string        `mapstructure:"redis_url"    validate:"required_if=Driver redis"`
	PostgresDSN string        `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
	Namespace   string        `mapstructure:"namespace"    validate:"required"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl" validate:"gte=0"`
}

type Log struct {
	Level  string `mapstructure:"level"  validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
	File   string `mapstructure:"file"`
}

type Server struct {
	Addr        string        `mapstructure:"addr"         validate:"required"`
	JWTKey      string        `mapstructure:"jwt_key"`
	AccessTTL   time.Duration `mapstructure:"access_ttl"   validate:"gt=0"`
	RefreshTTL  time.Duration `mapstructure:"refresh_ttl"  validate:"gtfield=AccessTTL"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
}

type Config struct {
	API     API     `mapstructure:"api"`
	Storage Storage `mapstructure:"storage"`
	Log     Log     `mapstructure:"log"`
	Server  Server  `mapstructure:"server"`
}

// SetDefaults registers every key so environment overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.coalesce_refresh", true)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", file.DefaultDir())
	v.SetDefault("storage.redis_url", "")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.namespace", "default")
	v.SetDefault("storage.snapshot_ttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.jwt_key", "")
	v.SetDefault("server.access_ttl", 15*time.Minute)
	v.SetDefault("server.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("server.postgres_dsn", "")
}

// Load reads configuration into v. An explicit path must exist; without one a
// blindbox.yaml is looked up in the working and storage directories.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("blindbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(file.DefaultDir())
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if !errors.As(err, &nf) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
