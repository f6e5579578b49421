package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Dynamo   DynamoConfig   `mapstructure:"dynamo"`
	Store    StoreConfig    `mapstructure:"store"`
	Security SecurityConfig `mapstructure:"security"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort int `mapstructure:"grpc_port"`
	HTTPPort int `mapstructure:"http_port"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	URL      string `mapstructure:"url"` // overrides the discrete fields when set
}

// DSN returns URL if set, otherwise a keyword/value connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Enabled  bool          `mapstructure:"enabled"`
}

type DynamoConfig struct {
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	LeadsTable      string `mapstructure:"leads_table"`
	AuditTable      string `mapstructure:"audit_table"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"` // memory, postgres or dynamodb
}

type SecurityConfig struct {
	EncryptionKey    string `mapstructure:"encryption_key"`
	KeyDerivation    string `mapstructure:"key_derivation"` // hkdf or legacy
	AdminID          string `mapstructure:"admin_id"`
	CapabilitySource string `mapstructure:"capability_source"` // static or redis
	CapabilityPrefix string `mapstructure:"capability_prefix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from an optional .env file, an optional config
// file and the environment. Env var overrides use prefix LEADFIN_, e.g.
// LEADFIN_DATABASE_HOST. The encryption key is also read from
// FINANCIAL_ENCRYPTION_KEY.
func Load() (Config, error) {
	envFile := os.Getenv("LEADFIN_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	v := viper.New()

	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8081)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "admin")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "leads")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.url", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", time.Hour)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("dynamo.region", "us-east-1")
	v.SetDefault("dynamo.endpoint", "")
	v.SetDefault("dynamo.access_key_id", "")
	v.SetDefault("dynamo.secret_access_key", "")
	v.SetDefault("dynamo.leads_table", "leads")
	v.SetDefault("dynamo.audit_table", "audit_log")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("security.encryption_key", "")
	v.SetDefault("security.key_derivation", "hkdf")
	v.SetDefault("security.admin_id", "000")
	v.SetDefault("security.capability_source", "static")
	v.SetDefault("security.capability_prefix", "capability:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	if cfgPath := os.Getenv("LEADFIN_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
	}

	v.SetEnvPrefix("LEADFIN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("security.encryption_key",
		"LEADFIN_SECURITY_ENCRYPTION_KEY", "LEADFIN_FINANCIAL_ENCRYPTION_KEY", "FINANCIAL_ENCRYPTION_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}
	if err := v.BindEnv("dynamo.endpoint", "LEADFIN_DYNAMO_ENDPOINT", "DYNAMODB_ENDPOINT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects unknown enumerated values. A missing encryption key is
// not an error here: the financial operations report it per request.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "postgres", "dynamodb":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Security.CapabilitySource {
	case "static", "redis":
	default:
		return fmt.Errorf("unknown capability source %q", c.Security.CapabilitySource)
	}
	return nil
}
