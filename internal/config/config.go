// Package config loads the server configuration. Environment variables
// override the TOML file, which overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harrylevesque/makerdash/internal/utils"
)

// EnvPrefix prefixes every environment override, e.g. MAKERDASH_SERVER_ADDR.
const EnvPrefix = "MAKERDASH"

// Config holds the server configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Data      DataConfig      `mapstructure:"data"`
	Security  SecurityConfig  `mapstructure:"security"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Bitcoind  BitcoindConfig  `mapstructure:"bitcoind"`
	Demo      bool            `mapstructure:"demo"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	StaticDir       string        `mapstructure:"static_dir"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// TLSCert and TLSKey switch the listener to HTTPS when both are set.
	TLSCert string `mapstructure:"tls_cert"`
	TLSKey  string `mapstructure:"tls_key"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type DataConfig struct {
	Root   string `mapstructure:"root"`
	DBPath string `mapstructure:"db_path"`
}

type SecurityConfig struct {
	MasterKeyFile string `mapstructure:"master_key_file"`
}

// AuthConfig configures the dashboard login. An empty PasswordHash turns
// authentication off.
type AuthConfig struct {
	Username     string        `mapstructure:"username"`
	PasswordHash string        `mapstructure:"password_hash"`
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type ScheduleConfig struct {
	Health string `mapstructure:"health"`
	Sync   string `mapstructure:"sync"`
}

type BitcoindConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SetDefaults registers a default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":3000")
	v.SetDefault("server.static_dir", filepath.Join("frontend", "build", "client"))
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.tls_cert", "")
	v.SetDefault("server.tls_key", "")
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("data.root", filepath.Join("~", ".coinswap", "dashboard"))
	v.SetDefault("data.db_path", "")
	v.SetDefault("security.master_key_file", "")
	v.SetDefault("auth.username", "admin")
	v.SetDefault("auth.password_hash", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("schedule.health", "@every 30s")
	v.SetDefault("schedule.sync", "@every 10m")
	v.SetDefault("bitcoind.timeout", 10*time.Second)
	v.SetDefault("demo", false)
}

// New returns a viper instance with defaults and env overrides wired.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or $MAKERDASH_CONFIG, or makerdash.toml in the working
// directory or data root) into v and returns the validated config. Only an
// explicitly named file must exist.
func Load(v *viper.Viper, path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(utils.ExpandHome(path))
	} else {
		v.SetConfigName("makerdash")
		v.AddConfigPath(".")
		v.AddConfigPath(utils.GetDataRoot())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.resolvePaths()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) resolvePaths() {
	c.Data.Root = utils.ExpandHome(c.Data.Root)
	if c.Data.DBPath == "" {
		c.Data.DBPath = filepath.Join(c.Data.Root, "makerdash.db")
	}
	c.Data.DBPath = utils.ExpandHome(c.Data.DBPath)
	if c.Security.MasterKeyFile == "" {
		c.Security.MasterKeyFile = filepath.Join(c.Data.Root, "master.key")
	}
	c.Security.MasterKeyFile = utils.ExpandHome(c.Security.MasterKeyFile)
	c.Log.File = utils.ExpandHome(c.Log.File)
	c.Server.StaticDir = utils.ExpandHome(c.Server.StaticDir)
	c.Server.TLSCert = utils.ExpandHome(c.Server.TLSCert)
	c.Server.TLSKey = utils.ExpandHome(c.Server.TLSKey)
}

// Validate rejects unusable values and clamps the rest into range.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr must not be empty")
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr %q: %w", c.Server.Addr, err)
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return errors.New("server.tls_cert and server.tls_key must be set together")
	}
	if c.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if c.RateLimit.RPS <= 0 {
		return fmt.Errorf("rate_limit.rps must be positive, got %v", c.RateLimit.RPS)
	}
	if c.RateLimit.Burst < 1 {
		c.RateLimit.Burst = 1
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		c.Log.Level = strings.ToLower(c.Log.Level)
	default:
		return fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		c.Log.Format = "json"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Bitcoind.Timeout <= 0 {
		c.Bitcoind.Timeout = 10 * time.Second
	}
	if c.Auth.PasswordHash != "" && c.Auth.Username == "" {
		return errors.New("auth.username must be set when auth.password_hash is set")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	return nil
}

// TLSEnabled reports whether the server listens with HTTPS.
func (c Config) TLSEnabled() bool { return c.Server.TLSCert != "" }

// AuthEnabled reports whether the API requires a login.
func (c Config) AuthEnabled() bool { return c.Auth.PasswordHash != "" }

// Logger returns the logger settings in the form utils.NewLogger takes.
func (c Config) Logger() utils.LogConfig {
	return utils.LogConfig{Level: c.Log.Level, Format: c.Log.Format, File: c.Log.File}
}
