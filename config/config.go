package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/Deepreo/cronkit/logging"
	"github.com/Deepreo/cronkit/modules/auth"
	"github.com/Deepreo/cronkit/modules/cache"
	"github.com/Deepreo/cronkit/modules/database"
	"github.com/Deepreo/cronkit/modules/scheduler"
	"github.com/Deepreo/cronkit/modules/servers"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "APP"
	DefaultConfigPath = "application.toml"
)

type Config struct {
	Name      string                   `mapstructure:"name"`
	Log       logging.Config           `mapstructure:"log"`
	Scheduler scheduler.Config         `mapstructure:"scheduler"`
	Server    servers.HttpServerConfig `mapstructure:"server"`
	Database  database.Config          `mapstructure:"database"`
	Cache     cache.Config             `mapstructure:"cache"`
	Auth      auth.Config              `mapstructure:"auth"`
}

// Path returns the config file to load: APP_CONFIG, then CONFIG_PATH, then
// application.toml in the working directory.
func Path() string {
	for _, key := range []string{EnvPrefix + "_CONFIG", "CONFIG_PATH"} {
		if p := os.Getenv(key); p != "" {
			return p
		}
	}
	return DefaultConfigPath
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", "cronkit")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "")
	v.SetDefault("scheduler.stop_timeout", scheduler.DefaultStopTimeout.String())
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", servers.DefaultHost)
	v.SetDefault("server.port", servers.DefaultPort)
	v.SetDefault("database.enabled", false)
	v.SetDefault("cache.enabled", false)

	authDefaults := auth.DefaultConfig()
	v.SetDefault("auth.jwt.enabled", false)
	v.SetDefault("auth.jwt.secret_key", "")
	v.SetDefault("auth.jwt.ttl", authDefaults.JWT.TTL)
	v.SetDefault("auth.jwt.issuer", authDefaults.JWT.Issuer)
	v.SetDefault("auth.totp.issuer", "")
	v.SetDefault("auth.totp.digits", authDefaults.TOTP.Digits)
	v.SetDefault("auth.totp.skew", authDefaults.TOTP.Skew)
	v.SetDefault("auth.totp.period", authDefaults.TOTP.Period)
}

// Load reads path and applies APP_ prefixed environment overrides, e.g.
// APP_SERVER_PORT for server.port. A missing file is not an error when path
// is the default one.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = Path()
	}
	if _, err := os.Stat(path); err == nil || path != DefaultConfigPath {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Auth.JWT != nil {
		if err := cfg.Auth.JWT.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Default returns the configuration Load produces without a file.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults only, decoding cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}
