package auth

import (
	"errors"
	"time"
)

type Config struct {
	JWT  *JWTConfig  `mapstructure:"jwt" json:"jwt"`
	TOTP *TOTPConfig `mapstructure:"totp" json:"totp"`
}

type JWTConfig struct {
	Enabled   bool          `mapstructure:"enabled" json:"enabled"`
	SecretKey string        `mapstructure:"secret_key" json:"secret_key"`
	TTL       time.Duration `mapstructure:"ttl" json:"ttl"`
	Issuer    string        `mapstructure:"issuer" json:"issuer"`
}

type TOTPConfig struct {
	Issuer string `mapstructure:"issuer" json:"issuer"`
	Digits int    `mapstructure:"digits" json:"digits"`
	Skew   uint   `mapstructure:"skew" json:"skew"`
	Period uint   `mapstructure:"period" json:"period"`
}

func DefaultConfig() *Config {
	return &Config{
		JWT: &JWTConfig{
			TTL:    15 * time.Minute,
			Issuer: "cronkit",
		},
		TOTP: &TOTPConfig{
			Digits: 6,
			Skew:   1,
			Period: 30,
		},
	}
}

func (c *JWTConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.SecretKey) < 32 {
		return errors.New("JWT secret key must be at least 32 characters")
	}
	if c.TTL <= 0 {
		return errors.New("JWT ttl must be positive")
	}
	return nil
}

// Options converts the file settings into TOTP options.
func (c *TOTPConfig) Options() TOTPOptions {
	return TOTPOptions{
		Issuer: c.Issuer,
		Digits: c.Digits,
		Skew:   c.Skew,
		Period: c.Period,
	}
}
