package config

import (
	"encoding/base64"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	RedisAddr      string
	SigningKey     []byte
	AllowedOrigins []string
}

// envConfig is the raw environment shape; NewConfig validates and decodes it.
type envConfig struct {
	ServerAddr     string   `env:"RASHOMON_ADDR"`
	DatabaseDSN    string   `env:"RASHOMON_DATABASE_DSN"`
	RedisAddr      string   `env:"RASHOMON_REDIS_ADDR"`
	SigningKey     string   `env:"RASHOMON_SIGNING_KEY"`
	AllowedOrigins []string `env:"RASHOMON_ALLOWED_ORIGINS" envSeparator:","`
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, redisAddr, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		RedisAddr:      redisAddr,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}, nil
}

// FromEnv builds a Config from the environment. Values passed as arguments
// take precedence over environment variables.
func FromEnv(serverAddr, databaseDSN, redisAddr, base64Secret string, allowedOrigins []string) (*Config, error) {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if serverAddr == "" {
		serverAddr = ec.ServerAddr
	}
	if databaseDSN == "" {
		databaseDSN = ec.DatabaseDSN
	}
	if redisAddr == "" {
		redisAddr = ec.RedisAddr
	}
	if base64Secret == "" {
		base64Secret = ec.SigningKey
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = ec.AllowedOrigins
	}

	return NewConfig(serverAddr, databaseDSN, redisAddr, base64Secret, allowedOrigins)
}
