package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/benrogmans/lemma/internal/semantic"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Limits LimitsConfig `mapstructure:"limits"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LimitsConfig struct {
	MaxDocuments        int           `mapstructure:"max_documents"`
	MaxFileSize         int           `mapstructure:"max_file_size"`
	MaxExpressionDepth  int           `mapstructure:"max_expression_depth"`
	MaxIdentifierLength int           `mapstructure:"max_identifier_length"`
	MaxStringLength     int           `mapstructure:"max_string_length"`
	MaxFactValueBytes   int           `mapstructure:"max_fact_value_bytes"`
	EvaluationTimeout   time.Duration `mapstructure:"evaluation_timeout"`
}

// ResourceLimits converts the config section into engine limits.
func (l LimitsConfig) ResourceLimits() semantic.Limits {
	return semantic.Limits{
		MaxDocuments:        l.MaxDocuments,
		MaxFileSize:         l.MaxFileSize,
		MaxExpressionDepth:  l.MaxExpressionDepth,
		MaxIdentifierLength: l.MaxIdentifierLength,
		MaxStringLength:     l.MaxStringLength,
		MaxFactValueBytes:   l.MaxFactValueBytes,
		EvaluationTimeout:   l.EvaluationTimeout,
	}
}

// Load reads lemma.yaml from the working directory, with environment
// variables overriding file values. A missing config file is fine; the
// defaults cover everything.
func Load() (*Config, error) {
	viper.SetConfigName("lemma")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	defaults := semantic.DefaultLimits()
	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("limits.max_documents", defaults.MaxDocuments)
	viper.SetDefault("limits.max_file_size", defaults.MaxFileSize)
	viper.SetDefault("limits.max_expression_depth", defaults.MaxExpressionDepth)
	viper.SetDefault("limits.max_identifier_length", defaults.MaxIdentifierLength)
	viper.SetDefault("limits.max_string_length", defaults.MaxStringLength)
	viper.SetDefault("limits.max_fact_value_bytes", defaults.MaxFactValueBytes)
	viper.SetDefault("limits.evaluation_timeout", defaults.EvaluationTimeout)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
