// Package config contém a leitura da configuração do serviço rotaExata.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config contém os parâmetros de configuração do serviço rotaExata.
type Config struct {
	RunAddress        string        `env:"RUN_ADDRESS"`
	DatabaseURI       string        `env:"DATABASE_URI"`
	PricingConfigPath string        `env:"PRICING_CONFIG"`
	GeocoderAddress   string        `env:"GEOCODER_ADDRESS"`
	AuthSecret        string        `env:"AUTH_SECRET"`
	RecalcInterval    time.Duration `env:"RECALC_INTERVAL"`
}

// Parse lê a configuração de flags de linha de comando e variáveis de
// ambiente. Variáveis de ambiente têm precedência sobre as flags.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envPricingPath := cfg.PricingConfigPath
	envGeocoderAddress := cfg.GeocoderAddress
	envAuthSecret := cfg.AuthSecret
	envRecalcInterval := cfg.RecalcInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PricingConfigPath, "p", "", "path to the pricing table JSON file")
	flag.StringVar(&cfg.GeocoderAddress, "g", "", "geocoder service address")
	flag.StringVar(&cfg.AuthSecret, "s", "", "secret for driver token signing")
	flag.DurationVar(&cfg.RecalcInterval, "i", 30*time.Second, "earnings recalculation interval")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envPricingPath != "" {
		cfg.PricingConfigPath = envPricingPath
	}
	if envGeocoderAddress != "" {
		cfg.GeocoderAddress = envGeocoderAddress
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envRecalcInterval != 0 {
		cfg.RecalcInterval = envRecalcInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RecalcInterval <= 0 {
		cfg.RecalcInterval = 30 * time.Second
	}

	return cfg, nil
}
