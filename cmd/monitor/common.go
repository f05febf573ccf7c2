package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"MarketMirror/internal/collector"
	"MarketMirror/internal/config"
	"MarketMirror/internal/logging"
)

// configFlag is embedded by every command that reads the config file.
type configFlag struct {
	path string
}

func (c *configFlag) register(f *flag.FlagSet) {
	def := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		def = v
	}
	f.StringVar(&c.path, "config", def, "Path to the YAML config file.")
}

func (c *configFlag) load() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(c.path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, logging.New(cfg.Logging.Level), nil
}

func newClient(cfg *config.Config, log logrus.FieldLogger) *collector.Client {
	return collector.NewClient(cfg.Backend.BaseURL, cfg.Proxy, cfg.Timeout(), cfg.Backend.RequestsPerSecond, log)
}
