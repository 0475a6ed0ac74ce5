// Package config carries the runtime knobs, with env overrides on top of
// LAN-friendly defaults.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/kahva/goferry/core"
)

var (
	ErrInvalidChunkSize  = errors.New("chunk size must be positive and at most the protocol maximum")
	ErrInvalidAckTimeout = errors.New("ack timeout must be positive")
	ErrInvalidBenchSize  = errors.New("bench size must be positive")
)

type Config struct {
	// TransferAddr is the TCP address receivers listen on.
	TransferAddr string `env:"GOFERRY_ADDR" envDefault:":5001"`

	// DiscoveryAddr is the UDP address for presence broadcasts.
	DiscoveryAddr string `env:"GOFERRY_DISCOVERY_ADDR" envDefault:":5000"`

	// BenchAddr is the TCP address for the throughput benchmark mode.
	BenchAddr string `env:"GOFERRY_BENCH_ADDR" envDefault:":5011"`

	// Dir is where received files land; empty means the default under
	// the user's home.
	Dir string `env:"GOFERRY_DIR"`

	ChunkSize  int           `env:"GOFERRY_CHUNK_SIZE" envDefault:"65536"`
	AckTimeout time.Duration `env:"GOFERRY_ACK_TIMEOUT" envDefault:"30s"`

	// BenchSize is the benchmark payload, 100 MiB by default.
	BenchSize int64 `env:"GOFERRY_BENCH_SIZE" envDefault:"104857600"`

	LogPath string `env:"GOFERRY_LOG"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ChunkSize <= 0 || c.ChunkSize > core.MaxChunkSize {
		return ErrInvalidChunkSize
	}
	if c.AckTimeout <= 0 {
		return ErrInvalidAckTimeout
	}
	if c.BenchSize <= 0 {
		return ErrInvalidBenchSize
	}
	return nil
}
