package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":5001", cfg.TransferAddr)
	assert.Equal(t, ":5000", cfg.DiscoveryAddr)
	assert.Equal(t, ":5011", cfg.BenchAddr)
	assert.Empty(t, cfg.Dir)
	assert.Equal(t, 65536, cfg.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.AckTimeout)
	assert.Equal(t, int64(104857600), cfg.BenchSize)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GOFERRY_ADDR", ":6001")
	t.Setenv("GOFERRY_DISCOVERY_ADDR", ":6000")
	t.Setenv("GOFERRY_DIR", "/tmp/incoming")
	t.Setenv("GOFERRY_CHUNK_SIZE", "1024")
	t.Setenv("GOFERRY_ACK_TIMEOUT", "5s")
	t.Setenv("GOFERRY_BENCH_SIZE", "1048576")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":6001", cfg.TransferAddr)
	assert.Equal(t, ":6000", cfg.DiscoveryAddr)
	assert.Equal(t, "/tmp/incoming", cfg.Dir)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, 5*time.Second, cfg.AckTimeout)
	assert.Equal(t, int64(1048576), cfg.BenchSize)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  error
	}{
		{name: "zero chunk size", key: "GOFERRY_CHUNK_SIZE", value: "0", want: ErrInvalidChunkSize},
		{name: "oversized chunk", key: "GOFERRY_CHUNK_SIZE", value: "999999999", want: ErrInvalidChunkSize},
		{name: "negative ack timeout", key: "GOFERRY_ACK_TIMEOUT", value: "-1s", want: ErrInvalidAckTimeout},
		{name: "zero bench size", key: "GOFERRY_BENCH_SIZE", value: "0", want: ErrInvalidBenchSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadUnparsable(t *testing.T) {
	t.Setenv("GOFERRY_ACK_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}
