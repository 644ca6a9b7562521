package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-testnet-node/internal/nodeerr"
)

func TestLoadRequiresAddress(t *testing.T) {
	_, err := Load("", nil)
	require.ErrorIs(t, err, nodeerr.ErrConfigMissing)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/node.conf", nil)
	require.ErrorIs(t, err, nodeerr.ErrConfigMissing)
}

func TestLoadFromArgvAppliesDefaults(t *testing.T) {
	cfg, err := Load("", []string{"--ADDRESS=testnet-seed.example.org"})
	require.NoError(t, err)
	require.Equal(t, "testnet-seed.example.org", cfg.Address)
	require.Equal(t, 18333, cfg.Port)
	require.Equal(t, uint32(70015), cfg.ProtocolVersion)
	require.Equal(t, 15*time.Second, cfg.ReadTimeout)
	require.Equal(t, int64(0), cfg.StartTimestamp)
}

func TestLoadFromArgvOverridesDefaults(t *testing.T) {
	cfg, err := Load("", []string{
		"--ADDRESS=testnet-seed.example.org",
		"--PORT=28333",
		"--CANTIDAD_THREADS=8",
		"--DIA_INICIAL=2024-01-01",
	})
	require.NoError(t, err)
	require.Equal(t, 28333, cfg.Port)
	require.Equal(t, 8, cfg.Threads)
	require.Greater(t, cfg.StartTimestamp, int64(0))
}

func TestLoadRejectsUnparseableStartDay(t *testing.T) {
	_, err := Load("", []string{
		"--ADDRESS=testnet-seed.example.org",
		"--DIA_INICIAL=not-a-date",
	})
	require.ErrorIs(t, err, nodeerr.ErrConfigUnreadable)
}
