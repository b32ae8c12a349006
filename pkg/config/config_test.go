package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Utility-Mining-Platform/pkg/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Miner.Mode)
	assert.True(t, cfg.Miner.EUCP)
	assert.True(t, cfg.Miner.LookAhead)
	assert.Equal(t, 1, cfg.Miner.Workers)
	assert.Equal(t, "transaction-batches", cfg.Kafka.Topics.TransactionBatches)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "miner.yaml")
	body := `
miner:
  minUtility: 40
  mode: closed
  lookAhead: false
  partitions: 4
  timeout: 30s
  periodicity:
    enabled: true
    maxPeriodicity: 5
output:
  path: /tmp/out.txt
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("HUIM_WORKERS", "4")
	t.Setenv("HUIM_MIN_UTILITY", "55")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(55), cfg.Miner.MinUtility)
	assert.Equal(t, "closed", cfg.Miner.Mode)
	assert.False(t, cfg.Miner.LookAhead)
	assert.True(t, cfg.Miner.EUCP, "unset keys keep their defaults")
	assert.Equal(t, 4, cfg.Miner.Partitions)
	assert.Equal(t, 4, cfg.Miner.Workers)
	assert.Equal(t, 30*time.Second, cfg.Miner.Timeout)
	assert.True(t, cfg.Miner.Periodicity.Enabled)
	assert.Equal(t, 5, cfg.Miner.Periodicity.MaxPeriodicity)
	assert.Equal(t, "/tmp/out.txt", cfg.Output.Path)
}

func TestLoadRejectsUnparsableNumericOverrides(t *testing.T) {
	for _, name := range []string{"HUIM_MIN_UTILITY", "HUIM_WORKERS", "HUIM_SERVER_PORT", "HUIM_POSTGRES_PORT"} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, "ten")
			_, err := Load("")
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidConfig))
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	assert.Equal(t,
		"host=localhost port=5432 user=utilitymining password=localdev dbname=utilitymining sslmode=disable",
		p.DSN(),
	)
}
