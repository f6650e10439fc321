package kconfig

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Run("Should return cryptlib's built-in compliance defaults", func(t *testing.T) {
		cfg := Default()

		assert.Equal(t, 1, cfg.ComplianceLevel)
		assert.Equal(t, 2000, cfg.KeyingIterations)
		assert.Equal(t, NonceTolerant, cfg.NonceComparison)
	})
}

func TestSweepPeriod(t *testing.T) {
	t.Run("Should parse a Go-native duration string", func(t *testing.T) {
		cfg := Default()
		cfg.SweepInterval = "45s"

		d, err := cfg.SweepPeriod()

		require.NoError(t, err)
		assert.Equal(t, 45*time.Second, d)
	})

	t.Run("Should fall back to str2duration for a non-Go-native human form", func(t *testing.T) {
		cfg := Default()
		cfg.SweepInterval = "1d"

		d, err := cfg.SweepPeriod()

		require.NoError(t, err)
		assert.Equal(t, 24*time.Hour, d)
	})

	t.Run("Should error on a nonsense interval", func(t *testing.T) {
		cfg := Default()
		cfg.SweepInterval = "banana"

		_, err := cfg.SweepPeriod()

		assert.Error(t, err)
	})
}

func TestLoad(t *testing.T) {
	t.Run("Should overlay an environment variable onto the built-in defaults", func(t *testing.T) {
		t.Setenv("KERNELGUARD_COMPLIANCE_LEVEL", "3")
		os.Unsetenv("KERNELGUARD_HASH_ALGORITHM")

		cfg, err := Load()

		require.NoError(t, err)
		assert.Equal(t, 3, cfg.ComplianceLevel)
		assert.Equal(t, "sha2-256", cfg.HashAlgorithm)
	})
}

func TestContext(t *testing.T) {
	t.Run("Should round-trip a config through the context", func(t *testing.T) {
		cfg := Default()
		cfg.ComplianceLevel = 2

		ctx := WithConfig(context.Background(), cfg)

		assert.Same(t, cfg, FromContext(ctx))
	})

	t.Run("Should fall back to defaults when none is attached", func(t *testing.T) {
		got := FromContext(context.Background())

		assert.Equal(t, Default(), got)
	})
}
