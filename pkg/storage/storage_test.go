package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 25, cfg.MaxConns)
	assert.Equal(t, 5, cfg.MinConns)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "URL is required")

	cfg.URL = "postgres://localhost/atrium"
	require.NoError(t, cfg.Validate())

	cfg.MinConns = 100
	require.Error(t, cfg.Validate(), "min must not exceed max")
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")
}
