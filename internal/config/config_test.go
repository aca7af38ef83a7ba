package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultSyncInterval, cfg.SyncInterval)
	assert.Equal(t, DefaultRetryCeiling, cfg.RetryCeiling)
	assert.Equal(t, DefaultKDFIterations, cfg.KDFIterations)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero sync interval", mutate: func(c *Config) { c.SyncInterval = 0 }},
		{name: "zero retry ceiling", mutate: func(c *Config) { c.RetryCeiling = 0 }},
		{name: "weak kdf", mutate: func(c *Config) { c.KDFIterations = 1000 }},
		{name: "zero pull limit", mutate: func(c *Config) { c.PullLimit = 0 }},
		{name: "unknown algorithm", mutate: func(c *Config) { c.Algorithm = "rot13" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
