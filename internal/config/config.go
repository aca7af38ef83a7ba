// Package config holds the tunable parameters of the sync engine with their
// defaults. Values are overridden by command-line flags in cmd/tillsync.
package config

import (
	"fmt"
	"time"

	"github.com/opentill/tillsync/internal/models"
)

const (
	// DefaultSyncInterval is the periodic pull cadence. Sync latency is
	// minutes-scale by design; live subscriptions cover the interactive path.
	DefaultSyncInterval = 5 * time.Minute

	// DefaultRetryCeiling is the attempt count after which a pending outbox
	// item is parked as failed and waits for manual retry.
	DefaultRetryCeiling = 5

	// DefaultKDFIterations is the PBKDF2-SHA256 work factor for
	// password-derived keys.
	DefaultKDFIterations = 100_000

	// DefaultKeyGracePeriod keeps a rotated-out key decryptable long enough
	// for offline devices to catch up.
	DefaultKeyGracePeriod = 30 * 24 * time.Hour

	// DefaultPullLimit caps how many remote records a single pull requests.
	DefaultPullLimit = 500
)

// Config carries the engine settings shared by the coordinator, the keyring,
// and the transport.
type Config struct {
	RelayURL     string
	DBPath       string
	TenantSecret string

	SyncInterval   time.Duration
	RetryCeiling   int
	KDFIterations  int
	KeyGracePeriod time.Duration
	PullLimit      int

	// Algorithm selects the envelope cipher for newly encrypted records.
	Algorithm string
}

// Default returns a Config with every tunable at its default.
func Default() *Config {
	return &Config{
		RelayURL:       "ws://localhost:8090",
		DBPath:         "tillsync.db",
		SyncInterval:   DefaultSyncInterval,
		RetryCeiling:   DefaultRetryCeiling,
		KDFIterations:  DefaultKDFIterations,
		KeyGracePeriod: DefaultKeyGracePeriod,
		PullLimit:      DefaultPullLimit,
		Algorithm:      models.AlgorithmAESGCM,
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.RetryCeiling < 1 {
		return fmt.Errorf("retry ceiling must be at least 1, got %d", c.RetryCeiling)
	}
	if c.KDFIterations < DefaultKDFIterations {
		return fmt.Errorf("kdf iterations must be at least %d, got %d", DefaultKDFIterations, c.KDFIterations)
	}
	if c.PullLimit < 1 {
		return fmt.Errorf("pull limit must be at least 1, got %d", c.PullLimit)
	}
	if !models.SupportedAlgorithm(c.Algorithm) {
		return fmt.Errorf("unsupported envelope algorithm %q", c.Algorithm)
	}
	return nil
}
