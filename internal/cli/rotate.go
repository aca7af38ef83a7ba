package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/validation"
)

// RunRotateKey retires the active data key and activates a fresh one. Old
// envelopes stay readable until the retired key's grace period elapses.
func (c *Cli) RunRotateKey(ctx context.Context) error {
	if err := validation.ValidateTenantSecret(c.cfg.TenantSecret); err != nil {
		return fmt.Errorf("invalid tenant secret (use -tenant): %w", err)
	}
	if err := c.unlock(ctx); err != nil {
		return err
	}

	active, err := c.store.ActiveKey(ctx, models.KeyTypeData)
	if err != nil {
		return fmt.Errorf("no active data key to rotate: %w", err)
	}

	newID, err := c.keys.RotateKey(ctx, active.ID)
	if err != nil {
		return fmt.Errorf("rotation failed: %w", err)
	}

	c.io.Printf("Rotated data key %s -> %s\n", shortID(active.ID), shortID(newID))
	c.io.Printf("Old key remains readable until %s.\n",
		time.Now().Add(c.cfg.KeyGracePeriod).Format(time.RFC3339))
	return nil
}

// shortID abbreviates a key id for display.
func shortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
