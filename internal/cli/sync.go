package cli

import (
	"context"
	"fmt"
)

// RunSync drains the outbox and pulls remote changes once.
func (c *Cli) RunSync(ctx context.Context) error {
	svc, err := c.service(ctx, true)
	if err != nil {
		return err
	}

	c.io.Println("Synchronizing...")

	drained, err := svc.Drain(ctx)
	if err != nil {
		return fmt.Errorf("drain failed: %w", err)
	}

	pulled, err := svc.Pull(ctx)
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	c.io.Println()
	c.io.Printf("Pushed:    %d\n", drained.Published)
	if drained.Failed > 0 {
		c.io.Printf("Failed:    %d (will retry)\n", drained.Failed)
	}
	c.io.Printf("Fetched:   %d\n", pulled.Fetched)
	c.io.Printf("Adopted:   %d\n", pulled.Adopted)
	if pulled.Discarded > 0 {
		c.io.Printf("Discarded: %d (local copy newer)\n", pulled.Discarded)
	}
	if pulled.Skipped > 0 {
		c.io.Printf("Skipped:   %d (undecryptable or malformed)\n", pulled.Skipped)
	}

	return nil
}

// RunRetry resets failed outbox items and drains again.
func (c *Cli) RunRetry(ctx context.Context) error {
	svc, err := c.service(ctx, true)
	if err != nil {
		return err
	}

	reset, err := svc.RetryFailed(ctx)
	if err != nil {
		return fmt.Errorf("retry failed: %w", err)
	}

	if reset == 0 {
		c.io.Println("Nothing to retry.")
		return nil
	}
	c.io.Printf("Retried %d record(s).\n", reset)
	return nil
}

// RunDaemon runs the sync loop until ctx is cancelled.
func (c *Cli) RunDaemon(ctx context.Context) error {
	svc, err := c.service(ctx, true)
	if err != nil {
		return err
	}

	c.io.Printf("Sync daemon running (interval %s). Ctrl+C to stop.\n", c.cfg.SyncInterval)

	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
