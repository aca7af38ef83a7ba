package cli

import (
	"context"
	"fmt"
	"time"
)

// RunStatus prints the engine state. Works fully offline.
func (c *Cli) RunStatus(ctx context.Context) error {
	svc, err := c.service(ctx, false)
	if err != nil {
		return err
	}

	status, err := svc.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}

	c.io.Println("=== Sync Status ===")
	c.io.Println()

	if status.LastSyncAt == 0 {
		c.io.Println("Last sync: never")
	} else {
		c.io.Printf("Last sync: %s\n", time.UnixMilli(status.LastSyncAt).Format(time.RFC3339))
	}

	if status.SyncError != "" {
		c.io.Printf("Last error: %s\n", status.SyncError)
	}

	c.io.Println()
	if status.PendingCount > 0 {
		c.io.Printf("Pending: %d record(s) waiting to be replicated\n", status.PendingCount)
		c.io.Println("Run 'tillsync sync' to replicate.")
	} else {
		c.io.Println("Pending: none")
	}

	if status.FailedCount > 0 {
		c.io.Printf("Failed: %d record(s) need manual retry\n", status.FailedCount)
		c.io.Println("Run 'tillsync retry' to retry them.")
	}

	return nil
}
