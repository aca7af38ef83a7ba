package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opentill/tillsync/internal/models"
)

// RunList prints all local records of a kind.
func (c *Cli) RunList(ctx context.Context, kindName string) error {
	kind, err := models.KindFromName(kindName)
	if err != nil {
		return err
	}

	svc, err := c.service(ctx, false)
	if err != nil {
		return err
	}

	records, err := svc.List(ctx, kind)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if len(records) == 0 {
		c.io.Printf("No %s records.\n", kindName)
		return nil
	}

	c.io.Printf("=== %s (%d) ===\n", kindName, len(records))
	for _, record := range records {
		state := "pending"
		if record.Synced {
			state = "synced"
		}
		c.io.Printf("%-24s %s  %-7s  %s\n",
			record.ID,
			time.UnixMilli(record.UpdatedAt).Format(time.RFC3339),
			state,
			string(record.Data))
	}

	return nil
}

// RunPut stores a record locally and queues it for replication.
func (c *Cli) RunPut(ctx context.Context, kindName, id, data string) error {
	kind, err := models.KindFromName(kindName)
	if err != nil {
		return err
	}
	if !json.Valid([]byte(data)) {
		return fmt.Errorf("record data must be valid JSON")
	}

	svc, err := c.service(ctx, false)
	if err != nil {
		return err
	}

	record, err := svc.Put(ctx, kind, id, json.RawMessage(data))
	if err != nil {
		return fmt.Errorf("failed to store record: %w", err)
	}

	c.io.Printf("Stored %s/%s (updated_at %d), queued for sync.\n",
		kindName, record.ID, record.UpdatedAt)
	return nil
}
