// Package syncer is the sync coordinator: the only component that moves
// records between the local store and the relay network. Local writes flow
// through Put into the outbox; Drain publishes the outbox; Pull and the live
// subscription feed remote records through the conflict resolver.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/opentill/tillsync/internal/config"
	"github.com/opentill/tillsync/internal/keyring"
	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/resolver"
	"github.com/opentill/tillsync/internal/storage"
	"github.com/opentill/tillsync/internal/transport"
	"github.com/opentill/tillsync/internal/validation"
	"github.com/opentill/tillsync/pkg/wire"
)

//go:generate moq -out service_mock.go . Service

// Service is the coordinator's contract toward the CLI and the application
// layer.
type Service interface {
	// Put records a local write: re-stamps the timestamp, seals the payload,
	// and stores record plus outbox item in one transaction. It never touches
	// the network.
	Put(ctx context.Context, kind models.RecordKind, id string, data json.RawMessage) (*models.Record, error)

	// List returns all local records of a kind.
	List(ctx context.Context, kind models.RecordKind) ([]*models.Record, error)

	// Drain publishes pending outbox items. Items are independent: one
	// failure never blocks the rest. A drain already in progress makes this
	// call a no-op.
	Drain(ctx context.Context) (*DrainResult, error)

	// Pull fetches remote records since the last watermark and merges them.
	Pull(ctx context.Context) (*PullResult, error)

	// Run blocks, syncing on an interval and over a live subscription, until
	// ctx is cancelled.
	Run(ctx context.Context) error

	// SetOnline flips connectivity. Going online drains immediately; going
	// offline suspends cycles without touching queued state.
	SetOnline(ctx context.Context, online bool)

	// RetryFailed resets parked items back to pending and drains.
	RetryFailed(ctx context.Context) (int, error)

	// Status returns a read-only snapshot of the engine state.
	Status(ctx context.Context) (*Status, error)
}

// Stores groups the coordinator's local storage dependencies.
type Stores struct {
	Records storage.RecordStore
	Outbox  storage.OutboxStore
	Meta    storage.MetaStore
}

// DrainResult reports one outbox drain.
type DrainResult struct {
	Published int  // items acked and removed
	Failed    int  // items that stayed queued or got parked
	Skipped   bool // another drain was already running
}

// PullResult reports one pull-merge cycle.
type PullResult struct {
	Fetched   int // remote records returned by the query
	Adopted   int // records that won resolution and were stored
	Discarded int // records that lost resolution
	Skipped   int // records dropped for decrypt/encoding errors
}

// Status is a read-only snapshot of the engine.
type Status struct {
	Online       bool
	IsSyncing    bool
	LastSyncAt   int64 // unix milli of the last successful pull, 0 if never
	SyncError    string
	PendingCount int
	FailedCount  int
}

type coordinator struct {
	records storage.RecordStore
	outbox  storage.OutboxStore
	meta    storage.MetaStore
	keys    *keyring.Manager
	relay   transport.Adapter
	cfg     *config.Config
	logger  *slog.Logger

	// tenantTag scopes every publish, query, and subscription.
	tenantTag string

	online  atomic.Bool
	syncing atomic.Bool
	pulling atomic.Bool

	mu          sync.Mutex
	lastSyncErr string

	// now and retryBase are swapped in tests to control stamping and
	// backoff timing.
	now       func() time.Time
	retryBase time.Duration
}

// New creates a sync coordinator. All dependencies are injected; the
// coordinator holds no global state.
func New(stores Stores, keys *keyring.Manager, relay transport.Adapter, cfg *config.Config, tenantTag string, logger *slog.Logger) Service {
	c := &coordinator{
		records:   stores.Records,
		outbox:    stores.Outbox,
		meta:      stores.Meta,
		keys:      keys,
		relay:     relay,
		cfg:       cfg,
		logger:    logger,
		tenantTag: tenantTag,
		now:       time.Now,
		retryBase: 500 * time.Millisecond,
	}
	c.online.Store(true)
	return c
}

func (c *coordinator) Put(ctx context.Context, kind models.RecordKind, id string, data json.RawMessage) (*models.Record, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: kind %d", storage.ErrUnknownKind, kind)
	}
	if err := validation.ValidateRecordID(id); err != nil {
		return nil, err
	}

	var prev int64
	existing, err := c.records.Get(ctx, kind, id)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to read existing record: %w", err)
	}
	if existing != nil {
		prev = existing.UpdatedAt
	}

	record := &models.Record{
		ID:        id,
		Kind:      kind,
		UpdatedAt: nextTimestamp(prev, c.now()),
		Data:      data,
	}

	payload, err := c.seal(ctx, record)
	if err != nil {
		return nil, err
	}

	item := &models.OutboxItem{
		ID:        uuid.New().String(),
		RecordID:  record.ID,
		Kind:      record.Kind,
		Payload:   payload,
		UpdatedAt: record.UpdatedAt,
		Status:    models.OutboxPending,
		CreatedAt: c.now().UnixMilli(),
	}

	if err := c.records.UpsertWithOutbox(ctx, record, item); err != nil {
		return nil, fmt.Errorf("failed to store record with outbox item: %w", err)
	}

	c.logger.Debug("recorded local write",
		"kind", record.Kind.String(),
		"record_id", record.ID,
		"updated_at", record.UpdatedAt)

	return record, nil
}

func (c *coordinator) List(ctx context.Context, kind models.RecordKind) ([]*models.Record, error) {
	return c.records.ScanKind(ctx, kind)
}

func (c *coordinator) Drain(ctx context.Context) (*DrainResult, error) {
	if !c.syncing.CompareAndSwap(false, true) {
		return &DrainResult{Skipped: true}, nil
	}
	defer c.syncing.Store(false)

	items, err := c.outbox.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending items: %w", err)
	}

	result := &DrainResult{}
	for _, item := range items {
		if err := c.drainItem(ctx, item); err != nil {
			result.Failed++
			c.setSyncError(err)
			c.logger.Warn("outbox item not published",
				"item_id", item.ID,
				"record_id", item.RecordID,
				"error", err)
			continue
		}
		result.Published++
	}

	if result.Failed == 0 {
		c.setSyncError(nil)
	}

	c.logger.Info("outbox drained",
		"published", result.Published,
		"failed", result.Failed)

	return result, nil
}

// drainItem publishes one outbox item and settles its queue state.
func (c *coordinator) drainItem(ctx context.Context, item *models.OutboxItem) error {
	// Corrupt payloads are counted as attempts so they eventually park
	// instead of wedging the queue.
	if _, err := wire.DecodeEnvelope(item.Payload); err != nil {
		return c.settleFailure(ctx, item, fmt.Errorf("%w: %v", ErrEncoding, err))
	}

	tags := []transport.Tag{{Name: models.TenantTagName, Value: c.tenantTag}}

	var ack *transport.Ack
	backoff := retry.WithMaxRetries(2, retry.NewFibonacci(c.retryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		a, err := c.relay.Publish(ctx, int(item.Kind), item.RecordID, item.Payload, tags)
		if err != nil {
			return retry.RetryableError(err)
		}
		ack = a
		return nil
	})
	if err != nil {
		return c.settleFailure(ctx, item, fmt.Errorf("%w: %v", ErrTransport, err))
	}

	if err := c.outbox.MarkSynced(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to remove acked item: %w", err)
	}

	// Flag the local record as confirmed replicated, but only if it is still
	// the version this item carried. A newer write since enqueue stays
	// unconfirmed until its own outbox item is acked.
	record, err := c.records.Get(ctx, item.Kind, item.RecordID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if record.UpdatedAt != item.UpdatedAt {
		return nil
	}
	record.Synced = true
	record.RemoteID = ack.RemoteID
	if err := c.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("failed to flag record synced: %w", err)
	}

	return nil
}

// settleFailure records a failed attempt and reports whether the item parked.
func (c *coordinator) settleFailure(ctx context.Context, item *models.OutboxItem, cause error) error {
	updated, err := c.outbox.MarkFailed(ctx, item.ID, c.now().UnixMilli(), c.cfg.RetryCeiling)
	if err != nil {
		return fmt.Errorf("failed to record attempt for item %s: %w", item.ID, err)
	}
	if updated.Status == models.OutboxError {
		return fmt.Errorf("%w: item %s parked after %d attempts: %v",
			ErrCeilingExceeded, item.ID, updated.Attempts, cause)
	}
	return cause
}

func (c *coordinator) Pull(ctx context.Context) (*PullResult, error) {
	c.pulling.Store(true)
	defer c.pulling.Store(false)

	since, err := c.meta.GetLastSyncAt(ctx)
	if err != nil {
		c.logger.Warn("failed to read sync watermark, pulling from zero", "error", err)
		since = 0
	}

	filter := models.RemoteRecordFilter{
		Kinds: models.Kinds(),
		Since: since,
		Limit: c.cfg.PullLimit,
	}.WithTenant(c.tenantTag)

	remotes, err := c.relay.Query(ctx, filter)
	if err != nil {
		wrapped := fmt.Errorf("%w: query failed: %v", ErrTransport, err)
		c.setSyncError(wrapped)
		return nil, wrapped
	}

	result := &PullResult{Fetched: len(remotes)}
	watermark := since
	for _, remote := range remotes {
		adopted, err := c.merge(ctx, remote)
		if err != nil {
			result.Skipped++
			c.logger.Warn("skipping remote record",
				"remote_id", remote.RemoteID,
				"kind", remote.Kind,
				"error", err)
			continue
		}
		if adopted {
			result.Adopted++
		} else {
			result.Discarded++
		}
		if remote.CreatedAt > watermark {
			watermark = remote.CreatedAt
		}
	}

	if watermark > since {
		if err := c.meta.SaveLastSyncAt(ctx, watermark); err != nil {
			return result, fmt.Errorf("failed to save sync watermark: %w", err)
		}
	}
	c.setSyncError(nil)

	c.logger.Info("pull complete",
		"fetched", result.Fetched,
		"adopted", result.Adopted,
		"discarded", result.Discarded,
		"skipped", result.Skipped)

	return result, nil
}

// merge feeds one remote record through decryption, decoding, and conflict
// resolution. Both the pull path and the live subscription land here, so
// duplicate delivery of the same record converges to the same state.
func (c *coordinator) merge(ctx context.Context, remote transport.RemoteRecord) (bool, error) {
	env, err := wire.DecodeEnvelope(remote.Payload)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	plaintext, err := c.keys.Decrypt(ctx, &models.EncryptedEnvelope{
		Version:     env.Version,
		Algorithm:   env.Algorithm,
		KeyID:       env.KeyID,
		Nonce:       env.Nonce,
		Ciphertext:  env.Ciphertext,
		EncryptedAt: env.EncryptedAt,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	wr, err := wire.DecodeRecord(plaintext)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	kind, err := models.KindFromInt(wr.Kind)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	local, err := c.records.Get(ctx, kind, wr.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrRecordNotFound) {
			return false, err
		}
		local = nil
	}

	candidate := &models.Record{
		ID:        wr.ID,
		Kind:      kind,
		UpdatedAt: wr.UpdatedAt,
		Data:      wr.Data,
		RemoteID:  remote.RemoteID,
		Synced:    true,
	}

	decision := resolver.Resolve(local, candidate)
	c.logger.Debug("resolved remote record",
		"kind", kind.String(),
		"record_id", wr.ID,
		"adopt", decision.AdoptRemote,
		"reason", decision.Reason)

	if !decision.AdoptRemote {
		return false, nil
	}
	if err := c.records.Upsert(ctx, candidate); err != nil {
		return false, fmt.Errorf("failed to store adopted record: %w", err)
	}
	return true, nil
}

func (c *coordinator) Run(ctx context.Context) error {
	filter := models.RemoteRecordFilter{
		Kinds: models.Kinds(),
	}.WithTenant(c.tenantTag)

	stop, err := c.relay.Subscribe(ctx, filter, func(remote transport.RemoteRecord) {
		if !c.online.Load() {
			return
		}
		if _, err := c.merge(ctx, remote); err != nil {
			c.logger.Warn("skipping live record",
				"remote_id", remote.RemoteID,
				"error", err)
		}
	})
	if err != nil {
		// The interval cycle still makes progress without a live feed.
		c.logger.Warn("live subscription unavailable", "error", err)
	} else {
		defer stop()
	}

	c.cycle(ctx)

	ticker := time.NewTicker(c.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.cycle(ctx)
		}
	}
}

// cycle runs one drain-then-pull pass, skipped entirely while offline.
func (c *coordinator) cycle(ctx context.Context) {
	if !c.online.Load() {
		return
	}
	if _, err := c.Drain(ctx); err != nil {
		c.logger.Warn("drain failed", "error", err)
	}
	if _, err := c.Pull(ctx); err != nil {
		c.logger.Warn("pull failed", "error", err)
	}
}

func (c *coordinator) SetOnline(ctx context.Context, online bool) {
	was := c.online.Swap(online)
	if was == online {
		return
	}

	c.logger.Info("connectivity changed", "online", online)
	if online {
		c.cycle(ctx)
	}
}

func (c *coordinator) RetryFailed(ctx context.Context) (int, error) {
	reset, err := c.outbox.RetryFailed(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset parked items: %w", err)
	}
	if reset == 0 {
		return 0, nil
	}

	c.logger.Info("parked items reset", "count", reset)
	if c.online.Load() {
		if _, err := c.Drain(ctx); err != nil {
			return reset, err
		}
	}
	return reset, nil
}

func (c *coordinator) Status(ctx context.Context) (*Status, error) {
	pending, err := c.outbox.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := c.outbox.CountFailed(ctx)
	if err != nil {
		return nil, err
	}
	lastSyncAt, err := c.meta.GetLastSyncAt(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	syncErr := c.lastSyncErr
	c.mu.Unlock()

	return &Status{
		Online:       c.online.Load(),
		IsSyncing:    c.syncing.Load() || c.pulling.Load(),
		LastSyncAt:   lastSyncAt,
		SyncError:    syncErr,
		PendingCount: pending,
		FailedCount:  failed,
	}, nil
}

// seal marshals a record into its wire form and wraps it in an encrypted
// envelope ready for publishing.
func (c *coordinator) seal(ctx context.Context, record *models.Record) ([]byte, error) {
	plaintext, err := wire.EncodeRecord(wire.Record{
		ID:        record.ID,
		Kind:      int(record.Kind),
		UpdatedAt: record.UpdatedAt,
		Data:      record.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	env, err := c.keys.Encrypt(ctx, plaintext, "")
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt record: %w", err)
	}

	payload, err := wire.EncodeEnvelope(wire.Envelope{
		Version:     env.Version,
		Algorithm:   env.Algorithm,
		KeyID:       env.KeyID,
		Nonce:       env.Nonce,
		Ciphertext:  env.Ciphertext,
		EncryptedAt: env.EncryptedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return payload, nil
}

func (c *coordinator) setSyncError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.lastSyncErr = ""
		return
	}
	c.lastSyncErr = err.Error()
}
