// Package cli implements the tillsync command-line interface. Commands are
// methods on Cli; the transport connection is established only for commands
// that actually touch the network, so local reads and writes work offline.
package cli

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/opentill/tillsync/internal/cli/iocli"
	"github.com/opentill/tillsync/internal/config"
	"github.com/opentill/tillsync/internal/crypto"
	"github.com/opentill/tillsync/internal/keyring"
	"github.com/opentill/tillsync/internal/models"
	"github.com/opentill/tillsync/internal/storage"
	"github.com/opentill/tillsync/internal/syncer"
	"github.com/opentill/tillsync/internal/transport"
	"github.com/opentill/tillsync/internal/transport/relay"
	"github.com/opentill/tillsync/internal/validation"
)

// passphraseEnv overrides the interactive passphrase prompt.
const passphraseEnv = "TILLSYNC_PASSPHRASE"

// ErrOffline is returned when a local-only invocation reaches for the
// network.
var ErrOffline = errors.New("not connected to a relay")

type Cli struct {
	io     iocli.IO
	cfg    *config.Config
	store  storage.Store
	keys   *keyring.Manager
	logger *slog.Logger

	// PassphraseFile optionally points at a file holding the encryption
	// passphrase, for non-interactive use.
	PassphraseFile string

	relayClient *relay.Client
}

func New(io iocli.IO, cfg *config.Config, store storage.Store, keys *keyring.Manager, logger *slog.Logger) *Cli {
	return &Cli{
		io:     io,
		cfg:    cfg,
		store:  store,
		keys:   keys,
		logger: logger,
	}
}

// Close releases the relay connection if one was established.
func (c *Cli) Close() error {
	if c.relayClient != nil {
		return c.relayClient.Close()
	}
	return nil
}

// unlock derives the tenant's shared data key from the passphrase and
// installs it. Every device of a tenant derives the same key and the same
// key id, which is what makes envelopes portable between devices.
func (c *Cli) unlock(ctx context.Context) error {
	passphrase, err := c.readPassphrase()
	if err != nil {
		return err
	}
	if err := validation.ValidatePassphrase(passphrase); err != nil {
		return err
	}

	salt := keySalt(c.cfg.TenantSecret)
	key, err := crypto.DeriveKey(passphrase, salt, c.cfg.KDFIterations)
	if err != nil {
		return fmt.Errorf("failed to derive data key: %w", err)
	}

	if _, err := c.keys.ImportSharedKey(ctx, models.KeyTypeData, key); err != nil {
		return fmt.Errorf("failed to install data key: %w", err)
	}
	return nil
}

// readPassphrase resolves the passphrase: environment variable, then file,
// then interactive prompt.
func (c *Cli) readPassphrase() (string, error) {
	if env := os.Getenv(passphraseEnv); env != "" {
		return env, nil
	}

	if c.PassphraseFile != "" {
		content, err := os.ReadFile(c.PassphraseFile)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase file: %w", err)
		}
		passphrase := strings.TrimSpace(string(content))
		if passphrase == "" {
			return "", fmt.Errorf("passphrase file is empty")
		}
		return passphrase, nil
	}

	passphrase, err := c.io.ReadSecret("Passphrase: ")
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}

// service builds the sync coordinator. Network commands dial the relay;
// local commands get an adapter that fails with ErrOffline if ever reached.
func (c *Cli) service(ctx context.Context, network bool) (syncer.Service, error) {
	if err := validation.ValidateTenantSecret(c.cfg.TenantSecret); err != nil {
		return nil, fmt.Errorf("invalid tenant secret (use -tenant): %w", err)
	}

	if err := c.unlock(ctx); err != nil {
		return nil, err
	}

	deviceID, err := c.store.DeviceID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve device id: %w", err)
	}

	var adapter transport.Adapter = offlineAdapter{}
	if network {
		client, err := relay.Dial(ctx, c.cfg.RelayURL, c.cfg.TenantSecret, deviceID, c.logger)
		if err != nil {
			return nil, err
		}
		c.relayClient = client
		adapter = client
	}

	tenantTag := relay.TenantTag(c.cfg.TenantSecret)
	stores := syncer.Stores{Records: c.store, Outbox: c.store, Meta: c.store}

	return syncer.New(stores, c.keys, adapter, c.cfg, tenantTag, c.logger), nil
}

// keySalt derives the KDF salt from the tenant secret. Deterministic on
// purpose: every device of the tenant must derive the same key.
func keySalt(tenantSecret string) []byte {
	sum := sha256.Sum256([]byte("tillsync.keysalt:" + tenantSecret))
	return sum[:crypto.SaltSize]
}

// offlineAdapter serves local-only command invocations.
type offlineAdapter struct{}

func (offlineAdapter) Publish(context.Context, int, string, []byte, []transport.Tag) (*transport.Ack, error) {
	return nil, ErrOffline
}

func (offlineAdapter) Query(context.Context, models.RemoteRecordFilter) ([]transport.RemoteRecord, error) {
	return nil, ErrOffline
}

func (offlineAdapter) Subscribe(context.Context, models.RemoteRecordFilter, transport.Handler) (func(), error) {
	return nil, ErrOffline
}
