package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentill/tillsync/internal/cli"
	"github.com/opentill/tillsync/internal/cli/iocli"
	"github.com/opentill/tillsync/internal/config"
	"github.com/opentill/tillsync/internal/keyring"
	"github.com/opentill/tillsync/internal/storage"
	"github.com/opentill/tillsync/internal/storage/boltdb"
	"github.com/opentill/tillsync/internal/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	relayURL := flag.String("relay", "ws://localhost:8090", "Relay websocket URL")
	tenant := flag.String("tenant", "", "Tenant shared secret")
	dbPath := flag.String("db", "tillsync.db", "Path to local database")
	backend := flag.String("backend", "bolt", "Local database backend: bolt or sqlite")
	passFile := flag.String("passfile", "", "Path to file containing the encryption passphrase")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg := config.Default()
	cfg.RelayURL = *relayURL
	cfg.TenantSecret = *tenant
	cfg.DBPath = *dbPath
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, *backend, cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	keys := keyring.New(store, keyring.Config{
		Algorithm:     cfg.Algorithm,
		KDFIterations: cfg.KDFIterations,
		GracePeriod:   cfg.KeyGracePeriod,
	}, logger)

	app := cli.New(iocli.NewStdio(), cfg, store, keys, logger)
	app.PassphraseFile = *passFile
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close relay connection", "error", err)
		}
	}()

	if err := run(ctx, app, command, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *cli.Cli, command string, args []string) error {
	switch command {
	case "status":
		return app.RunStatus(ctx)
	case "sync":
		return app.RunSync(ctx)
	case "retry":
		return app.RunRetry(ctx)
	case "rotate-key":
		return app.RunRotateKey(ctx)
	case "list":
		if len(args) != 1 {
			return fmt.Errorf("usage: tillsync list <kind>")
		}
		return app.RunList(ctx, args[0])
	case "put":
		if len(args) != 3 {
			return fmt.Errorf("usage: tillsync put <kind> <id> <json>")
		}
		return app.RunPut(ctx, args[0], args[1], args[2])
	case "run":
		return app.RunDaemon(ctx)
	default:
		cli.PrintUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func openStore(ctx context.Context, backend, dbPath string) (storage.Store, error) {
	switch backend {
	case "bolt":
		return boltdb.New(ctx, dbPath)
	case "sqlite":
		return sqlite.New(ctx, dbPath)
	default:
		return nil, fmt.Errorf("unknown backend %q (want bolt or sqlite)", backend)
	}
}

func printVersion() {
	fmt.Printf("TillSync Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
