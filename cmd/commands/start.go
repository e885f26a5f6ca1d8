package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/codycordova/codychain/pkg/auth"
	"github.com/codycordova/codychain/pkg/core"
	"github.com/codycordova/codychain/pkg/db"
	"github.com/codycordova/codychain/pkg/keystore"
	"github.com/codycordova/codychain/pkg/registry"
	"github.com/codycordova/codychain/pkg/rpc"
	"github.com/codycordova/codychain/pkg/store"
)

// startCommand represents the start command
var startCommand = &cobra.Command{
	Use:   "start",
	Short: "Start the Codychain node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode()
	},
}

// runNode wires the node together and blocks until shutdown
func runNode() error {
	logger := newLogger(viper.GetString("log-level"))
	slog.SetDefault(logger)

	dataDirectory := viper.GetString("data-dir")
	if err := os.MkdirAll(dataDirectory, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Open the snapshot database
	backend := db.DBType(viper.GetString("db"))
	database, err := db.NewDatabase(backend)
	if err != nil {
		return err
	}
	if err := database.Open(databasePath(dataDirectory, backend)); err != nil {
		return fmt.Errorf("opening %s database: %w", backend, err)
	}
	defer database.Close()

	snapshots := store.New(database, logger)

	// Register stored operator keys with the identity registry
	reg, err := registry.Bootstrap()
	if err != nil {
		return err
	}
	keys := keystore.New(filepath.Join(dataDirectory, "keys"))
	names, err := keys.List()
	if err != nil {
		return fmt.Errorf("listing keys: %w", err)
	}
	for _, name := range names {
		publicKey, err := keys.LoadPublicKey(name)
		if err != nil {
			logger.Warn("skipping unreadable key", "name", name, "error", err)
			continue
		}
		reg.SetPublicKey(name, publicKey)
		logger.Info("registered public key", "name", name)
	}

	hub := rpc.NewHub(logger)

	ledger, err := core.NewLedger(core.Config{
		Registry:             reg,
		Store:                snapshots,
		Listener:             hub,
		Logger:               logger,
		PermissiveSignatures: viper.GetBool("permissive-signatures"),
	})
	if err != nil {
		return fmt.Errorf("building ledger: %w", err)
	}

	server := rpc.NewServer(rpc.Config{
		ListenAddr: viper.GetString("rpc"),
		Ledger:     ledger,
		Auth:       auth.NewManager(reg),
		Hub:        hub,
		Logger:     logger,
		CORSOrigin: viper.GetString("cors-origin"),
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("starting rpc server: %w", err)
	}

	logger.Info("node started",
		"rpc", viper.GetString("rpc"),
		"db", string(backend),
		"data_dir", dataDirectory,
		"blocks", ledger.Length())

	// Block until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("rpc shutdown failed", "error", err)
	}
	if err := ledger.Persist(); err != nil {
		logger.Error("final snapshot failed", "error", err)
	}
	return nil
}

// newLogger builds the process logger at the configured level
func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}

// databasePath returns where a backend keeps its data. Bolt wants a file,
// the others want a directory.
func databasePath(dataDirectory string, backend db.DBType) string {
	if backend == db.BoltDB {
		return filepath.Join(dataDirectory, "chain.db")
	}
	return filepath.Join(dataDirectory, "db")
}
