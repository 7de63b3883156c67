// Command exchangevault stores exchange API credentials encrypted under a
// user-supplied password and serves them over a local REST API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	postgresadapter "github.com/ericfisherdev/exchangevault/internal/adapter/driven/postgres"
	sqliteadapter "github.com/ericfisherdev/exchangevault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/exchangevault/internal/adapter/driven/vaultcrypto"
	"github.com/ericfisherdev/exchangevault/internal/application"
	"github.com/ericfisherdev/exchangevault/internal/config"
	"github.com/ericfisherdev/exchangevault/internal/domain/model"
	"github.com/ericfisherdev/exchangevault/internal/domain/port/driven"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}

// rootOptions holds state shared by every subcommand.
type rootOptions struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "exchangevault",
		Short: "Password-protected vault for exchange API credentials",
		Long: `exchangevault keeps API keys for crypto exchanges encrypted at rest.
Every record is sealed under a password that is never stored; the password is
supplied per request over the REST API or prompted for on the command line.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is optional; real environment variables win.
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}

			cfg, err := config.Load(opts.configFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd.ErrOrStderr(), cfg)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (yaml, toml or json)")

	cmd.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newShowCmd(opts),
		newRemoveCmd(opts),
		newImportEnvCmd(opts),
		newExchangesCmd(opts),
	)

	return cmd
}

// newLogger builds the process logger from the configured format and level.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// openVault opens the configured store, runs migrations, and wires the vault
// service. The returned close function releases the store.
func openVault(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application.VaultService, func() error, error) {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	codec, err := vaultcrypto.NewCodec(cfg.KDF)
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("configure key derivation: %w", err)
	}

	svc := application.NewVaultService(model.DefaultRegistry(), codec, store, cfg.StoreTimeout, logger)
	return svc, closeStore, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (driven.VaultStore, func() error, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := postgresadapter.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := postgresadapter.RunMigrations(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Debug("database opened", "driver", cfg.DBDriver)
		return postgresadapter.NewCredentialRepo(db), db.Close, nil

	default:
		// Dual reader/writer with WAL mode.
		db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Debug("database opened", "driver", cfg.DBDriver, "path", db.Path())
		return sqliteadapter.NewCredentialRepo(db), db.Close, nil
	}
}
