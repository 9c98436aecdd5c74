package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"reins/internal/api"
	"reins/internal/config"
	"reins/internal/credstore"
	"reins/internal/daemon"
	"reins/internal/mcpserver"
	"reins/internal/service"
	"reins/internal/stream"
	"reins/internal/workspace"
	"reins/pkg/logging"
)

var (
	serveConfigPath string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the integration daemon",
	Long: `Starts the daemon: opens the encrypted credential store, wires the
integration service, and serves the meta-tool over MCP streamable HTTP.

The daemon reads its configuration from ~/.reins/config.yaml (override
with --config) and environment variables prefixed REINS_. The credential
encryption secret is only read from REINS_CREDENTIAL_ENCRYPTION_SECRET;
without it credentials are held in memory and lost on restart.

The process runs until SIGTERM or SIGINT and exits 0 on clean shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	level := logging.ParseLevel(cfg.LogLevel)
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	runtime := daemon.NewRuntime(daemon.Options{
		ShutdownTimeout: cfg.Daemon.ShutdownTimeout.Std(),
	})

	var store credstore.Store
	if cfg.Credentials.EncryptionSecret != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Credentials.StorePath), 0o700); err != nil {
			return fmt.Errorf("failed to create credential store directory: %w", err)
		}
		store, err = credstore.OpenBolt(cfg.Credentials.StorePath, cfg.Credentials.EncryptionSecret)
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		if err := runtime.RegisterService(daemon.ServiceFunc{
			Name:     "credential-store",
			StopFunc: func(ctx context.Context, sig os.Signal) error { return store.Close() },
		}); err != nil {
			return err
		}
	} else {
		logging.Warn("Serve", "REINS_CREDENTIAL_ENCRYPTION_SECRET is not set, credentials will not be persisted")
	}

	if _, err := workspace.NewManager(cfg.Workspace.DataRoot); err != nil {
		return err
	}

	streams := stream.NewRegistry()
	api.RegisterStreamPublisher(streams)
	emitter := stream.NewEmitter(cfg.Stream.ProgressInterval.Std())
	emitter.AddListener(func(event stream.ProgressEvent) {
		if err := streams.Publish(event.StreamKey, event); err != nil {
			logging.Warn("Serve", "Failed to publish progress for %s: %v", event.StreamKey, err)
		}
	})

	svc, err := service.New(service.Options{
		Store:        store,
		MasterSecret: cfg.Credentials.EncryptionSecret,
	})
	if err != nil {
		return err
	}
	if err := runtime.RegisterService(daemon.ServiceFunc{
		Name:      "integration-service",
		StartFunc: svc.Start,
		StopFunc:  func(ctx context.Context, sig os.Signal) error { return svc.Stop(ctx) },
	}); err != nil {
		return err
	}

	if err := runtime.RegisterService(mcpserver.New(cfg.Daemon.ListenAddr, GetVersion(), svc.Tools())); err != nil {
		return err
	}

	watcher, err := config.NewWatcher(serveConfigPath, func(updated config.Config) {
		logging.Init(logging.ParseLevel(updated.LogLevel), os.Stderr)
	})
	if err != nil {
		logging.Warn("Serve", "Config watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	if err := runtime.Run(cmd.Context()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultPath(), "Path to the config file")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd)
}
