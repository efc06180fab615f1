// Command proxima is the CLI entry point for the personal AI assistant
// backend: it wires the Database Actor, the AI Endpoint Actor, and the
// HTTP surface together and drives them until shutdown.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pedrow21/proxima/internal/apiserver"
	"github.com/pedrow21/proxima/internal/auth"
	"github.com/pedrow21/proxima/internal/backend"
	"github.com/pedrow21/proxima/internal/backend/anthropic"
	"github.com/pedrow21/proxima/internal/config"
	"github.com/pedrow21/proxima/internal/endpoint"
	"github.com/pedrow21/proxima/internal/store"
	"github.com/pedrow21/proxima/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	profilePath string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "proxima",
		Short:        "Proxima - personal AI assistant backend",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&profilePath, "profile", "", "path to a YAML configuration profile")
	root.AddCommand(buildServeCmd(), buildMigrateCmd(), buildStatusCmd())
	return root
}

func loadConfig(args []string) (*config.Config, error) {
	if profilePath != "" {
		return config.Load(profilePath)
	}
	if len(args) < 4 {
		return nil, fmt.Errorf("usage: proxima serve <username> <password_hash> <data_path> <backend_url> [port]")
	}
	port := config.DefaultPort
	if len(args) >= 5 {
		parsed, err := strconv.Atoi(args[4])
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", args[4], err)
		}
		port = parsed
	}
	return config.FromPositionalArgs(args[0], args[1], args[2], args[3], port)
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [username] [password_hash] [data_path] [backend_url] [port]",
		Short: "Run the HTTP server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Load and immediately re-save the data directory's snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			snap, err := store.NewSnapshotter(cfg.DataPath)
			if err != nil {
				return err
			}
			db, err := store.Load(cfg.DataPath)
			if err != nil {
				return err
			}
			if err := snap.Write(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migration complete")
			return nil
		},
	}
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the data directory's entity counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}
			db, err := store.Load(cfg.DataPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "devices: %d\n", len(db.Devices.All()))
			fmt.Fprintf(out, "chats: %d\n", len(db.Chats.All()))
			fmt.Fprintf(out, "tags: %d\n", len(db.Tags.All()))
			fmt.Fprintf(out, "configs: %d\n", len(db.Configs.All()))
			fmt.Fprintf(out, "files: %d\n", len(db.Files.All()))
			fmt.Fprintf(out, "folders: %d\n", len(db.Folders.All()))
			return nil
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	snap, err := store.NewSnapshotter(cfg.DataPath)
	if err != nil {
		return err
	}
	db, err := store.Load(cfg.DataPath)
	if err != nil {
		return err
	}
	if db.UserData.Pseudonym == "" {
		db = models.NewDatabase(cfg.Username, cfg.PasswordHash, time.Now().Unix())
	}

	st := store.NewActor(db, snap, slog.Default())
	go st.Run()
	defer st.Close()

	saver := store.StartPeriodicSave(st, cfg.SaveEvery)
	defer saver.Stop()

	ep := endpoint.NewActor(endpoint.Config{
		NewAdapter:   newBackendAdapter(cfg),
		Store:        st,
		SearchBase:   cfg.SearchBase,
		PyExecBroker: cfg.PyExecBroker,
		Now:          func() int64 { return time.Now().Unix() },
		Log:          slog.Default(),
	})
	go ep.Run()
	defer ep.Close()

	srv := apiserver.NewServer(apiserver.Config{
		Store:    st,
		Endpoint: ep,
		Auth:     auth.NewService(cfg.JWTSecret, cfg.TokenExpiry),
		MediaDir: cfg.MediaDir,
		Now:      func() int64 { return time.Now().Unix() },
		Log:      slog.Default(),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- httpServer.ListenAndServe() }()

	slog.Info("proxima serving", "port", cfg.Port)
	select {
	case <-serveCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func newBackendAdapter(cfg *config.Config) endpoint.NewAdapter {
	return func() (backend.Adapter, error) {
		return anthropic.New(anthropic.Config{
			APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL: cfg.BackendURL,
		})
	}
}
