package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/uaproxy/internal/api"
	"github.com/kalambet/uaproxy/internal/config"
	"github.com/kalambet/uaproxy/internal/identity"
	"github.com/kalambet/uaproxy/internal/logging"
	"github.com/kalambet/uaproxy/internal/proxy"
	"github.com/kalambet/uaproxy/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control API and the forward proxy (foreground)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show uaproxy status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

// identityDeps is what the configured backing contributes to the server.
type identityDeps struct {
	backing identity.Backing
	history api.HistoryLister
	close   func() error
}

func openBacking(cfg config.Config, logger *slog.Logger) (identityDeps, error) {
	switch cfg.Identity.Backing {
	case config.BackingMemory:
		return identityDeps{backing: identity.NewMemoryBacking(), close: func() error { return nil }}, nil
	case config.BackingSQLite:
		db, err := storage.Open(cfg.DBFilePath())
		if err != nil {
			return identityDeps{}, fmt.Errorf("opening storage: %w", err)
		}
		b := db.Identity(logger)
		return identityDeps{backing: b, history: b, close: db.Close}, nil
	default:
		return identityDeps{
			backing: identity.NewFileBacking(cfg.StateFilePath(), logger),
			close:   func() error { return nil },
		}, nil
	}
}

func loadPool(cfg config.Config) (*identity.Pool, error) {
	if cfg.Identity.PoolFile == "" {
		return identity.DefaultPool(), nil
	}
	pool, err := identity.LoadPool(cfg.Identity.PoolFile)
	if err != nil {
		return nil, fmt.Errorf("loading identity pool: %w", err)
	}
	return pool, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "uaproxy version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, logCloser := logging.New(cfg.Log.Level, cfg.Log.File)
	defer logCloser.Close()
	slog.SetDefault(logger)

	deps, err := openBacking(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.Warn("closing identity backing", "error", err)
		}
	}()

	pool, err := loadPool(cfg)
	if err != nil {
		return err
	}

	store := identity.New(deps.backing,
		identity.WithDefault(cfg.Identity.Default),
		identity.WithLogger(logger),
	)
	logger.Info("identity ready", "backing", cfg.Identity.Backing, "user_agent", store.Get())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controlSrv := &http.Server{
		Addr: fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
		Handler: api.NewControlHandler(api.ControlDeps{
			Store:   store,
			Pool:    pool,
			History: deps.history,
			Token:   cfg.Server.APIToken,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	proxySrv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Server.ProxyPort),
		Handler:           proxy.NewForwardProxy(proxy.NewInterceptor(store), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("control API listening", "addr", controlSrv.Addr)
		return listen(controlSrv)
	})
	g.Go(func() error {
		logger.Info("forward proxy listening", "addr", proxySrv.Addr)
		return listen(proxySrv)
	})

	if cfg.Server.MCPStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:   store,
			Pool:    pool,
			Version: version,
			Logger:  logger,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			logger.Info("MCP server started (stdio transport)")
			err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			controlSrv.Shutdown(shutdownCtx),
			proxySrv.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listening on %s: %w", srv.Addr, err)
	}
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	resp, err := client.get(ctx, "/health")
	switch {
	case err != nil:
		printStatus("Server", "stopped")
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	default:
		resp.Body.Close()
		printStatus("Server", "running on port %d", cfg.Server.Port)

		ua, err := client.get(ctx, "/get_ua")
		if err == nil {
			var result map[string]string
			if decodeJSON(ua, &result) == nil {
				printStatus("User-Agent", "%s", result["user_agent"])
			}
		}
	}

	printStatus("Proxy port", "%d", cfg.Server.ProxyPort)
	printStatus("Backing", "%s", cfg.Identity.Backing)
	switch cfg.Identity.Backing {
	case config.BackingFile:
		printStatus("State file", "%s", cfg.StateFilePath())
	case config.BackingSQLite:
		printStatus("Database", "%s", cfg.DBFilePath())
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
