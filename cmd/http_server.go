package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/scriptdeck/internal/auth"
	"github.com/frahmantamala/scriptdeck/internal/execution"
	"github.com/frahmantamala/scriptdeck/internal/gate"
	"github.com/frahmantamala/scriptdeck/internal/module"
	"github.com/frahmantamala/scriptdeck/internal/role"
	"github.com/frahmantamala/scriptdeck/internal/transport"
	"github.com/frahmantamala/scriptdeck/internal/transport/rest"
	"github.com/frahmantamala/scriptdeck/internal/user"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

func startHTTPServer() {
	deps, err := openDependencies(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	log := deps.Logger

	ctx := context.Background()
	if err := deps.Roles.EnsureBuiltIns(ctx); err != nil {
		log.Error("failed to ensure built-in roles", "error", err)
		os.Exit(1)
	}

	router := setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	log.Info("starting http server", "address", addr, "scripts_dir", deps.Config.Execution.ScriptsDir)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
		// in-flight executions finish on their own timeout; give them the
		// longest one before forcing the listener closed
		shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.Execution.MaxTimeout+5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", "error", err)
		}
		if err := deps.Bus.Drain(shutdownCtx); err != nil {
			log.Warn("event handlers still running at shutdown", "error", err)
		}
		if err := deps.Close(); err != nil {
			log.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	log.Info("server stopped")
}

func setupRoutes(deps *Dependencies) *chi.Mux {
	base := transport.NewBaseHandler(deps.Logger)
	cfg := deps.Config

	handlers := rest.Handlers{
		Auth:      auth.NewHandler(base, deps.Auth),
		User:      user.NewHandler(base, deps.Users),
		Gate:      gate.NewHandler(base, deps.Gate, cfg.Execution.ExposeStderr, cfg.RateLimit.ExecutePerMinute),
		Module:    module.NewHandler(base, deps.Modules),
		Role:      role.NewHandler(base, deps.Roles),
		Execution: execution.NewHandler(base, deps.Executions),
	}
	opts := rest.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		DBComponent:    cfg.Database.Driver,
	}
	if deps.Metrics != nil {
		opts.MetricsPath = cfg.Observability.Metrics.Path
		opts.Metrics = deps.Metrics.Handler()
	}

	router := chi.NewRouter()
	rest.RegisterAllRoutes(router, deps.SQL, handlers, opts, deps.Logger)
	return router
}
