package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/modelscope/ms-enclave/internal/api"
	"github.com/modelscope/ms-enclave/internal/manager"
	"github.com/modelscope/ms-enclave/internal/model"
	"github.com/modelscope/ms-enclave/internal/sandbox"

	// Register sandbox kinds.
	_ "github.com/modelscope/ms-enclave/internal/sandbox/container"
	_ "github.com/modelscope/ms-enclave/internal/sandbox/notebook"
	"github.com/modelscope/ms-enclave/internal/tools"
)

var (
	servePort            string
	serveCleanupInterval time.Duration
	serveIdleTTL         time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the enclave sandbox server in-process",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer(servePort, serveCleanupInterval, serveIdleTTL)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "8080", "HTTP server port")
	serveCmd.Flags().DurationVar(&serveCleanupInterval, "cleanup-interval", 30*time.Second, "janitor sweep cadence")
	serveCmd.Flags().DurationVar(&serveIdleTTL, "idle-ttl", 0, "idle sandbox reclamation TTL (0 disables)")
	RootCmd.AddCommand(serveCmd)
}

// RunServer builds the manager and HTTP server and blocks until a
// shutdown signal arrives or the server fails to start. Shared by the
// serve subcommand and the standalone enclaved entrypoint.
func RunServer(port string, cleanupInterval, idleTTL time.Duration) {
	log.Info().Str("port", port).Msg("starting enclave sandbox server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	mgr := manager.New(model.SandboxManagerConfig{
		CleanupInterval: cleanupInterval,
		IdleTTL:         idleTTL,
	}, sandbox.DefaultSandboxRegistry, tools.DefaultRegistry)
	if err := mgr.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start manager")
	}

	srv := api.New(mgr)
	srv.RegisterRoutes()
	srv.Echo.HideBanner = true
	srv.Echo.HidePort = true

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", port).Msg("listening")
		serverErr <- srv.Echo.Start(":" + port)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}
		if err := mgr.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("manager cleanup reported errors")
		}
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("server startup failed")
	}
}
