package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martijn/vaultkeeper/internal/api"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// shutdownGrace is added to the store timeout so in-flight backups and
// restores can finish before the listener closes
const shutdownGrace = 10 * time.Second

var (
	serverHost string
	serverPort int
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the admin API server",
	Long:  "Serve the migration, backup and restore admin API until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("host") {
			cfg.APIHost = serverHost
		}
		if cmd.Flags().Changed("port") {
			cfg.APIPort = serverPort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		services, err := initServices(ctx)
		if err != nil {
			return err
		}
		defer services.Close()

		return serve(ctx, api.NewServer(cfg, services.Services, services.Metrics, services.Log), services.Log)
	},
}

// serve runs the server until ctx is cancelled or the listener fails
func serve(ctx context.Context, server *api.Server, log logrus.FieldLogger) error {
	listenErr := make(chan error, 1)
	go func() {
		listenErr <- server.Start()
	}()

	log.WithFields(logrus.Fields{
		"host": cfg.APIHost,
		"port": cfg.APIPort,
	}).Info("Admin API listening")

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		log.Info("Shutting down gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout+shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	log.Info("Server stopped")
	return nil
}

func init() {
	serverCmd.Flags().StringVar(&serverHost, "host", "", "Override the configured listen host")
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "Override the configured listen port")
	rootCmd.AddCommand(serverCmd)
}
