// Package serve handles the HTTP server command
package serve

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"fjacquet/statement-ingest/cmd/root"
	"fjacquet/statement-ingest/internal/logging"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var addr string

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the statement API over HTTP",
	Long: `Serve the statement API:

  GET  /api/health      liveness
  GET  /api/formats     supported bank formats
  POST /api/statements  multipart upload (file, format, ocr, bank, currency, password, attempt)
  GET  /metrics         Prometheus metrics`,
	RunE: serveFunc,
}

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")
}

func serveFunc(cmd *cobra.Command, args []string) error {
	appContainer := root.GetContainer()
	if appContainer == nil {
		return errors.New("container not initialized")
	}
	logger := appContainer.GetLogger()
	listenAddr := addr
	if listenAddr == "" {
		listenAddr = appContainer.GetConfig().Server.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := appContainer.GetServer()
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(listenAddr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server", logging.F("timeout", shutdownTimeout.String()))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
