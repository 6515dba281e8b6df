package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmsu-cs/bbfs/internal/config"
	"github.com/nmsu-cs/bbfs/internal/logger"
	"github.com/nmsu-cs/bbfs/pkg/metrics"
	"github.com/nmsu-cs/bbfs/pkg/node"
)

func runStart(cmd *cobra.Command, args []string) error {
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bbfsnode: invalid port %q: %w", args[0], err)
	}
	storageDir := args[1]

	cfg, err := config.LoadNode(GetConfigFile())
	if err != nil {
		return err
	}
	cfg.Port = port
	cfg.StorageDir = storageDir

	if metricsAddr, _ := cmd.Flags().GetString("metrics-addr"); metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("bbfsnode: init logger: %w", err)
	}

	if os.Geteuid() == 0 {
		return fmt.Errorf("bbfsnode: refusing to run as root")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var m *metrics.Node
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		m = metrics.NewNode(nil)
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
	}

	srv, err := node.New(cfg.StorageDir, m)
	if err != nil {
		return fmt.Errorf("bbfsnode: %w", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	serveDone := make(chan error, 1)
	go func() {
		logger.Info("node server listening", "addr", addr, "storage_dir", cfg.StorageDir)
		serveDone <- srv.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received, closing node server")
		cancel()
		if err := srv.Close(); err != nil {
			logger.Error("node server close error", logger.Err(err))
		}
		<-serveDone
	case err := <-serveDone:
		if err != nil {
			logger.Error("node server error", logger.Err(err))
			return err
		}
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	return nil
}
