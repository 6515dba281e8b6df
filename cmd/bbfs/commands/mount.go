package commands

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/spf13/cobra"

	"github.com/nmsu-cs/bbfs/internal/config"
	"github.com/nmsu-cs/bbfs/internal/logger"
	"github.com/nmsu-cs/bbfs/pkg/adapter"
	"github.com/nmsu-cs/bbfs/pkg/engine"
	"github.com/nmsu-cs/bbfs/pkg/metrics"
	"github.com/nmsu-cs/bbfs/pkg/pool"
)

func runMount(cmd *cobra.Command, args []string) error {
	rootDir := args[0]
	mountPoint := args[1]
	rawEndpoints := args[2:]

	cfg, err := config.LoadClient(GetConfigFile())
	if err != nil {
		return err
	}
	cfg.RootDir = rootDir
	cfg.MountPoint = mountPoint
	if len(rawEndpoints) > 0 {
		cfg.Endpoints = rawEndpoints
	}
	if debug {
		cfg.Debug = true
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("bbfs: init logger: %w", err)
	}

	if os.Geteuid() == 0 {
		return fmt.Errorf("bbfs: refusing to run as root")
	}

	if _, err := os.Stat(cfg.RootDir); err != nil {
		return fmt.Errorf("bbfs: rootDir %q: %w", cfg.RootDir, err)
	}

	endpoints, err := parseEndpoints(cfg.Endpoints)
	if err != nil {
		return err
	}

	var m *metrics.Engine
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		m = metrics.NewEngine(nil)
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: metrics.Handler()}
		go func() {
			logger.Info("metrics server listening", "addr", cfg.Metrics.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", logger.Err(err))
			}
		}()
	}

	var eng *engine.Engine
	if len(endpoints) > 0 {
		p, err := pool.Dial(endpoints)
		if err != nil {
			return fmt.Errorf("bbfs: %w", err)
		}
		eng = engine.New(engine.Config{
			Pool:           p,
			Metrics:        m,
			CacheTTL:       cfg.CacheTTL,
			WindowSize:     cfg.WindowSize.Int64(),
			WindowTTL:      cfg.WindowTTL,
			BufferCapacity: int(cfg.BufferCapacity.Uint64()),
			Length:         adapter.LengthFunc(cfg.RootDir),
			Extend:         adapter.ExtendFunc(cfg.RootDir),
		})
		defer eng.Shutdown()
	} else {
		logger.Info("bbfs: zero storage node endpoints given, falling back to pass-through against the shadow tree")
	}

	root, err := adapter.NewRoot(cfg.RootDir, eng)
	if err != nil {
		return fmt.Errorf("bbfs: %w", err)
	}

	mountOpts := fuse.MountOptions{
		FsName: "bbfs",
		Name:   "bbfs",
		Debug:  cfg.Debug,
	}
	server, err := fs.Mount(cfg.MountPoint, root, &fs.Options{MountOptions: mountOpts})
	if err != nil {
		return fmt.Errorf("bbfs: mount %q: %w", cfg.MountPoint, err)
	}

	logger.Info("mounted", "root_dir", cfg.RootDir, "mount_point", cfg.MountPoint, "endpoints", len(endpoints))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, unmounting")
		_ = server.Unmount()
	}()

	server.Wait()

	if metricsSrv != nil {
		_ = metricsSrv.Close()
	}

	return nil
}

// parseEndpoints turns "host:port" strings into pool.Endpoint values.
func parseEndpoints(raw []string) ([]pool.Endpoint, error) {
	out := make([]pool.Endpoint, 0, len(raw))
	for _, s := range raw {
		host, portStr, err := net.SplitHostPort(s)
		if err != nil {
			return nil, fmt.Errorf("bbfs: invalid endpoint %q: %w", s, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("bbfs: invalid endpoint port %q: %w", s, err)
		}
		out = append(out, pool.Endpoint{Host: host, Port: port})
	}
	return out, nil
}
