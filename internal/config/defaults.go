package config

import (
	"github.com/nmsu-cs/bbfs/internal/bytesize"
	"github.com/nmsu-cs/bbfs/pkg/buffer"
	"github.com/nmsu-cs/bbfs/pkg/rcache"
)

func defaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Logging: LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
	}
}

func defaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BufferCapacity: bytesize.ByteSize(buffer.DefaultCapacity),
		WindowSize:     bytesize.ByteSize(rcache.DefaultWindowSize),
		WindowTTL:      rcache.DefaultWindowTTL,
		CacheTTL:       rcache.DefaultTTL,
		Logging:        LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
	}
}

// applyNodeDefaults fills in zero-valued fields left unset by config file,
// environment, or flags.
func applyNodeDefaults(cfg *NodeConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9100"
	}
}

// applyClientDefaults fills in zero-valued fields left unset by config
// file, environment, or flags.
func applyClientDefaults(cfg *ClientConfig) {
	if cfg.BufferCapacity == 0 {
		cfg.BufferCapacity = bytesize.ByteSize(buffer.DefaultCapacity)
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = bytesize.ByteSize(rcache.DefaultWindowSize)
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = rcache.DefaultTTL
	}
	if cfg.WindowTTL == 0 {
		cfg.WindowTTL = rcache.DefaultWindowTTL
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9101"
	}
}
