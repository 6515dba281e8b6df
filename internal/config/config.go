// Package config loads node and client configuration from an optional
// YAML file and built-in defaults, using viper, mapstructure, and
// go-playground/validator as dittofs' pkg/config does; the CLIs apply
// their own arguments on top of the result. BBFS_*-prefixed environment
// variables override a setting only when the YAML file itself sets that
// key; when no config file is read, the environment is not consulted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/nmsu-cs/bbfs/internal/bytesize"
)

// NodeConfig configures a storage node server process.
type NodeConfig struct {
	// Port is the TCP port the node listens on, all interfaces.
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535" yaml:"port"`

	// StorageDir holds fragment files; created on startup if missing.
	StorageDir string `mapstructure:"storage_dir" validate:"required" yaml:"storage_dir"`

	// Logging controls the node's structured log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics configures the optional Prometheus HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ClientConfig configures the mounting client process.
type ClientConfig struct {
	// RootDir is the metadata shadow tree location; must already exist.
	RootDir string `mapstructure:"root_dir" validate:"required" yaml:"root_dir"`

	// MountPoint is where the host filesystem is mounted.
	MountPoint string `mapstructure:"mount_point" validate:"required" yaml:"mount_point"`

	// Endpoints lists the storage nodes to stripe across, "host:port" each.
	// Zero endpoints means pure pass-through to the shadow tree.
	Endpoints []string `mapstructure:"endpoints" validate:"max=10" yaml:"endpoints"`

	// BufferCapacity is the per-file write buffer's fixed capacity.
	BufferCapacity bytesize.ByteSize `mapstructure:"buffer_capacity" yaml:"buffer_capacity"`

	// CacheTTL bounds how long a cached small file is served without a
	// write or explicit invalidation.
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`

	// WindowSize is the read-ahead span pulled per large-file window miss.
	WindowSize bytesize.ByteSize `mapstructure:"window_size" yaml:"window_size"`

	// WindowTTL bounds how long a filled read-ahead window is served
	// without a write or explicit invalidation.
	WindowTTL time.Duration `mapstructure:"window_ttl" yaml:"window_ttl"`

	// Debug enables go-fuse's own request-level debug logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`

	// Logging controls the client's structured log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics configures the optional Prometheus HTTP endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior, matching internal/logger.Config.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig configures the Prometheus metrics HTTP server. When
// Enabled is false, no collectors are registered and no server starts.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

var validate = validator.New()

// LoadNode loads a NodeConfig from configPath (if non-empty) and defaults,
// then validates it. Environment variables prefixed BBFS_NODE_ override
// only keys the config file sets.
func LoadNode(configPath string) (*NodeConfig, error) {
	v := newViper("BBFS_NODE", configPath)
	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultNodeConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal node config: %w", err)
		}
	}
	applyNodeDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid node config: %w", err)
	}
	return cfg, nil
}

// LoadClient loads a ClientConfig from configPath (if non-empty) and
// defaults, then validates it. Environment variables prefixed
// BBFS_CLIENT_ override only keys the config file sets.
func LoadClient(configPath string) (*ClientConfig, error) {
	v := newViper("BBFS_CLIENT", configPath)
	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := defaultClientConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal client config: %w", err)
		}
	}
	applyClientDefaults(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid client config: %w", err)
	}
	return cfg, nil
}

// SaveClient writes cfg to path as YAML, creating parent directories as
// needed, mirroring dittofs' pkg/config.SaveConfig.
func SaveClient(cfg *ClientConfig, path string) error {
	return saveYAML(cfg, path)
}

// SaveNode writes cfg to path as YAML, creating parent directories as
// needed.
func SaveNode(cfg *NodeConfig, path string) error {
	return saveYAML(cfg, path)
}

func saveYAML(cfg any, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func newViper(envPrefix, configPath string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	return v
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read config file: %w", err)
	}
	return true, nil
}

// decodeHooks composes the custom mapstructure hooks this package needs:
// bytesize.ByteSize from human-readable strings, and time.Duration from
// duration strings, matching dittofs' pkg/config.configDecodeHooks.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
