// Package config loads the daemon configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// Config is the resolved daemon configuration.
type Config struct {
	CacheDir string

	MountsFile  string
	EntriesFile string

	Engine string

	InitTimeout time.Duration
	ListTimeout time.Duration
	CallTimeout time.Duration

	RefreshWakeInterval time.Duration
	RefreshMinInterval  time.Duration

	OnTransportDeath domain.TransportDeathPolicy

	DockerCatalogPath string
	CustomEntriesPath string

	ObservabilityListenAddress string
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cacheDir", defaultCacheDir())
	v.SetDefault("engine", "podman")
	v.SetDefault("initTimeoutSeconds", int(domain.DefaultInitTimeout/time.Second))
	v.SetDefault("listTimeoutSeconds", int(domain.DefaultListTimeout/time.Second))
	v.SetDefault("callTimeoutSeconds", int(domain.DefaultCallTimeout/time.Second))
	v.SetDefault("refreshWakeHours", 6)
	v.SetDefault("refreshMinIntervalHours", 24)
	v.SetDefault("onTransportDeath", string(domain.DeathSurface))
	v.SetDefault("sources.dockerCatalogPath", "")
	v.SetDefault("sources.customEntriesPath", "")
	v.SetDefault("observability.listenAddress", "")
}

type rawConfig struct {
	CacheDir                string           `mapstructure:"cacheDir"`
	Engine                  string           `mapstructure:"engine"`
	InitTimeoutSeconds      int              `mapstructure:"initTimeoutSeconds"`
	ListTimeoutSeconds      int              `mapstructure:"listTimeoutSeconds"`
	CallTimeoutSeconds      int              `mapstructure:"callTimeoutSeconds"`
	RefreshWakeHours        int              `mapstructure:"refreshWakeHours"`
	RefreshMinIntervalHours int              `mapstructure:"refreshMinIntervalHours"`
	OnTransportDeath        string           `mapstructure:"onTransportDeath"`
	Sources                 rawSourcesConfig `mapstructure:"sources"`
	Observability           rawObservability `mapstructure:"observability"`
}

type rawSourcesConfig struct {
	DockerCatalogPath string `mapstructure:"dockerCatalogPath"`
	CustomEntriesPath string `mapstructure:"customEntriesPath"`
}

type rawObservability struct {
	ListenAddress string `mapstructure:"listenAddress"`
}

// Load reads an optional YAML config file and applies defaults. An empty
// path loads defaults only.
func Load(path string) (Config, error) {
	v := newConfigViper()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = file.Close() }()
		if err := v.ReadConfig(file); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return resolve(raw)
}

func resolve(raw rawConfig) (Config, error) {
	if raw.CacheDir == "" {
		raw.CacheDir = defaultCacheDir()
	}
	if raw.InitTimeoutSeconds <= 0 || raw.ListTimeoutSeconds <= 0 || raw.CallTimeoutSeconds <= 0 {
		return Config{}, fmt.Errorf("timeouts must be positive")
	}
	if raw.RefreshWakeHours <= 0 || raw.RefreshMinIntervalHours <= 0 {
		return Config{}, fmt.Errorf("refresh intervals must be positive")
	}

	policy := domain.TransportDeathPolicy(raw.OnTransportDeath)
	switch policy {
	case domain.DeathSurface:
	case domain.DeathUnmount:
		return Config{}, fmt.Errorf("onTransportDeath %q is not implemented in this release", policy)
	default:
		return Config{}, fmt.Errorf("onTransportDeath must be %q or %q", domain.DeathSurface, domain.DeathUnmount)
	}

	return Config{
		CacheDir:                   raw.CacheDir,
		MountsFile:                 filepath.Join(raw.CacheDir, "active_mounts.json"),
		EntriesFile:                filepath.Join(raw.CacheDir, "registry_entries.json"),
		Engine:                     raw.Engine,
		InitTimeout:                time.Duration(raw.InitTimeoutSeconds) * time.Second,
		ListTimeout:                time.Duration(raw.ListTimeoutSeconds) * time.Second,
		CallTimeout:                time.Duration(raw.CallTimeoutSeconds) * time.Second,
		RefreshWakeInterval:        time.Duration(raw.RefreshWakeHours) * time.Hour,
		RefreshMinInterval:         time.Duration(raw.RefreshMinIntervalHours) * time.Hour,
		OnTransportDeath:           policy,
		DockerCatalogPath:          raw.Sources.DockerCatalogPath,
		CustomEntriesPath:          raw.Sources.CustomEntriesPath,
		ObservabilityListenAddress: raw.Observability.ListenAddress,
	}, nil
}

func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mcp-registry")
	}
	return filepath.Join(home, ".cache", "mcp-registry")
}
