package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"laundry-locker/internal/model"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Locker     LockerConfig     `yaml:"locker"`
	WashTypes  []model.WashType `yaml:"wash_types"`
	Reader     ReaderConfig     `yaml:"reader"`
	Storage    StorageConfig    `yaml:"storage"`
	Database   DatabaseConfig   `yaml:"database"`
	Remote     RemoteConfig     `yaml:"remote"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Host            string  `yaml:"host"`
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// LockerConfig describes the physical locker bank and the device running it.
type LockerConfig struct {
	SystemName            string         `yaml:"system_name"`
	DeviceName            string         `yaml:"device_name"`
	DeviceLocation        string         `yaml:"device_location"`
	RelayPins             map[string]int `yaml:"relay_pins"`
	UnlockDurationSeconds int            `yaml:"unlock_duration"`
	UnlockDuration        time.Duration  `yaml:"-"`
	CardValiditySeconds   int            `yaml:"card_validity_window"`
	CardValidity          time.Duration  `yaml:"-"`
}

// LockerIDs returns the configured locker ids in pool order: numeric ids
// ascending, then the rest alphabetically.
func (l LockerConfig) LockerIDs() []string {
	ids := make([]string, 0, len(l.RelayPins))
	for id := range l.RelayPins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aErr := strconv.Atoi(ids[i])
		b, bErr := strconv.Atoi(ids[j])
		switch {
		case aErr == nil && bErr == nil:
			return a < b
		case aErr == nil:
			return true
		case bErr == nil:
			return false
		}
		return ids[i] < ids[j]
	})
	return ids
}

// ReaderConfig selects the card reader driver and tunes the polling loop.
type ReaderConfig struct {
	Driver         string `yaml:"driver"` // "simulated" or "serial"
	Device         string `yaml:"device"`
	BaseIntervalMs int    `yaml:"base_interval_ms"`
	FastIntervalMs int    `yaml:"fast_interval_ms"`
	ReinitEvery    int    `yaml:"reinit_every"`
	CacheSize      int    `yaml:"cache_size"`
}

// StorageConfig selects where the locker state is persisted.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "file" or "database"
	Path    string `yaml:"path"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "sqlite" or "postgres"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// RemoteConfig configures the best-effort telemetry collector.
type RemoteConfig struct {
	ServerURL              string        `yaml:"server_url"`
	APIKey                 string        `yaml:"server_api_key"`
	TimeoutSeconds         int           `yaml:"timeout_seconds"`
	Timeout                time.Duration `yaml:"-"`
	HeartbeatMinutes       int           `yaml:"heartbeat_minutes"`
	Heartbeat              time.Duration `yaml:"-"`
	QueueSize              int           `yaml:"queue_size"`
	Workers                int           `yaml:"workers"`
	CatalogCacheTTLSeconds int           `yaml:"catalog_cache_ttl_seconds"`
	CatalogCacheTTL        time.Duration `yaml:"-"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// DefaultWashTypes is the local catalog used when none is configured.
func DefaultWashTypes() []model.WashType {
	return []model.WashType{
		{ID: "1", Name: "Standard Wash", Price: 5.00},
		{ID: "2", Name: "Delicate Wash", Price: 7.50},
		{ID: "3", Name: "Heavy Duty", Price: 10.00},
	}
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields and derives the duration fields.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Locker.SystemName == "" {
		cfg.Locker.SystemName = "Laundry Locker System"
	}
	if cfg.Locker.DeviceName == "" {
		cfg.Locker.DeviceName = "locker-pi-001"
	}
	if len(cfg.Locker.RelayPins) == 0 {
		slog.Warn("locker.relay_pins is empty; defaulting to lockers 1 and 2")
		cfg.Locker.RelayPins = map[string]int{"1": 17, "2": 27}
	}
	if cfg.Locker.UnlockDurationSeconds <= 0 {
		cfg.Locker.UnlockDurationSeconds = 5
	}
	cfg.Locker.UnlockDuration = time.Duration(cfg.Locker.UnlockDurationSeconds) * time.Second
	if cfg.Locker.CardValiditySeconds <= 0 {
		cfg.Locker.CardValiditySeconds = 30
	}
	cfg.Locker.CardValidity = time.Duration(cfg.Locker.CardValiditySeconds) * time.Second

	if len(cfg.WashTypes) == 0 {
		cfg.WashTypes = DefaultWashTypes()
	}

	if cfg.Reader.Driver == "" {
		cfg.Reader.Driver = "simulated"
	}
	if cfg.Reader.CacheSize <= 0 {
		cfg.Reader.CacheSize = 10
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "./locker_data.json"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "locker.db"
	}

	if cfg.Remote.TimeoutSeconds <= 0 {
		cfg.Remote.TimeoutSeconds = 5
	}
	cfg.Remote.Timeout = time.Duration(cfg.Remote.TimeoutSeconds) * time.Second
	if cfg.Remote.HeartbeatMinutes <= 0 {
		cfg.Remote.HeartbeatMinutes = 5
	}
	cfg.Remote.Heartbeat = time.Duration(cfg.Remote.HeartbeatMinutes) * time.Minute
	if cfg.Remote.QueueSize <= 0 {
		cfg.Remote.QueueSize = 64
	}
	if cfg.Remote.Workers <= 0 {
		cfg.Remote.Workers = 2
	}
	if cfg.Remote.CatalogCacheTTLSeconds <= 0 {
		cfg.Remote.CatalogCacheTTLSeconds = 60
	}
	cfg.Remote.CatalogCacheTTL = time.Duration(cfg.Remote.CatalogCacheTTLSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		slog.Info("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Save writes the configuration back to path, replacing the file atomically.
func Save(path string, cfg *Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
