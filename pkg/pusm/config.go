package pusm

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/ultrascale/usm/pkg/usm"
)

// Mode selects when a mutation becomes durable.
type Mode string

const (
	// Disabled degrades PUSM to a pure USM; the WAL and background worker
	// are never started.
	Disabled Mode = "disabled"
	// Sync flushes the WAL buffer before every mutating call returns.
	Sync Mode = "sync"
	// Async enqueues mutations for the background worker; the call
	// returns once the op is buffered, not once it is durable.
	Async Mode = "async"
	// Hybrid is sync for NumericBlob values, async for everything else.
	Hybrid Mode = "hybrid"
)

// Config configures a PUSM instance. LoadConfigFile keeps the defaults of
// DefaultConfig for zero-valued numeric fields in the file. Open itself
// takes zero values as given: a zero InitialBucketCapacity selects the usm
// default, a zero SyncIntervalMs makes the worker wake once a second, a
// zero CheckpointIntervalMs disables periodic checkpoints, and a zero
// LockTimeoutMs makes persistence_lock acquisition a single attempt.
type Config struct {
	InitialBucketCapacity int   `json:"initial_bucket_capacity,omitempty"`
	MaxMemoryBytes        int64 `json:"max_memory_bytes,omitempty"`

	Mode Mode `json:"mode,omitempty"`

	StoragePath string `json:"storage_path,omitempty"`
	WalPath     string `json:"wal_path,omitempty"`

	SyncIntervalMs       int64 `json:"sync_interval_ms,omitempty"`
	CheckpointIntervalMs int64 `json:"checkpoint_interval_ms,omitempty"`
	MaxWalSizeMB         int64 `json:"max_wal_size_mb,omitempty"`

	CompressionLevel int  `json:"compression_level,omitempty"` //nolint:tagliatelle // snake_case for config file
	EnableEncryption bool `json:"enable_encryption,omitempty"`
	EnableChecksums  bool `json:"enable_checksums"`

	EnableCrashRecovery bool `json:"enable_crash_recovery,omitempty"`

	MaxConcurrentOps int   `json:"max_concurrent_ops,omitempty"`
	LockTimeoutMs    int64 `json:"lock_timeout_ms,omitempty"`
}

// DefaultConfig returns the reference defaults: a 1024-slot bucket array,
// Disabled persistence, a 5 second lock timeout, 30 second sync and 5
// minute checkpoint intervals.
func DefaultConfig() Config {
	return Config{
		InitialBucketCapacity: usm.DefaultInitialBucketCapacity,
		Mode:                  Disabled,
		SyncIntervalMs:        30_000,
		CheckpointIntervalMs:  300_000,
		MaxWalSizeMB:          256,
		EnableChecksums:       true,
		MaxConcurrentOps:      10_000,
		LockTimeoutMs:         5_000,
	}
}

// LoadConfigFile reads a JSONC (JSON-with-comments) file at path and
// overlays it onto DefaultConfig. A missing file is not an error; it
// yields the defaults unchanged.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	overlay, err := parseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	return mergeConfig(cfg, overlay), nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	// Seed EnableChecksums with its default: mergeConfig always takes it
	// from the overlay, so a file that omits it must not turn it off.
	cfg := Config{EnableChecksums: DefaultConfig().EnableChecksums}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

// mergeConfig overlays non-zero overlay fields onto base. EnableChecksums
// is always taken from overlay, so that a file can set it to false.
func mergeConfig(base, overlay Config) Config {
	if overlay.InitialBucketCapacity != 0 {
		base.InitialBucketCapacity = overlay.InitialBucketCapacity
	}

	if overlay.MaxMemoryBytes != 0 {
		base.MaxMemoryBytes = overlay.MaxMemoryBytes
	}

	if overlay.Mode != "" {
		base.Mode = overlay.Mode
	}

	if overlay.StoragePath != "" {
		base.StoragePath = overlay.StoragePath
	}

	if overlay.WalPath != "" {
		base.WalPath = overlay.WalPath
	}

	if overlay.SyncIntervalMs != 0 {
		base.SyncIntervalMs = overlay.SyncIntervalMs
	}

	if overlay.CheckpointIntervalMs != 0 {
		base.CheckpointIntervalMs = overlay.CheckpointIntervalMs
	}

	if overlay.MaxWalSizeMB != 0 {
		base.MaxWalSizeMB = overlay.MaxWalSizeMB
	}

	if overlay.CompressionLevel != 0 {
		base.CompressionLevel = overlay.CompressionLevel
	}

	base.EnableEncryption = overlay.EnableEncryption || base.EnableEncryption
	base.EnableChecksums = overlay.EnableChecksums

	if overlay.EnableCrashRecovery {
		base.EnableCrashRecovery = true
	}

	if overlay.MaxConcurrentOps != 0 {
		base.MaxConcurrentOps = overlay.MaxConcurrentOps
	}

	if overlay.LockTimeoutMs != 0 {
		base.LockTimeoutMs = overlay.LockTimeoutMs
	}

	return base
}

func (c Config) validate() error {
	if c.Mode == "" {
		return nil
	}

	switch c.Mode {
	case Disabled, Sync, Async, Hybrid:
		return nil
	default:
		return fmt.Errorf("pusm: unrecognized mode %q", c.Mode)
	}
}
