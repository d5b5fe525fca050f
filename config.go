package refdb

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"
)

const defaultConfig = `
# refdb configuration.

[storage]
load-factor = 10
cache-capacity = 4096
memory-limit = 0

[scan]
workers = 4

[journal]
path = ""
# sync, async
durability = "sync"

[backup]
io-limit = 0

[log]
# debug, info, warn, error
level = "info"
# text, json
format = "text"
`

// StorageConfig configures the volume files.
type StorageConfig struct {
	LoadFactor    uint8 `toml:"load-factor"`
	CacheCapacity int   `toml:"cache-capacity"`
	MemoryLimit   int64 `toml:"memory-limit"`
}

// ScanConfig configures query execution.
type ScanConfig struct {
	Workers int64 `toml:"workers"`
}

// JournalConfig configures the write journal. An empty path disables it.
type JournalConfig struct {
	Path       string `toml:"path"`
	Durability string `toml:"durability"`
}

// BackupConfig configures backup transfers.
type BackupConfig struct {
	IOLimit int64 `toml:"io-limit"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the file form of the Open options.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Scan    ScanConfig    `toml:"scan"`
	Journal JournalConfig `toml:"journal"`
	Backup  BackupConfig  `toml:"backup"`
	Log     LogConfig     `toml:"log"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	c := &Config{}
	if _, err := toml.Decode(defaultConfig, c); err != nil {
		panic(fmt.Sprintf("refdb: decode default config: %v", err))
	}
	return c
}

// LoadConfig reads the TOML file at path over the defaults. Unknown keys are
// rejected.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("refdb: load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("refdb: load config %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return c, c.validate()
}

func (c *Config) validate() error {
	if c.Storage.LoadFactor < 1 || c.Storage.LoadFactor > 24 {
		return fmt.Errorf("refdb: storage.load-factor %d out of range [1, 24]", c.Storage.LoadFactor)
	}
	if c.Storage.CacheCapacity < 0 || c.Storage.MemoryLimit < 0 || c.Scan.Workers < 0 || c.Backup.IOLimit < 0 {
		return fmt.Errorf("refdb: negative limit in config")
	}
	if _, err := c.durability(); err != nil {
		return err
	}
	if _, err := c.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("refdb: unknown log.format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) durability() (Durability, error) {
	switch c.Journal.Durability {
	case "sync", "":
		return DurabilitySync, nil
	case "async":
		return DurabilityAsync, nil
	}
	return DurabilitySync, fmt.Errorf("refdb: unknown journal.durability %q", c.Journal.Durability)
}

func (c *Config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return l, fmt.Errorf("refdb: log.level: %w", err)
	}
	return l, nil
}

// Options converts c into Open options.
func (c *Config) Options() ([]Option, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	durability, _ := c.durability()
	level, _ := c.level()

	logger := NewTextLogger(level)
	if c.Log.Format == "json" {
		logger = NewJSONLogger(level)
	}

	opts := []Option{
		WithLoadFactor(c.Storage.LoadFactor),
		WithCacheCapacity(c.Storage.CacheCapacity),
		WithMemoryLimit(c.Storage.MemoryLimit),
		WithScanWorkers(c.Scan.Workers),
		WithIOLimit(c.Backup.IOLimit),
		WithLogger(logger),
	}
	if c.Journal.Path != "" {
		opts = append(opts, WithJournal(c.Journal.Path, durability))
	}
	return opts, nil
}
