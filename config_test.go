package refdb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "refdb.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	c := refdb.DefaultConfig()
	assert.Equal(t, uint8(10), c.Storage.LoadFactor)
	assert.Equal(t, int64(4), c.Scan.Workers)
	assert.Equal(t, "sync", c.Journal.Durability)
	assert.Equal(t, "info", c.Log.Level)

	opts, err := c.Options()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
[storage]
load-factor = 6

[journal]
path = "journal.log"
durability = "async"

[log]
level = "debug"
format = "json"
`)
	c, err := refdb.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), c.Storage.LoadFactor)
	assert.Equal(t, 4096, c.Storage.CacheCapacity, "unset keys keep their defaults")
	assert.Equal(t, "journal.log", c.Journal.Path)

	opts, err := c.Options()
	require.NoError(t, err)

	db, err := refdb.Open(t.TempDir(), opts...)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "[storage]\nblock-size = 4096\n"},
		{"unknown section", "[cluster]\nnodes = 3\n"},
		{"load factor", "[storage]\nload-factor = 40\n"},
		{"durability", "[journal]\ndurability = \"sometimes\"\n"},
		{"log level", "[log]\nlevel = \"loud\"\n"},
		{"log format", "[log]\nformat = \"xml\"\n"},
		{"syntax", "[storage\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := refdb.LoadConfig(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := refdb.LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
