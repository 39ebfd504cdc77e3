package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 4, cfg.Commands.Shards)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: gorm-sqlite
  dsn: family.db
  snapshot_every: 50
log:
  level: debug
commands:
  shards: 8
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverGormSQLite, cfg.Store.Driver)
	assert.Equal(t, "family.db", cfg.Store.DSN)
	assert.Equal(t, uint64(50), cfg.Store.SnapshotEvery)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Commands.Shards)
	assert.Equal(t, 64, cfg.Commands.Buffer)

	t.Setenv("FAMILY_STORE_DRIVER", DriverPostgres)
	t.Setenv("FAMILY_STORE_DSN", "postgres://localhost/family")
	t.Setenv("FAMILY_LOG_LEVEL", "warn")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/family", cfg.Store.DSN)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_BadSnapshotEnv(t *testing.T) {
	t.Setenv("FAMILY_SNAPSHOT_EVERY", "often")
	_, err := Load("")
	require.ErrorContains(t, err, "FAMILY_SNAPSHOT_EVERY")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = DriverKurrentDB
	cfg.Log.Level = "loud"
	cfg.Commands.Shards = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "store.dsn is required")
	assert.ErrorContains(t, err, "log.level")
	assert.ErrorContains(t, err, "commands.shards")

	cfg = Default()
	cfg.Store.Driver = "mongo"
	assert.ErrorContains(t, cfg.Validate(), `unknown store.driver "mongo"`)
}
