package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/imgguard"
)

var testTime = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imgguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDaemonConfig_Example(t *testing.T) {
	t.Setenv("API_KEY", "k1")
	t.Setenv("ADMIN_API_KEY", "admin")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")

	cfg, err := loadDaemonConfig(filepath.Join("..", "..", "imgguard.example.yaml"))
	require.NoError(t, err)

	assert.Equal(t, []string{"sightengine", "rekognition"}, []string{cfg.Providers[0].Name, cfg.Providers[1].Name})
	assert.Equal(t, imgguard.DefaultDownloadTimeout, cfg.DownloadTimeout)

	se := cfg.Providers[0].Limits()
	require.NotNil(t, se.Daily)
	assert.Equal(t, int64(250), *se.Daily)
	assert.Equal(t, int64(1000), se.Monthly)
	rk := cfg.Providers[1].Limits()
	assert.Nil(t, rk.Daily)
	assert.Equal(t, int64(4000), rk.Monthly)

	assert.Equal(t, "mongo", cfg.Ledger.Backend)
	assert.Equal(t, "mongodb://db:27017", cfg.Ledger.DSN)
	assert.Equal(t, []string{"k1"}, cfg.Server.APIKeys)
	assert.Equal(t, "admin", cfg.Server.AdminKey)
	assert.Equal(t, 5.0, cfg.Server.RateLimit)
}

func TestLoadDaemonConfig_Defaults(t *testing.T) {
	cfg, err := loadDaemonConfig(writeConfig(t, `
providers:
  - name: sightengine
    monthly_limit: 10
server:
  api_keys: [k]
`))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadDaemonConfig_Errors(t *testing.T) {
	_, err := loadDaemonConfig(writeConfig(t, "providers:\n  - name: sightengine\n"))
	assert.ErrorContains(t, err, "api_keys")

	_, err = loadDaemonConfig(writeConfig(t, "server:\n  api_keys: [k]\n"))
	assert.ErrorContains(t, err, "at least one provider")
}

func TestOpenLedger_MemoryAndUnknown(t *testing.T) {
	l, closer, err := openLedger(t.Context(), ledgerConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, l)
	assert.NoError(t, closer.Close())

	_, _, err = openLedger(t.Context(), ledgerConfig{Backend: "cassandra"})
	assert.ErrorContains(t, err, `unknown ledger backend "cassandra"`)
}

func TestOpenLedger_SQLite(t *testing.T) {
	l, closer, err := openLedger(t.Context(), ledgerConfig{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "u.db")})
	require.NoError(t, err)
	defer closer.Close()

	require.NoError(t, l.Increment(t.Context(), "sightengine", testTime))
	n, err := l.Count(t.Context(), "sightengine", imgguard.PeriodMonth, imgguard.MonthKey(testTime))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestBuildProviders_UnknownName(t *testing.T) {
	_, err := buildProviders(t.Context(), imgguard.Config{
		Providers: []imgguard.ProviderConfig{{Name: "hive"}},
	}, nil)
	assert.ErrorContains(t, err, `no adapter for provider "hive"`)
}
