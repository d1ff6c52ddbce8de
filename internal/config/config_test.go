package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFirstRunMintsSiteID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.SiteID, 6)
	assert.FileExists(t, path, "first run must persist the minted config")

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.SiteID, again.SiteID, "site identity must survive restarts")
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.json")

	cfg := Default(t.TempDir())
	cfg.SiteID = "123456"
	cfg.FilterScript = `attrs.Modality == "CT"`
	cfg.RejectSC = false
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestPollIntervalNeverZero(t *testing.T) {
	var c Config
	assert.Greater(t, c.PollInterval().Seconds(), 0.0)
}
