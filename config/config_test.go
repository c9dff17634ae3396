package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestInitConfig_Defaults(t *testing.T) {
	cfg, err := InitConfig("")
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.MaxConcurrentJobs)
	assert.True(t, cfg.PageMODS)
	assert.Equal(t, "none", cfg.Output.AttributesImplementation)
	require.Len(t, cfg.Derivatives, 2)
	assert.Equal(t, "JPG", cfg.Derivatives[0].DSID)
	assert.Equal(t, "TN", cfg.Derivatives[1].DSID)
	assert.Contains(t, cfg.Input.KnownExtensions, "tif")
}

func TestInitConfig_FileOverridesDefaults(t *testing.T) {
	t.Setenv("NBND_TEST_B2_KEY", "secret-key")

	path := writeConfig(t, `{
		"MaxConcurrentJobs": 4,
		"ForceRewrite": true,
		"Storage": {"B2": {"KeyID": "key-id", "ApplicationKey": "${NBND_TEST_B2_KEY}"}},
		"Derivatives": [
			{"DSID": "WEB", "Type": "webp", "Config": {"Quality": 70, "Size": {"MaxWidth": 800}}},
			{"DSID": "ACCESS", "Type": "tiff", "Config": {"Compression": "deflate"}}
		]
	}`)

	cfg, err := InitConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.MaxConcurrentJobs)
	assert.True(t, cfg.ForceRewrite)
	require.NotNil(t, cfg.Storage.B2)
	assert.Equal(t, "secret-key", cfg.Storage.B2.ApplicationKey)

	require.Len(t, cfg.Derivatives, 2)
	webp, ok := cfg.Derivatives[0].Config.(*WebpConfig)
	require.True(t, ok)
	assert.Equal(t, 70, webp.Quality)
	assert.Equal(t, 800, webp.Size.MaxWidth)

	tiff, ok := cfg.Derivatives[1].Config.(*TiffConfig)
	require.True(t, ok)
	assert.Equal(t, "deflate", tiff.Compression)

	// untouched sections keep their defaults
	assert.Equal(t, "0755", cfg.Output.DirPermissionMode)
}

func TestInitConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown derivative type", body: `{"Derivatives": [{"DSID": "X", "Type": "gif", "Config": {}}]}`},
		{name: "reserved DSID", body: `{"Derivatives": [{"DSID": "OBJ", "Type": "jpeg", "Config": {"Quality": 80}}]}`},
		{name: "lowercase DSID", body: `{"Derivatives": [{"DSID": "tn", "Type": "jpeg", "Config": {"Quality": 80}}]}`},
		{name: "duplicate DSID", body: `{"Derivatives": [
			{"DSID": "TN", "Type": "jpeg", "Config": {"Quality": 80}},
			{"DSID": "TN", "Type": "webp", "Config": {"Quality": 80}}]}`},
		{name: "quality out of range", body: `{"Derivatives": [{"DSID": "JPG", "Type": "jpeg", "Config": {"Quality": 101}}]}`},
		{name: "zero concurrency", body: `{"MaxConcurrentJobs": 0}`},
		{name: "unknown attributes implementation", body: `{"Output": {"FilePermissionMode": "0644", "DirPermissionMode": "0755", "AttributesImplementation": "ads"}}`},
		{name: "b2 without key", body: `{"Storage": {"B2": {"KeyID": "id"}}}`},
		{name: "malformed json", body: `{"MaxConcurrentJobs": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InitConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestInitConfig_MissingFile(t *testing.T) {
	_, err := InitConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
