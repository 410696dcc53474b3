package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deverrors "github.com/nowdev/devserver/internal/errors"
)

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadMissingManifest(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, SupportedVersion, cfg.Version)
	assert.True(t, cfg.ZeroConfig())
	assert.Empty(t, cfg.Routes)
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "now.json", `{
		"version": 2,
		"builds": [{"src": "api/*.js", "use": "@now/node"}],
		"routes": [{"src": "^/old$", "status": 301, "headers": {"location": "/new"}}],
		"env": {"API_URL": "https://example.com"}
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Version)
	require.Len(t, cfg.Builds, 1)
	assert.Equal(t, "api/*.js", cfg.Builds[0].Src)
	assert.Equal(t, "@now/node", cfg.Builds[0].Use)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, 301, cfg.Routes[0].Status)
	assert.Equal(t, "https://example.com", cfg.Env["API_URL"])
	assert.False(t, cfg.ZeroConfig())
}

func TestLoadVercelJSONFallback(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "vercel.json", `{"version": 2}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Version)
}

func TestLoadVersionOne(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "now.json", `{"version": 1}`)

	_, err := Load(dir)
	require.Error(t, err)

	var de *deverrors.DevError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, deverrors.CodeUnsupportedVersion, de.Code)
	assert.Contains(t, de.Message, "no longer supported")
	assert.True(t, deverrors.IsFatal(err))
}

func TestLoadUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "now.json", `{"version": 3}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, deverrors.IsFatal(err))
}

func TestLoadDefaultsVersionWhenUnset(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "now.json", `{"routes": [{"src": "^/a$", "dest": "/b"}]}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, SupportedVersion, cfg.Version)
}

func TestValidateRoutes(t *testing.T) {
	testCases := []struct {
		name     string
		manifest string
		wantErr  bool
	}{
		{"valid", `{"version": 2, "routes": [{"src": "^/a/(.*)$", "dest": "/b/$1"}]}`, false},
		{"missing src", `{"version": 2, "routes": [{"dest": "/b"}]}`, true},
		{"invalid regex", `{"version": 2, "routes": [{"src": "^/a/(unclosed$"}]}`, true},
		{"bad status", `{"version": 2, "routes": [{"src": "^/a$", "status": 99}]}`, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, "now.json", tc.manifest)

			_, err := Load(dir)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, deverrors.IsFatal(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateBuilds(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "now.json", `{"version": 2, "builds": [{"src": "api/*.js"}]}`)

	_, err := Load(dir)
	require.Error(t, err)
	assert.True(t, deverrors.IsFatal(err))
}

func TestBuilderModules(t *testing.T) {
	cfg := &Config{
		Version: 2,
		Builds: []BuildDef{
			{Src: "api/*.js", Use: "@now/node"},
			{Src: "fn/*.js", Use: "@now/node"},
			{Src: "*.html", Use: "@now/static"},
		},
	}

	assert.Equal(t, []string{"@now/node", "@now/static"}, cfg.BuilderModules())
}
