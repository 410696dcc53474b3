package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	deverrors "github.com/nowdev/devserver/internal/errors"
	"github.com/nowdev/devserver/internal/logging"
)

func writeEnvFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadEnvMergesLocalOverManifest(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, EnvFile, "API_URL=http://localhost\nEXTRA=1\n")

	cfg := &Config{
		Version: 2,
		Env:     map[string]string{"API_URL": "https://prod", "KEEP": "yes"},
	}

	env, err := LoadEnv(dir, cfg, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost", env.Run["API_URL"], "local env wins over manifest")
	assert.Equal(t, "yes", env.Run["KEEP"])
	assert.Equal(t, "1", env.Run["EXTRA"])
}

func TestLoadEnvResolvesSecretReferences(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, EnvFile, "my_secret_token=s3cr3t\n")

	cfg := &Config{
		Version: 2,
		Env:     map[string]string{"TOKEN": "@my_secret_token"},
	}

	env, err := LoadEnv(dir, cfg, logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", env.Run["TOKEN"])
}

func TestLoadEnvMissingSecretIsFatal(t *testing.T) {
	cfg := &Config{
		Version: 2,
		Env:     map[string]string{"TOKEN": "@nope"},
	}

	_, err := LoadEnv(t.TempDir(), cfg, logging.Discard())
	require.Error(t, err)

	var de *deverrors.DevError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, deverrors.CodeMissingSecret, de.Code)
	assert.True(t, deverrors.IsFatal(err))
}

func TestLoadEnvDropsInvalidNames(t *testing.T) {
	dir := t.TempDir()

	cfg := &Config{
		Version: 2,
		Env: map[string]string{
			"GOOD_NAME": "a",
			"1BAD":      "b",
			"ALSO-BAD":  "c",
		},
	}

	env, err := LoadEnv(dir, cfg, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, "a", env.Run["GOOD_NAME"])
	assert.NotContains(t, env.Run, "1BAD")
	assert.NotContains(t, env.Run, "ALSO-BAD")
}

func TestLoadEnvExportsBuildEnv(t *testing.T) {
	dir := t.TempDir()
	writeEnvFile(t, dir, BuildEnvFile, "BUILD_FLAG_FOR_TEST=on\n")

	t.Cleanup(func() { os.Unsetenv("BUILD_FLAG_FOR_TEST") })

	cfg := &Config{Version: 2}

	env, err := LoadEnv(dir, cfg, logging.Discard())
	require.NoError(t, err)

	assert.Equal(t, "on", env.Build["BUILD_FLAG_FOR_TEST"])
	assert.Equal(t, "on", os.Getenv("BUILD_FLAG_FOR_TEST"))
}

func TestMergeEnvRightBiased(t *testing.T) {
	merged, err := mergeEnv(
		map[string]string{"A": "base", "B": "base"},
		map[string]string{"B": "local", "C": "local"},
		logging.Discard(),
	)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A": "base", "B": "local", "C": "local"}, merged)
}
