package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte(content), 0o600))
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvSecret, EnvNamespace, EnvDatabaseURL, EnvDevKubernetes} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_DefaultsWhenMissing(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, `
namespace: robots
harbor:
  publicAddress: harbor.robots.svc:5001
timeouts:
  registration: 90s
  handshake: 3s
reconcile:
  interval: 5s
robotEnv:
  ZONE: eu
catalog:
  driver: file
  path: /etc/images.yaml
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "robots", cfg.Namespace)
	assert.Equal(t, "harbor.robots.svc:5001", cfg.Harbor.PublicAddress)
	assert.Equal(t, DefaultListenAddress, cfg.Harbor.ListenAddress)
	assert.Equal(t, 90*time.Second, cfg.Timeouts.Registration)
	assert.Equal(t, DefaultTimeout, cfg.Timeouts.Response)
	assert.Equal(t, 3*time.Second, cfg.Timeouts.Handshake)
	assert.Equal(t, 5*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, map[string]string{"ZONE": "eu"}, cfg.RobotEnv)
	assert.Equal(t, CatalogFile, cfg.Catalog.Driver)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ParseError(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "namespace: [")

	_, err := LoadConfig(dir)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "parse", cfgErr.ErrorType)
	assert.Equal(t, filepath.Join(dir, configFileName), cfgErr.FilePath)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "namespace: from-file\n")
	t.Setenv(EnvSecret, "env-secret")
	t.Setenv(EnvNamespace, "from-env")
	t.Setenv(EnvDatabaseURL, "postgres://localhost/harbor")
	t.Setenv(EnvDevKubernetes, "development")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "env-secret", cfg.Harbor.Secret)
	assert.Equal(t, "from-env", cfg.Namespace)
	assert.Equal(t, "postgres://localhost/harbor", cfg.Catalog.DSN)
	assert.True(t, cfg.Cluster.DryRun)
}

func TestApplyEnv_DevKubernetesOtherValue(t *testing.T) {
	cfg := GetDefaultConfig()
	ApplyEnv(&cfg, func(key string) (string, bool) {
		if key == EnvDevKubernetes {
			return "production", true
		}
		return "", false
	})
	assert.False(t, cfg.Cluster.DryRun)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv(EnvNamespace))
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, dotEnvFileName), []byte("ROBOHARBOR_NAMESPACE=dotenv-ns\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv(EnvNamespace) })

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-ns", cfg.Namespace)
}

func TestGetDefaultConfigPath(t *testing.T) {
	original := osUserHomeDir
	defer func() { osUserHomeDir = original }()

	osUserHomeDir = func() (string, error) { return "/home/robo", nil }
	path, err := GetDefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/home/robo/.config/roboharbor", path)

	osUserHomeDir = func() (string, error) { return "", errors.New("no home") }
	_, err = GetDefaultConfigPath()
	assert.Error(t, err)
}
