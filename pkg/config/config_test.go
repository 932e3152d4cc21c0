package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"JVSPATIAL_CONFIG_FILE", "DB_TYPE", "FILE_DB_PATH", "FILE_DB_ENCRYPTION_KEY",
		"DOCSTORE_URI", "DOCSTORE_DB_NAME", "WALKER_PROTECTION_ENABLED",
		"WALKER_MAX_STEPS", "WALKER_MAX_VISITS_PER_NODE", "WALKER_MAX_EXECUTION_TIME",
		"WALKER_MAX_QUEUE_SIZE",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg := LoadFromEnv()
	assert.Equal(t, "file", cfg.Database.Type)
	assert.Equal(t, "./data", cfg.Database.FilePath)
	assert.Equal(t, 10000, cfg.Walker.MaxSteps)
	assert.Equal(t, 300*time.Second, cfg.Walker.MaxExecutionTime)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("DB_TYPE", "docstore")
	os.Setenv("DOCSTORE_URI", "/tmp/jvspatial-docstore")
	os.Setenv("WALKER_MAX_STEPS", "42")
	defer clearEnv(t)

	cfg := LoadFromEnv()
	assert.Equal(t, "docstore", cfg.Database.Type)
	assert.Equal(t, "/tmp/jvspatial-docstore", cfg.Database.DocstoreURI)
	assert.Equal(t, 42, cfg.Walker.MaxSteps)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownDBType(t *testing.T) {
	clearEnv(t)
	cfg := LoadFromEnv()
	cfg.Database.Type = "mongodb"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWalkerLimits(t *testing.T) {
	clearEnv(t)
	cfg := LoadFromEnv()
	cfg.Walker.MaxSteps = 0
	assert.Error(t, cfg.Validate())
}

func TestYAMLFileIsOverriddenByEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	yamlPath := dir + "/jvspatial.yaml"
	require.NoError(t, os.WriteFile(yamlPath, []byte("database:\n  type: docstore\n  docstore_uri: /from/yaml\n"), 0o644))

	os.Setenv("JVSPATIAL_CONFIG_FILE", yamlPath)
	os.Setenv("DOCSTORE_URI", "/from/env")
	defer clearEnv(t)

	cfg := LoadFromEnv()
	assert.Equal(t, "docstore", cfg.Database.Type)
	assert.Equal(t, "/from/env", cfg.Database.DocstoreURI)
}
