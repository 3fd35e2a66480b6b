package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, DefaultMetadataDir, cfg.MetadataDir)
	assert.Equal(t, DefaultTempBucket, cfg.TemporaryGCSBucket)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultHistoryDB, cfg.HistoryDB)
	assert.True(t, cfg.Substitute())
	assert.Equal(t, filepath.Join(root, "metadata"), cfg.MetadataPath(root))
	assert.Equal(t, filepath.Join(root, "out", "lakerun.db"), cfg.HistoryPath(root))
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_FileWithEnvExpansion(t *testing.T) {
	t.Setenv("LAKERUN_TEST_SPARK", "/opt/spark-3.5")
	root := t.TempDir()
	content := `
metadata_dir: meta
spark_dir: ${LAKERUN_TEST_SPARK}
starlake_bin: /opt/starlake/starlake-assembly.jar
log_level: DEBUG
project_id: ${LAKERUN_TEST_UNSET}
env: dev
history_db: /var/lib/lakerun.db
substitute_vars: false
`
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte(content), 0o644))

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "meta", cfg.MetadataDir)
	assert.Equal(t, "/opt/spark-3.5", cfg.SparkDir)
	assert.Equal(t, "/opt/starlake/starlake-assembly.jar", cfg.StarlakeBin)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Empty(t, cfg.ProjectID, "unset variables expand to empty")
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, DefaultTempBucket, cfg.TemporaryGCSBucket)
	assert.False(t, cfg.Substitute())
	assert.Equal(t, "/var/lib/lakerun.db", cfg.HistoryPath(root))
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("metadata_dir: [unclosed"), 0o644))

	_, err := Load(t.TempDir(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LAKERUN_A", "x")
	assert.Equal(t, "x-x-", expandEnvVars("${LAKERUN_A}-${LAKERUN_A}-${LAKERUN_NOPE}"))
	assert.Equal(t, "$LAKERUN_A {{LAKERUN_A}}", expandEnvVars("$LAKERUN_A {{LAKERUN_A}}"))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultMetadataDir, cfg.MetadataDir)
	assert.True(t, cfg.Substitute())
}
