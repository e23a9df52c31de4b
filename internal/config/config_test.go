package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "development"},
		Logger:   LoggerConfig{Level: "info"},
		Data:     DataConfig{Path: "/var/lib/siftr"},
		Datasets: DatasetsConfig{ImportConcurrency: 4},
		Store:    StoreConfig{Backend: BackendBadger},
		Server:   ServerConfig{ImportRatePerMinute: 10},
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_Environment(t *testing.T) {
	tests := []struct {
		env     string
		wantErr bool
	}{
		{"development", false},
		{"staging", false},
		{"production", false},
		{"", true},
		{"testing", true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "WARN", "error"} {
		cfg := validConfig()
		cfg.Logger.Level = level
		assert.NoError(t, cfg.Validate(), level)
	}

	cfg := validConfig()
	cfg.Logger.Level = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestValidate_StoreBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Backend = BackendSQLite
	assert.NoError(t, cfg.Validate())

	cfg.Store.Backend = "postgres"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid store backend")
}

func TestValidate_WatchRequiresManifest(t *testing.T) {
	cfg := validConfig()
	cfg.Datasets.Watch = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MANIFEST_PATH")

	cfg.Datasets.ManifestPath = "/etc/siftr/datasets.yaml"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_EmptyDataPath(t *testing.T) {
	cfg := validConfig()
	cfg.Data.Path = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "data path cannot be empty")
}

func TestStorePath(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, filepath.Join("/var/lib/siftr", "db"), cfg.StorePath())

	cfg.Store.Backend = BackendSQLite
	assert.Equal(t, filepath.Join("/var/lib/siftr", "siftr.db"), cfg.StorePath())
}

func TestExpandDataPath_EmptyUsesDefault(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.expandDataPath())

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	assert.Equal(t, filepath.Join(homeDir, "Siftr", "data"), cfg.Data.Path)
}

func TestExpandDataPath_TildeExpansion(t *testing.T) {
	cfg := &Config{Data: DataConfig{Path: "~/plants"}}
	require.NoError(t, cfg.expandDataPath())

	homeDir, _ := os.UserHomeDir() //nolint:errcheck // Test setup
	assert.Equal(t, filepath.Join(homeDir, "plants"), cfg.Data.Path)
}

func TestExpandDataPath_RelativePath(t *testing.T) {
	cfg := &Config{Data: DataConfig{Path: "relative/path"}}
	require.NoError(t, cfg.expandDataPath())

	assert.True(t, filepath.IsAbs(cfg.Data.Path))
	assert.Contains(t, cfg.Data.Path, "relative/path")
}

func TestExpandManifestPath_EmptyStaysEmpty(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.expandManifestPath())
	assert.Empty(t, cfg.Datasets.ManifestPath)
}

func TestGetConfigValue_Precedence(t *testing.T) {
	assert.Equal(t, "flag-value", getConfigValue("flag-value", "ENV_KEY", "default-value"))

	t.Setenv("TEST_ENV_KEY", "env-value")
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default-value"))

	assert.Equal(t, "default-value", getConfigValue("", "NONEXISTENT_KEY", "default-value"))
}

func TestGetBoolConfigValue(t *testing.T) {
	assert.True(t, getBoolConfigValue("yes", "UNUSED", false))
	assert.True(t, getBoolConfigValue("1", "UNUSED", false))
	assert.False(t, getBoolConfigValue("off", "UNUSED", true))
	assert.True(t, getBoolConfigValue("", "NONEXISTENT_BOOL", true))
}

func TestGetIntConfigValue(t *testing.T) {
	assert.Equal(t, 7, getIntConfigValue("7", "UNUSED", 3))
	assert.Equal(t, 3, getIntConfigValue("seven", "UNUSED", 3))
	assert.Equal(t, 3, getIntConfigValue("", "NONEXISTENT_INT", 3))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, splitList(" https://a.example, ,https://b.example "))
	assert.Nil(t, splitList(""))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)

	cfg, err := Load([]string{"-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Datasets.Debounce)
	assert.Equal(t, 4, cfg.Datasets.ImportConcurrency)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Datasets.Watch)
	assert.Equal(t, dir, cfg.Data.Path)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)
	t.Setenv("STORE_BACKEND", "badger")
	t.Setenv("SERVER_PORT", "9000")

	cfg, err := Load([]string{
		"-env-file", filepath.Join(dir, "missing.env"),
		"-store", "SQLite",
		"-read-timeout", "2s",
	})
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)

	_, err := Load([]string{"-env-file", filepath.Join(dir, "missing.env"), "-watch-debounce", "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WATCH_DEBOUNCE")
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"-no-such-flag"})
	assert.Error(t, err)
}

func TestLoadEnvFile_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `# Test env file
SIFTR_TEST_ENV=staging
SIFTR_TEST_LEVEL=debug
# Comment line
SIFTR_TEST_QUOTED="some value"
SIFTR_TEST_SINGLE='another value'
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	for _, key := range []string{"SIFTR_TEST_ENV", "SIFTR_TEST_LEVEL", "SIFTR_TEST_QUOTED", "SIFTR_TEST_SINGLE"} {
		t.Setenv(key, "")
	}

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "staging", os.Getenv("SIFTR_TEST_ENV"))
	assert.Equal(t, "debug", os.Getenv("SIFTR_TEST_LEVEL"))
	assert.Equal(t, "some value", os.Getenv("SIFTR_TEST_QUOTED"))
	assert.Equal(t, "another value", os.Getenv("SIFTR_TEST_SINGLE"))
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")

	content := `VALID_KEY=valid_value
INVALID LINE WITHOUT EQUALS
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/file/.env"))
}

func TestLoadEnvFile_ExistingEnvVarsNotOverwritten(t *testing.T) {
	t.Setenv("SIFTR_TEST_VAR", "original-value")

	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`SIFTR_TEST_VAR=new-value`), 0o644))

	require.NoError(t, loadEnvFile(envFile))
	assert.Equal(t, "original-value", os.Getenv("SIFTR_TEST_VAR"))
}

func TestLoadEnvFile_Whitespace(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(`  SIFTR_TEST_SPACES  =  value with spaces  `), 0o644))

	t.Setenv("SIFTR_TEST_SPACES", "")
	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "value with spaces", os.Getenv("SIFTR_TEST_SPACES"))
}
