package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 0.05, cfg.Verify.Threshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Verify.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Verify.Timeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Verify.SettleDelay)
	assert.Equal(t, 10*time.Second, cfg.Locator.ElementWait)
	assert.Equal(t, 720, cfg.Screenshot.MaxWidth)
	assert.Equal(t, 75, cfg.Screenshot.Quality)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Contains(t, cfg.Popup.Vocabulary, "跳过")
	assert.Equal(t, 66, cfg.Keys["enter"])
	require.NoError(t, cfg.Validate())
}

func TestConfigYAMLOverrides(t *testing.T) {
	yamlBytes := []byte(`
verify:
  threshold: 0.2
  timeout: 5s
device:
  serial: emulator-5554
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, 0.2, cfg.Verify.Threshold)
	assert.Equal(t, 5*time.Second, cfg.Verify.Timeout)
	assert.Equal(t, "emulator-5554", cfg.Device.Serial)
	// Defaults still apply to untouched keys
	assert.Equal(t, 100*time.Millisecond, cfg.Verify.PollInterval)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mobile-mcp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o644))
	t.Setenv("MOBILE_MCP_VERIFY_THRESHOLD", "0.1")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 0.1, cfg.Verify.Threshold)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 0.05, cfg.Verify.Threshold)
}

func TestValidate(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Verify.Threshold = 0
	cfg.Sheet.Backend = "excel"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verify.threshold")
	assert.Contains(t, err.Error(), "sheet.backend")
}

func TestTables(t *testing.T) {
	tables := DefaultTables()

	code, ok := tables.KeyCode("ENTER")
	require.True(t, ok)
	assert.Equal(t, 66, code)

	code, ok = tables.KeyCode("搜索")
	require.True(t, ok)
	assert.Equal(t, 84, code)

	code, ok = tables.KeyCode("122")
	require.True(t, ok)
	assert.Equal(t, 122, code)

	_, ok = tables.KeyCode("nope")
	assert.False(t, ok)

	assert.Equal(t, "search", tables.KeyName(84))
	assert.Equal(t, "登录", tables.Synonym("登陆"))
	assert.Equal(t, "登录", tables.StripFillers("点击登录按钮"))
}

func TestTablesAreCopies(t *testing.T) {
	cfg := NewDefaultConfig()
	tables := NewTables(cfg)

	cfg.Popup.Vocabulary[0] = "mutated"
	cfg.Keys["enter"] = 1

	assert.NotContains(t, tables.Vocabulary(), "mutated")
	code, _ := tables.KeyCode("enter")
	assert.Equal(t, 66, code)

	vocab := tables.Vocabulary()
	vocab[0] = "again"
	assert.NotContains(t, tables.Vocabulary(), "again")
}
