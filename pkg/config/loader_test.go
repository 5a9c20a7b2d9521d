package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RetrievalDefaults(t *testing.T) {
	viper.Reset()
	// 空目录 + 空 HOME 里没有 config.yaml，全靠默认值
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(wd) })
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Setenv("HOME", t.TempDir())

	require.NoError(t, Load(""))

	assert.Equal(t, 4, viper.GetInt("retrieval.concurrency"))
	assert.Equal(t, 3, viper.GetInt("retrieval.max_attempts"))
	assert.Equal(t, 5*time.Second, viper.GetDuration("retrieval.cooldown"))
	assert.Equal(t, 3*time.Second, viper.GetDuration("retrieval.peer_timeout"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("retrieval.attempt_timeout"))
}

func TestLoad_ExplicitFileOverridesDefaults(t *testing.T) {
	viper.Reset()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("retrieval:\n  attempt_timeout: 12s\n"), 0644))

	require.NoError(t, Load(cfg))

	assert.Equal(t, 12*time.Second, viper.GetDuration("retrieval.attempt_timeout"))
	// 没覆盖的键保持默认
	assert.Equal(t, 3*time.Second, viper.GetDuration("retrieval.peer_timeout"))
}
