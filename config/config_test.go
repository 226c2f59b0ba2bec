package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type dbSection struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type testConfig struct {
	DB       dbSection `mapstructure:"db"`
	Interval int       `mapstructure:"interval"`
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return dir
}

func TestLoadFromFile(t *testing.T) {
	dir := writeConfigFile(t, "db:\n  host: db.internal\n  port: 5432\ninterval: 60\n")

	loader, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var cfg testConfig
	require.NoError(t, loader.Unmarshal(&cfg))
	require.Equal(t, "db.internal", cfg.DB.Host)
	require.Equal(t, 5432, cfg.DB.Port)
	require.Equal(t, 60, cfg.Interval)
}

func TestLoadWithoutFile(t *testing.T) {
	// 缺失配置文件不是错误：服务可以完全靠环境变量运行
	loader, err := New(WithConfigPaths(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))
}

func TestEnvOverridesFile(t *testing.T) {
	dir := writeConfigFile(t, "db:\n  host: from-file\n")

	t.Setenv("NIMBUS_DB_HOST", "from-env")

	loader, err := New(WithConfigPaths(dir), WithEnvPrefix("NIMBUS"))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	require.Equal(t, "from-env", loader.Get("db.host"))
}

func TestUnmarshalKey(t *testing.T) {
	dir := writeConfigFile(t, "db:\n  host: localhost\n  port: 5432\n")

	loader, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	var db dbSection
	require.NoError(t, loader.UnmarshalKey("db", &db))
	require.Equal(t, "localhost", db.Host)
}

func TestWatchCancellation(t *testing.T) {
	dir := writeConfigFile(t, "interval: 60\n")

	loader, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "interval")
	require.NoError(t, err)

	cancel()

	// 取消后通道应被关闭
	select {
	case _, ok := <-ch:
		require.False(t, ok, "取消监听后通道应关闭")
	case <-time.After(2 * time.Second):
		t.Fatal("取消监听后通道未关闭")
	}
}
