package connector

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/metrics"
)

// TestPostgreSQLConfigValidation 测试 PostgreSQL 配置验证
func TestPostgreSQLConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *PostgreSQLConfig
		wantErr     bool
		errContains string
	}{
		{
			name: "valid config with defaults",
			cfg: &PostgreSQLConfig{
				Host:     "localhost",
				Username: "postgres",
				Password: "postgres",
				Database: "appdb",
			},
			wantErr: false,
		},
		{
			name: "dsn only is valid",
			cfg: &PostgreSQLConfig{
				DSN: "host=localhost port=5432 user=postgres dbname=appdb",
			},
			wantErr: false,
		},
		{
			name: "empty host should fail",
			cfg: &PostgreSQLConfig{
				Username: "postgres",
				Database: "appdb",
			},
			wantErr:     true,
			errContains: "主机地址不能为空",
		},
		{
			name: "empty username should fail",
			cfg: &PostgreSQLConfig{
				Host:     "localhost",
				Database: "appdb",
			},
			wantErr:     true,
			errContains: "用户名不能为空",
		},
		{
			name: "empty database should fail",
			cfg: &PostgreSQLConfig{
				Host:     "localhost",
				Username: "postgres",
			},
			wantErr:     true,
			errContains: "数据库名不能为空",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				require.NoError(t, err)
				// Verify defaults are set
				assert.NotEmpty(t, tt.cfg.Name)
				assert.Equal(t, 5432, tt.cfg.Port)
				assert.Equal(t, "require", tt.cfg.SSLMode)
				assert.Equal(t, "UTC", tt.cfg.Timezone)
				assert.Equal(t, 5*time.Second, tt.cfg.ConnectTimeout)
			}
		})
	}
}

// TestSQLiteConfigValidation 测试 SQLite 配置验证
func TestSQLiteConfigValidation(t *testing.T) {
	err := (&SQLiteConfig{}).validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "路径不能为空")

	cfg := &SQLiteConfig{Path: ":memory:"}
	require.NoError(t, cfg.validate())
	assert.Equal(t, "default", cfg.Name)
}

// TestSQLiteConnectorLifecycle 测试 SQLite 连接器完整生命周期
func TestSQLiteConnectorLifecycle(t *testing.T) {
	ctx := context.Background()

	conn, err := NewSQLite(&SQLiteConfig{
		Name: "lifecycle",
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, WithLogger(clog.Discard()))
	require.NoError(t, err)

	// 连接前客户端为 nil，健康检查失败
	assert.Nil(t, conn.GetClient())
	assert.False(t, conn.IsHealthy())
	require.Error(t, conn.HealthCheck(ctx))

	// 建立连接
	require.NoError(t, conn.Connect(ctx))
	assert.NotNil(t, conn.GetClient())
	assert.True(t, conn.IsHealthy())
	require.NoError(t, conn.HealthCheck(ctx))
	assert.Equal(t, "lifecycle", conn.Name())

	// Connect 幂等
	require.NoError(t, conn.Connect(ctx))

	// 关闭后客户端为 nil
	require.NoError(t, conn.Close())
	assert.Nil(t, conn.GetClient())
	assert.False(t, conn.IsHealthy())

	// Close 幂等
	require.NoError(t, conn.Close())
}

// TestAcquireConnected 已连接时 Acquire 返回可用句柄
func TestAcquireConnected(t *testing.T) {
	ctx := context.Background()

	conn, err := NewSQLite(&SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, conn.Connect(ctx))
	defer conn.Close()

	db, ok := Acquire(ctx, conn)
	require.True(t, ok)
	require.NotNil(t, db)
}

// TestAcquireLazyConnect 未连接时 Acquire 自动建立连接
func TestAcquireLazyConnect(t *testing.T) {
	ctx := context.Background()

	conn, err := NewSQLite(&SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	defer conn.Close()

	db, ok := Acquire(ctx, conn)
	require.True(t, ok)
	require.NotNil(t, db)
}

// TestAcquireUnavailable 数据库不可用时返回 (nil, false)，不 panic
func TestAcquireUnavailable(t *testing.T) {
	ctx := context.Background()

	// 指向不可达主机的 PostgreSQL，Connect 必然失败
	conn, err := NewPostgreSQL(&PostgreSQLConfig{
		Host:     "127.0.0.1",
		Port:     1, // 不可能有监听
		Username: "postgres",
		Password: "postgres",
		Database: "appdb",
		SSLMode:  "disable",
	}, WithLogger(clog.Discard()))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		db, ok := Acquire(ctx, conn)
		assert.False(t, ok)
		assert.Nil(t, db)
	})
}

// TestAcquireNilConnector nil 连接器不 panic
func TestAcquireNilConnector(t *testing.T) {
	require.NotPanics(t, func() {
		db, ok := Acquire(context.Background(), nil)
		assert.False(t, ok)
		assert.Nil(t, db)
	})
}

// TestConnectTimeoutEnforced 数据库无响应时 Connect 必须在超时内返回，
// 不能无限阻塞调用方
func TestConnectTimeoutEnforced(t *testing.T) {
	// 监听但从不应答握手，模拟挂起的数据库
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()
	t.Cleanup(func() {
		for {
			select {
			case c := <-accepted:
				c.Close()
			default:
				return
			}
		}
	})

	conn, err := NewPostgreSQL(&PostgreSQLConfig{
		Host:           "127.0.0.1",
		Port:           ln.Addr().(*net.TCPAddr).Port,
		Username:       "postgres",
		Password:       "postgres",
		Database:       "appdb",
		SSLMode:        "disable",
		ConnectTimeout: 200 * time.Millisecond,
	}, WithLogger(clog.Discard()))
	require.NoError(t, err)

	start := time.Now()
	err = conn.Connect(context.Background())
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

// TestConnectorMetrics 连接尝试和健康检查都会计数
func TestConnectorMetrics(t *testing.T) {
	ctx := context.Background()

	reader := sdkmetric.NewManualReader()
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "connector-test"},
		metrics.WithReader(reader))
	require.NoError(t, err)

	conn, err := NewSQLite(&SQLiteConfig{Path: ":memory:"}, WithMeter(meter))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Connect(ctx))
	require.NoError(t, conn.HealthCheck(ctx))

	assert.Equal(t, 1.0, counterValue(t, reader, metricConnectTotal))
	assert.Equal(t, 1.0, counterValue(t, reader, metricHealthCheckTotal))
}

// counterValue 汇总指定计数器在所有标签组合下的值
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) float64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[float64])
			require.True(t, ok)
			var total float64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}
