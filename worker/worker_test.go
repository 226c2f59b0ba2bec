package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/nimbus/connector"
	"github.com/ceyewan/nimbus/scheduler"
	"github.com/ceyewan/nimbus/store"
	"github.com/ceyewan/nimbus/testkit"
)

func newTestStore(t *testing.T) (store.Store, connector.SQLiteConnector) {
	t.Helper()

	conn := testkit.NewSQLiteConnector(t)

	s, err := store.New(conn)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s, conn
}

func newUnavailableStore(t *testing.T) store.Store {
	t.Helper()

	conn, err := connector.NewPostgreSQL(&connector.PostgreSQLConfig{
		Host:     "127.0.0.1",
		Port:     1,
		Username: "postgres",
		Password: "postgres",
		Database: "appdb",
		SSLMode:  "disable",
	})
	require.NoError(t, err)

	s, err := store.New(conn)
	require.NoError(t, err)
	return s
}

func TestCountTask(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "one", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "two", "")
	require.NoError(t, err)

	task, err := NewCountTask(s)
	require.NoError(t, err)
	assert.Equal(t, "count-items", task.Name())

	require.NoError(t, task.Run(ctx))
}

func TestCountTaskUnavailableDatabase(t *testing.T) {
	task, err := NewCountTask(newUnavailableStore(t))
	require.NoError(t, err)

	// 数据库不可用时返回错误，但不 panic
	require.NotPanics(t, func() {
		err := task.Run(context.Background())
		require.Error(t, err)
	})
}

func TestCleanupTask(t *testing.T) {
	s, conn := newTestStore(t)
	ctx := context.Background()

	fresh, err := s.Create(ctx, "fresh", "")
	require.NoError(t, err)
	stale, err := s.Create(ctx, "stale", "")
	require.NoError(t, err)

	// 把 stale 的创建时间拨回 31 天前
	backdateItem(t, conn, stale.ID, time.Now().UTC().AddDate(0, 0, -31))

	task, err := NewCleanupTask(s, &Config{CleanupDays: 30})
	require.NoError(t, err)
	assert.Equal(t, "cleanup-items", task.Name())

	require.NoError(t, task.Run(ctx))

	items, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, fresh.ID, items[0].ID)
}

func TestCleanupTaskDefaultThreshold(t *testing.T) {
	s, _ := newTestStore(t)
	task, err := NewCleanupTask(s, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, task.cfg.CleanupDays)
}

func TestCleanupTaskUnavailableDatabase(t *testing.T) {
	task, err := NewCleanupTask(newUnavailableStore(t), nil)
	require.NoError(t, err)

	require.NotPanics(t, func() {
		err := task.Run(context.Background())
		require.Error(t, err)
	})
}

// TestTasksOnLoop 两个任务挂在调度循环上：统计每周期执行，清理每 10 周期执行
func TestTasksOnLoop(t *testing.T) {
	s, conn := newTestStore(t)
	ctx := context.Background()

	stale, err := s.Create(ctx, "stale", "")
	require.NoError(t, err)
	backdateItem(t, conn, stale.ID, time.Now().UTC().AddDate(0, 0, -31))

	countTask, err := NewCountTask(s)
	require.NoError(t, err)
	cleanupTask, err := NewCleanupTask(s, &Config{CleanupDays: 30})
	require.NoError(t, err)

	loop, err := scheduler.New(&scheduler.Config{Interval: time.Minute})
	require.NoError(t, err)
	loop.Register(countTask, scheduler.Every(1))
	loop.Register(cleanupTask, scheduler.Every(10))

	// 前 9 个周期只有统计任务执行，过期条目仍在
	for i := 0; i < 9; i++ {
		results := loop.Tick(ctx)
		require.Len(t, results, 1)
		assert.Equal(t, "count-items", results[0].Task)
	}
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 第 10 个周期清理任务执行，过期条目被删除
	results := loop.Tick(ctx)
	require.Len(t, results, 2)
	assert.Equal(t, "cleanup-items", results[1].Task)
	require.NoError(t, results[1].Err)

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

// backdateItem 直接改写创建时间来构造历史数据
func backdateItem(t *testing.T, conn connector.SQLiteConnector, id uint, at time.Time) {
	t.Helper()

	db, ok := connector.Acquire(context.Background(), conn)
	require.True(t, ok)
	require.NoError(t, db.Model(&store.Item{}).Where("id = ?", id).Update("created_at", at).Error)
}
