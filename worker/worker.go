// Package worker 提供后台维护任务。
//
// 两个任务挂在同一个调度循环上：
//   - CountTask 每个周期统计 items 行数，刷新 worker_items_count 指标
//   - CleanupTask 每 10 个周期删除过期条目
//
// 任务失败（最常见的是数据库不可用）只记录日志并计入指标，
// 循环会在下个周期重试，数据库恢复后任务自动恢复工作。
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/store"
	"github.com/ceyewan/nimbus/xerrors"
)

const (
	metricItemsCount          = "worker_items_count"
	metricCleanupDeletedTotal = "worker_cleanup_deleted_total"
)

// Config 后台任务配置
type Config struct {
	// CleanupDays 清理阈值：删除创建时间早于 N 天前的条目 (默认: 30)
	CleanupDays int `mapstructure:"cleanup_days"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.CleanupDays == 0 {
		c.CleanupDays = 30
	}
}

// validate 校验配置
func (c *Config) validate() error {
	c.setDefaults()
	if c.CleanupDays < 0 {
		return fmt.Errorf("清理阈值不能为负")
	}
	return nil
}

// =============================================================================
// CountTask
// =============================================================================

// CountTask 统计 items 行数并刷新指标
type CountTask struct {
	items  store.Store
	logger clog.Logger
	gauge  metrics.Gauge
}

// NewCountTask 创建行数统计任务
func NewCountTask(items store.Store, opts ...Option) (*CountTask, error) {
	if items == nil {
		return nil, xerrors.New("worker: store is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	gauge, err := opt.meter.Gauge(metricItemsCount, "Number of rows in the items table.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create items count gauge")
	}

	return &CountTask{
		items:  items,
		logger: opt.logger,
		gauge:  gauge,
	}, nil
}

// Name 返回任务名称
func (t *CountTask) Name() string {
	return "count-items"
}

// Run 执行一次统计
func (t *CountTask) Run(ctx context.Context) error {
	count, err := t.items.Count(ctx)
	if err != nil {
		return xerrors.Wrap(err, "count items")
	}

	t.gauge.Set(ctx, float64(count))
	t.logger.Info("current items count", clog.Int64("count", count))
	return nil
}

// =============================================================================
// CleanupTask
// =============================================================================

// CleanupTask 删除创建时间早于阈值的条目
type CleanupTask struct {
	items   store.Store
	cfg     *Config
	logger  clog.Logger
	deleted metrics.Counter
}

// NewCleanupTask 创建过期数据清理任务
func NewCleanupTask(items store.Store, cfg *Config, opts ...Option) (*CleanupTask, error) {
	if items == nil {
		return nil, xerrors.New("worker: store is nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(err, "invalid worker config")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	deleted, err := opt.meter.Counter(metricCleanupDeletedTotal, "Total number of items removed by cleanup.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create cleanup counter")
	}

	return &CleanupTask{
		items:   items,
		cfg:     cfg,
		logger:  opt.logger,
		deleted: deleted,
	}, nil
}

// Name 返回任务名称
func (t *CleanupTask) Name() string {
	return "cleanup-items"
}

// Run 执行一次清理
func (t *CleanupTask) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -t.cfg.CleanupDays)

	deleted, err := t.items.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return xerrors.Wrap(err, "cleanup items")
	}

	if deleted > 0 {
		t.deleted.Add(ctx, float64(deleted))
		t.logger.Info("cleanup removed old items",
			clog.Int64("deleted", deleted),
			clog.Int("cleanup_days", t.cfg.CleanupDays))
	} else {
		t.logger.Debug("cleanup found nothing to remove", clog.Int("cleanup_days", t.cfg.CleanupDays))
	}
	return nil
}
