// Package scheduler 提供后台任务的定时调度循环。
//
// 核心是一个可取消的固定周期循环：每个周期按注册顺序执行到期的任务，
// 任务失败只记录和计数，永远不会使循环退出。这保证了后台服务
// 在数据库抖动、集群 API 暂时不可用等场景下的自愈能力。
//
// 基本使用：
//
//	loop, err := scheduler.New(&scheduler.Config{Interval: 60 * time.Second},
//		scheduler.WithLogger(logger),
//		scheduler.WithMeter(meter),
//		scheduler.WithInit(func(ctx context.Context) error {
//			return items.EnsureSchema(ctx)
//		}),
//	)
//	loop.Register(countTask, scheduler.Every(1))
//	loop.Register(cleanupTask, scheduler.Every(10))
//
//	// Run 阻塞直到 ctx 取消
//	loop.Run(ctx)
package scheduler

import (
	"context"
	"time"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/xerrors"
)

const (
	metricTicksTotal          = "scheduler_ticks_total"
	metricTaskRunsTotal       = "scheduler_task_runs_total"
	metricTaskDurationSeconds = "scheduler_task_duration_seconds"
)

type registration struct {
	task    Task
	cadence Cadence
}

// Loop 固定周期的调度循环
type Loop struct {
	cfg    *Config
	logger clog.Logger

	tasks     []registration
	init      func(ctx context.Context) error
	iteration uint64

	ticksTotal metrics.Counter
	runsTotal  metrics.Counter
	duration   metrics.Histogram
}

// New 创建调度循环
func New(cfg *Config, opts ...Option) (*Loop, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(err, "invalid scheduler config")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	ticksTotal, err := opt.meter.Counter(metricTicksTotal, "Total number of scheduler ticks.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create ticks counter")
	}
	runsTotal, err := opt.meter.Counter(metricTaskRunsTotal, "Total number of scheduled task runs.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create task runs counter")
	}
	duration, err := opt.meter.Histogram(metricTaskDurationSeconds, "Scheduled task duration in seconds.",
		metrics.WithUnit("s"))
	if err != nil {
		return nil, xerrors.Wrap(err, "create task duration histogram")
	}

	return &Loop{
		cfg:        cfg,
		logger:     opt.logger,
		init:       opt.init,
		ticksTotal: ticksTotal,
		runsTotal:  runsTotal,
		duration:   duration,
	}, nil
}

// Register 注册任务。
//
// 任务按注册顺序执行。必须在 Run 之前调用，Run 启动后注册不安全。
func (l *Loop) Register(task Task, cadence Cadence) {
	l.tasks = append(l.tasks, registration{task: task, cadence: cadence})
}

// Run 启动调度循环，阻塞直到 ctx 取消。
//
// 启动顺序：先执行初始化（失败重试一次），然后进入固定周期循环。
// 初始化彻底失败也会进入循环：任务在数据库恢复后自动恢复工作。
func (l *Loop) Run(ctx context.Context) error {
	l.runInit(ctx)

	l.logger.Info("scheduler started",
		clog.Duration("interval", l.cfg.Interval),
		clog.Int("tasks", len(l.tasks)))

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopped", clog.Int64("iterations", int64(l.iteration)))
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick 执行一个调度周期，返回本周期所有到期任务的执行结果。
//
// 周期计数从 1 开始：第一次 Tick 是第 1 个周期。
// 导出此方法是为了让调用方（和测试）能同步驱动循环。
func (l *Loop) Tick(ctx context.Context) []Result {
	l.iteration++
	l.ticksTotal.Inc(ctx)

	var results []Result
	for _, reg := range l.tasks {
		if !reg.cadence.due(l.iteration) {
			continue
		}
		results = append(results, l.runTask(ctx, reg.task))
	}
	return results
}

// runTask 执行单个任务并记录结果，任务 panic 之外的错误均被吞掉
func (l *Loop) runTask(ctx context.Context, task Task) Result {
	start := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(start)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		l.logger.Error("task failed",
			clog.String("task", task.Name()),
			clog.Duration("duration", elapsed),
			clog.Error(err))
	} else {
		l.logger.Debug("task completed",
			clog.String("task", task.Name()),
			clog.Duration("duration", elapsed))
	}

	l.runsTotal.Inc(ctx, metrics.L(metrics.LabelTask, task.Name()), metrics.L(metrics.LabelOutcome, outcome))
	l.duration.Record(ctx, elapsed.Seconds(), metrics.L(metrics.LabelTask, task.Name()))

	return Result{Task: task.Name(), Err: err, Duration: elapsed}
}

// runInit 执行初始化，失败后等待固定间隔重试一次
func (l *Loop) runInit(ctx context.Context) {
	if l.init == nil {
		return
	}

	err := l.init(ctx)
	if err == nil {
		return
	}

	l.logger.Warn("init failed, retrying",
		clog.Duration("backoff", l.cfg.InitRetryBackoff),
		clog.Error(err))

	select {
	case <-ctx.Done():
		return
	case <-time.After(l.cfg.InitRetryBackoff):
	}

	if err := l.init(ctx); err != nil {
		// 初始化失败不阻止循环启动，任务会在依赖恢复后继续工作
		l.logger.Error("init failed after retry, continuing anyway", clog.Error(err))
	}
}
