// worker 是后台维护任务的入口。
//
// 启动时初始化 items 表结构（失败重试一次），之后进入固定周期循环：
// 每个周期统计行数，每 10 个周期清理过期条目。数据库不可用时任务
// 失败但循环不退出，数据库恢复后自动恢复工作。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/config"
	"github.com/ceyewan/nimbus/connector"
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/scheduler"
	"github.com/ceyewan/nimbus/store"
	"github.com/ceyewan/nimbus/worker"
)

const cleanupEveryNIntervals = 10

type appConfig struct {
	Log       clog.Config                `mapstructure:"log"`
	Database  connector.PostgreSQLConfig `mapstructure:"database"`
	Metrics   metrics.Config             `mapstructure:"metrics"`
	Scheduler scheduler.Config           `mapstructure:"scheduler"`
	Worker    worker.Config              `mapstructure:"worker"`
}

// loadConfig 加载配置并填充未设置的默认值
func loadConfig() (*appConfig, error) {
	loader := config.MustLoad(config.WithConfigName("worker"))

	cfg := &appConfig{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Log.Level == "" {
		cfg.Log = *clog.NewProdDefaultConfig("worker-service")
	}
	if cfg.Database.Host == "" && cfg.Database.DSN == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Username == "" {
		cfg.Database.Username = "postgres"
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = "postgres"
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = "appdb"
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 60 * time.Second
	}
	if !cfg.Metrics.Enabled {
		cfg.Metrics = metrics.Config{
			Enabled:     true,
			ServiceName: "worker-service",
			Version:     "v1.0.0",
			Port:        9090,
			Path:        "/metrics",
		}
	}

	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := clog.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Flush()

	meter, err := metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create meter", clog.Error(err))
	}
	defer meter.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgConn, err := connector.NewPostgreSQL(&cfg.Database,
		connector.WithLogger(logger), connector.WithMeter(meter))
	if err != nil {
		logger.Fatal("invalid database config", clog.Error(err))
	}
	defer pgConn.Close()

	if err := pgConn.Connect(ctx); err != nil {
		logger.Warn("database not reachable at startup, tasks will retry", clog.Error(err))
	}

	items, err := store.New(pgConn, store.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create store", clog.Error(err))
	}

	countTask, err := worker.NewCountTask(items,
		worker.WithLogger(logger), worker.WithMeter(meter))
	if err != nil {
		logger.Fatal("failed to create count task", clog.Error(err))
	}
	cleanupTask, err := worker.NewCleanupTask(items, &cfg.Worker,
		worker.WithLogger(logger), worker.WithMeter(meter))
	if err != nil {
		logger.Fatal("failed to create cleanup task", clog.Error(err))
	}

	loop, err := scheduler.New(&cfg.Scheduler,
		scheduler.WithLogger(logger),
		scheduler.WithMeter(meter),
		scheduler.WithInit(items.EnsureSchema),
	)
	if err != nil {
		logger.Fatal("failed to create scheduler", clog.Error(err))
	}

	loop.Register(countTask, scheduler.Every(1))
	loop.Register(cleanupTask, scheduler.Every(cleanupEveryNIntervals))

	logger.Info("worker starting",
		clog.Duration("interval", cfg.Scheduler.Interval),
		clog.Int("cleanup_days", cfg.Worker.CleanupDays))

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("worker exited with error", clog.Error(err))
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
