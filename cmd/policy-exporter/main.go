// policy-exporter 采集 OPA Gatekeeper 的策略违规并导出 Prometheus 指标。
//
// 每个采集周期读取 k8srequiredlabels 约束的违规状态、扫描缺少 app
// 标签的 Pod、刷新模拟的漏洞扫描结果。集群 API 暂时不可用时只记录
// 错误，下个周期自动重试。指标默认暴露在 :9091/metrics。
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
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/policy"
	"github.com/ceyewan/nimbus/scheduler"
)

type appConfig struct {
	Log        clog.Config      `mapstructure:"log"`
	Metrics    metrics.Config   `mapstructure:"metrics"`
	Scheduler  scheduler.Config `mapstructure:"scheduler"`
	Policy     policy.Config    `mapstructure:"policy"`
	Kubeconfig string           `mapstructure:"kubeconfig"`
}

// loadConfig 加载配置并填充未设置的默认值
func loadConfig() (*appConfig, error) {
	loader := config.MustLoad(config.WithConfigName("policy-exporter"))

	cfg := &appConfig{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Log.Level == "" {
		cfg.Log = *clog.NewProdDefaultConfig("policy-exporter")
	}
	if cfg.Scheduler.Interval == 0 {
		cfg.Scheduler.Interval = 60 * time.Second
	}
	if !cfg.Metrics.Enabled {
		cfg.Metrics = metrics.Config{
			Enabled:     true,
			ServiceName: "policy-exporter",
			Version:     "v1.0.0",
			Port:        9091,
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

	client, err := policy.NewClusterClient(cfg.Kubeconfig)
	if err != nil {
		logger.Fatal("failed to create cluster client", clog.Error(err))
	}

	collector, err := policy.NewCollectorTask(client, &cfg.Policy,
		policy.WithLogger(logger), policy.WithMeter(meter))
	if err != nil {
		logger.Fatal("failed to create collector", clog.Error(err))
	}

	loop, err := scheduler.New(&cfg.Scheduler,
		scheduler.WithLogger(logger),
		scheduler.WithMeter(meter),
	)
	if err != nil {
		logger.Fatal("failed to create scheduler", clog.Error(err))
	}
	loop.Register(collector, scheduler.Every(1))

	logger.Info("policy exporter starting",
		clog.Int("metrics_port", cfg.Metrics.Port),
		clog.Duration("interval", cfg.Scheduler.Interval))

	if err := loop.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("policy exporter exited with error", clog.Error(err))
		os.Exit(1)
	}
	logger.Info("policy exporter stopped")
}
