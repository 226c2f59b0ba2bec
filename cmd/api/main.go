// api 是 items 的 REST 服务入口。
//
// 配置来源（优先级从高到低）：环境变量（NIMBUS_ 前缀）、.env 文件、
// config.yaml。数据库不可用时服务照常启动，相关端点返回 503，
// 数据库恢复后自动恢复服务。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ceyewan/nimbus/api"
	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/config"
	"github.com/ceyewan/nimbus/connector"
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/store"
)

type appConfig struct {
	Log      clog.Config                `mapstructure:"log"`
	Database connector.PostgreSQLConfig `mapstructure:"database"`
	Metrics  metrics.Config             `mapstructure:"metrics"`
	Server   api.Config                 `mapstructure:"server"`
}

// loadConfig 加载配置并填充未设置的默认值
func loadConfig() (*appConfig, error) {
	loader := config.MustLoad(config.WithConfigName("api"))

	cfg := &appConfig{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if cfg.Log.Level == "" {
		cfg.Log = *clog.NewProdDefaultConfig("api-service")
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
	if !cfg.Metrics.Enabled {
		cfg.Metrics = metrics.Config{
			Enabled:     true,
			ServiceName: "api-service",
			Version:     "v1.0.0",
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defer meter.Shutdown(context.Background())

	pgConn, err := connector.NewPostgreSQL(&cfg.Database,
		connector.WithLogger(logger), connector.WithMeter(meter))
	if err != nil {
		logger.Fatal("invalid database config", clog.Error(err))
	}
	defer pgConn.Close()

	// 连接失败不致命：端点返回 503，数据库恢复后自动重连
	if err := pgConn.Connect(ctx); err != nil {
		logger.Warn("database not reachable at startup, serving degraded", clog.Error(err))
	}

	items, err := store.New(pgConn, store.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to create store", clog.Error(err))
	}

	srv, err := api.New(&cfg.Server, items, pgConn,
		api.WithLogger(logger), api.WithMeter(meter))
	if err != nil {
		logger.Fatal("failed to create api server", clog.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("api server exited with error", clog.Error(err))
		os.Exit(1)
	}
	logger.Info("api server stopped")
}
