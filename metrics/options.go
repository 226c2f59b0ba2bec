package metrics

import (
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ceyewan/nimbus/clog"
)

// Option 配置 Meter 实例的选项函数类型
// 用于在创建 Meter 实例时注入自定义配置
type Option func(*options)

// options 内部选项结构，存储 Meter 的配置信息
// 这个结构体是非导出的，只能通过 Option 函数进行修改
type options struct {
	// logger 日志记录器，用于记录指标系统的内部事件
	logger clog.Logger

	// reader 自定义的指标读取器
	// 设置后不再创建 Prometheus Exporter，也不启动暴露服务器
	reader sdkmetric.Reader
}

// WithLogger 注入日志记录器
// 组件会自动为 logger 添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			// 自动添加 metrics 命名空间，保持日志的可追踪性
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithReader 注入自定义的指标读取器
// 测试中配合 sdkmetric.NewManualReader() 使用，可直接断言采集到的指标值
func WithReader(reader sdkmetric.Reader) Option {
	return func(o *options) {
		o.reader = reader
	}
}
