package scheduler

import (
	"context"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/metrics"
)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	init   func(ctx context.Context) error
}

// applyDefaults 填充未设置的依赖
func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
}

// Option 配置调度循环的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("scheduler")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithInit 设置循环启动前执行的初始化函数。
//
// 初始化失败时等待 InitRetryBackoff 后重试一次；
// 两次都失败时循环照常启动，由任务自身降级。
func WithInit(fn func(ctx context.Context) error) Option {
	return func(o *options) {
		o.init = fn
	}
}
