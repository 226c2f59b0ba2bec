package connector

import (
	"context"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/metrics"
)

const (
	metricConnectTotal     = "connector_connect_attempts_total"
	metricHealthCheckTotal = "connector_health_checks_total"
)

// instruments 连接器的指标集合，每次连接尝试和健康检查都会计数
type instruments struct {
	driver       string
	connects     metrics.Counter
	healthChecks metrics.Counter
}

func newInstruments(meter metrics.Meter, driver string) (*instruments, error) {
	connects, err := meter.Counter(metricConnectTotal, "Total number of connector connect attempts.")
	if err != nil {
		return nil, err
	}
	healthChecks, err := meter.Counter(metricHealthCheckTotal, "Total number of connector health checks.")
	if err != nil {
		return nil, err
	}
	return &instruments{driver: driver, connects: connects, healthChecks: healthChecks}, nil
}

func (i *instruments) observeConnect(ctx context.Context, name string, err error) {
	i.connects.Inc(ctx,
		metrics.L("connector", i.driver),
		metrics.L("name", name),
		metrics.L(metrics.LabelOutcome, outcomeOf(err)))
}

func (i *instruments) observeHealthCheck(ctx context.Context, name string, err error) {
	i.healthChecks.Inc(ctx,
		metrics.L("connector", i.driver),
		metrics.L("name", name),
		metrics.L(metrics.LabelOutcome, outcomeOf(err)))
}

func outcomeOf(err error) string {
	if err != nil {
		return metrics.OutcomeError
	}
	return metrics.OutcomeSuccess
}

type options struct {
	logger clog.Logger
	meter  metrics.Meter
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

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}
