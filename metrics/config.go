package metrics

// Config 指标系统的配置结构体
// 用于控制指标系统的启用状态、服务标识和 Prometheus 暴露配置
//
// 典型配置示例（YAML）：
//
//	metrics:
//	  enabled: true
//	  service_name: "policy-exporter"
//	  version: "v1.0.0"
//	  port: 9091
//	  path: "/metrics"
type Config struct {
	// Enabled 是否启用指标收集
	// 为 false 时，metrics.New() 会返回 noop Meter，所有操作都是空操作
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 服务名称，作为 OpenTelemetry Resource 的 service.name 属性
	ServiceName string `mapstructure:"service_name"`

	// Version 服务版本，作为 OpenTelemetry Resource 的 service.version 属性
	Version string `mapstructure:"version"`

	// Port Prometheus HTTP 服务器监听的端口
	// 如果设置大于 0，会启动 HTTP 服务器用于暴露 Prometheus 格式的指标
	// 对于自带 HTTP 服务器的服务（如 api），设为 0 并通过 Handler() 挂载
	Port int `mapstructure:"port"`

	// Path Prometheus 指标的 HTTP 路径，常用 "/metrics"
	Path string `mapstructure:"path"`
}

// NewDevDefaultConfig 返回适合本地开发与测试的默认配置
// 不启动独立的暴露服务器
func NewDevDefaultConfig(service string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: service,
		Version:     "dev",
	}
}

// NewProdDefaultConfig 返回带独立暴露端口的生产默认配置
func NewProdDefaultConfig(service string, port int) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: service,
		Version:     "v1.0.0",
		Port:        port,
		Path:        "/metrics",
	}
}
