package scheduler

import (
	"fmt"
	"time"
)

// Config 调度循环配置
type Config struct {
	// Interval 调度周期，每个周期触发一次 Tick (默认: 60s)
	Interval time.Duration `mapstructure:"interval"`

	// InitRetryBackoff 初始化失败后重试前的等待时间 (默认: 5s)
	InitRetryBackoff time.Duration `mapstructure:"init_retry_backoff"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.InitRetryBackoff == 0 {
		c.InitRetryBackoff = 5 * time.Second
	}
}

// validate 校验配置
func (c *Config) validate() error {
	c.setDefaults()
	if c.Interval < 0 {
		return fmt.Errorf("调度周期不能为负")
	}
	if c.InitRetryBackoff < 0 {
		return fmt.Errorf("初始化重试间隔不能为负")
	}
	return nil
}

// NewDevDefaultConfig 返回适合本地开发的默认配置
func NewDevDefaultConfig() *Config {
	return &Config{
		Interval:         5 * time.Second,
		InitRetryBackoff: time.Second,
	}
}

// NewProdDefaultConfig 返回生产默认配置
func NewProdDefaultConfig() *Config {
	return &Config{
		Interval:         60 * time.Second,
		InitRetryBackoff: 5 * time.Second,
	}
}
