package scheduler

import (
	"context"
	"time"
)

// Task 后台任务的最小契约。
//
// Run 返回的错误只用于记录和计数，不会终止调度循环。
// 任务实现应自行处理降级逻辑（如数据库不可用时跳过本次执行）。
type Task interface {
	// Name 返回任务名称，用于日志和指标标签
	Name() string

	// Run 执行一次任务
	Run(ctx context.Context) error
}

// TaskFunc 函数式任务适配器
type TaskFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewTask 将函数包装为 Task
func NewTask(name string, fn func(ctx context.Context) error) Task {
	return &TaskFunc{name: name, fn: fn}
}

// Name 返回任务名称
func (t *TaskFunc) Name() string {
	return t.name
}

// Run 执行一次任务
func (t *TaskFunc) Run(ctx context.Context) error {
	return t.fn(ctx)
}

// Result 一次任务执行的结果。
//
// 调度器把每次执行的结果显式返回给调用方（以及 Tick 的测试调用者），
// 而不是只留下日志，方便上层做断言和聚合。
type Result struct {
	// Task 任务名称
	Task string

	// Err 执行错误，成功时为 nil
	Err error

	// Duration 本次执行耗时
	Duration time.Duration
}

// Cadence 任务的执行节奏
type Cadence struct {
	every int
}

// Every 每 n 个周期执行一次。
//
// n=1 表示每个周期都执行；n=10 表示第 10、20、30…个周期执行。
// n 小于 1 时按 1 处理。
func Every(n int) Cadence {
	if n < 1 {
		n = 1
	}
	return Cadence{every: n}
}

// due 判断第 iteration 个周期是否应该执行
func (c Cadence) due(iteration uint64) bool {
	return iteration%uint64(c.every) == 0
}
