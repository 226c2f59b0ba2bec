package store

import "github.com/ceyewan/nimbus/xerrors"

// Sentinel Errors - 数据访问层专用的哨兵错误
var (
	// ErrUnavailable 数据库不可用，调用方应降级而非崩溃
	ErrUnavailable = xerrors.New("store: database unavailable")

	// ErrNotFound 条目不存在
	ErrNotFound = xerrors.New("store: item not found")

	// ErrInvalidInput 输入不合法
	ErrInvalidInput = xerrors.New("store: invalid input")
)
