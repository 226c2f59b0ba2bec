package connector

import (
	"context"

	"gorm.io/gorm"
)

// Acquire 获取可用的数据库句柄，数据库不可用时返回 (nil, false)。
//
// 这是所有依赖数据库的组件访问连接的唯一入口：
//   - 已连接时直接返回绑定了 ctx 的 *gorm.DB
//   - 未连接时尝试建立连接（Connect 幂等），失败则降级
//   - 永不 panic，调用方在返回 false 时应跳过本次数据库操作
//
// 连接失败的原因由连接器内部记录日志，调用方无需重复记录。
func Acquire(ctx context.Context, conn TypedConnector[*gorm.DB]) (*gorm.DB, bool) {
	if conn == nil {
		return nil, false
	}

	if db := conn.GetClient(); db != nil {
		return db.WithContext(ctx), true
	}

	// 惰性重连：上次启动时数据库可能尚未就绪
	if err := conn.Connect(ctx); err != nil {
		return nil, false
	}

	db := conn.GetClient()
	if db == nil {
		return nil, false
	}
	return db.WithContext(ctx), true
}
