// Package store 提供 items 表的数据访问组件。
//
// store 组件在数据库连接器的基础上封装了 items 的全部持久化操作：
// - 建表与索引初始化（EnsureSchema）
// - CRUD 查询
// - 后台任务使用的计数与按时间批量清理
//
// ## 基本使用
//
//	pgConn, _ := connector.NewPostgreSQL(&cfg.Database, connector.WithLogger(logger))
//	defer pgConn.Close()
//	pgConn.Connect(ctx)
//
//	items, _ := store.New(pgConn, store.WithLogger(logger))
//	if err := items.EnsureSchema(ctx); err != nil {
//		// 建表失败不致命，后续操作会返回 ErrUnavailable
//	}
//
//	item, err := items.Create(ctx, "demo", "a demo item")
//	list, err := items.List(ctx)
//
// ## 设计原则
//
// - **借用模型**：store 借用连接器的连接，不负责连接的生命周期
// - **降级优先**：数据库不可用时返回 ErrUnavailable，调用方决定如何降级
// - **显式依赖**：通过构造函数显式注入连接器和选项
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/connector"
	"github.com/ceyewan/nimbus/xerrors"
)

// Item items 表的一行
type Item struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (Item) TableName() string {
	return "items"
}

// Store 定义 items 的持久化能力
type Store interface {
	// EnsureSchema 创建 items 表和索引，幂等
	EnsureSchema(ctx context.Context) error

	// List 返回所有条目，按创建时间从新到旧排序
	List(ctx context.Context) ([]Item, error)

	// Create 插入一条新条目并返回完整记录
	Create(ctx context.Context, name, description string) (*Item, error)

	// Delete 按 ID 删除条目，条目不存在时返回 ErrNotFound
	Delete(ctx context.Context, id uint) error

	// Count 返回 items 表当前行数
	Count(ctx context.Context) (int64, error)

	// DeleteOlderThan 删除创建时间严格早于 cutoff 的条目，返回删除行数
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type itemStore struct {
	conn   connector.TypedConnector[*gorm.DB]
	logger clog.Logger
}

// New 创建 items 数据访问组件
//
// 参数:
//   - conn: PostgreSQL 或 SQLite 连接器
//   - opts: 可选参数 (Logger)
func New(conn connector.TypedConnector[*gorm.DB], opts ...Option) (Store, error) {
	if conn == nil {
		return nil, xerrors.New("store: connector is nil")
	}

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	return &itemStore{
		conn:   conn,
		logger: opt.logger,
	}, nil
}

// EnsureSchema 创建 items 表和索引，幂等
func (s *itemStore) EnsureSchema(ctx context.Context) error {
	db, ok := connector.Acquire(ctx, s.conn)
	if !ok {
		return xerrors.Wrapf(ErrUnavailable, "ensure schema")
	}

	if err := db.AutoMigrate(&Item{}); err != nil {
		return xerrors.Wrap(err, "migrate items table")
	}

	s.logger.Info("items schema ready")
	return nil
}

// List 返回所有条目，按创建时间从新到旧排序
func (s *itemStore) List(ctx context.Context) ([]Item, error) {
	db, ok := connector.Acquire(ctx, s.conn)
	if !ok {
		return nil, xerrors.Wrapf(ErrUnavailable, "list items")
	}

	var items []Item
	if err := db.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, xerrors.Wrap(err, "list items")
	}
	return items, nil
}

// Create 插入一条新条目并返回完整记录
func (s *itemStore) Create(ctx context.Context, name, description string) (*Item, error) {
	if strings.TrimSpace(name) == "" {
		return nil, xerrors.Wrapf(ErrInvalidInput, "name is required")
	}

	db, ok := connector.Acquire(ctx, s.conn)
	if !ok {
		return nil, xerrors.Wrapf(ErrUnavailable, "create item")
	}

	item := &Item{
		Name:        name,
		Description: description,
	}
	if err := db.Create(item).Error; err != nil {
		return nil, xerrors.Wrap(err, "create item")
	}

	s.logger.Debug("item created", clog.Int("id", int(item.ID)), clog.String("name", item.Name))
	return item, nil
}

// Delete 按 ID 删除条目
func (s *itemStore) Delete(ctx context.Context, id uint) error {
	db, ok := connector.Acquire(ctx, s.conn)
	if !ok {
		return xerrors.Wrapf(ErrUnavailable, "delete item %d", id)
	}

	res := db.Delete(&Item{}, id)
	if res.Error != nil {
		return xerrors.Wrapf(res.Error, "delete item %d", id)
	}
	if res.RowsAffected == 0 {
		return xerrors.Wrapf(ErrNotFound, "item %d", id)
	}

	s.logger.Debug("item deleted", clog.Int("id", int(id)))
	return nil
}

// Count 返回 items 表当前行数
func (s *itemStore) Count(ctx context.Context) (int64, error) {
	db, ok := connector.Acquire(ctx, s.conn)
	if !ok {
		return 0, xerrors.Wrapf(ErrUnavailable, "count items")
	}

	var count int64
	if err := db.Model(&Item{}).Count(&count).Error; err != nil {
		return 0, xerrors.Wrap(err, "count items")
	}
	return count, nil
}

// DeleteOlderThan 删除创建时间严格早于 cutoff 的条目，返回删除行数
func (s *itemStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	db, ok := connector.Acquire(ctx, s.conn)
	if !ok {
		return 0, xerrors.Wrapf(ErrUnavailable, "cleanup items")
	}

	res := db.Where("created_at < ?", cutoff).Delete(&Item{})
	if res.Error != nil {
		return 0, xerrors.Wrap(res.Error, "cleanup items")
	}

	if res.RowsAffected > 0 {
		s.logger.Info("old items removed",
			clog.Int64("deleted", res.RowsAffected),
			clog.Time("cutoff", cutoff))
	}
	return res.RowsAffected, nil
}

// IsNotFound 判断错误是否为条目不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
