// Package api 提供 items 的 REST 服务。
//
// 端点：
//   - GET    /health         存活探针，始终 200
//   - GET    /ready          就绪探针，检查数据库连通性
//   - GET    /api/items      列出全部条目（新→旧）
//   - POST   /api/items      创建条目
//   - DELETE /api/items/:id  删除条目
//   - GET    /metrics        Prometheus 指标，读取时刷新 api_items_total
//
// 数据库不可用返回 503，服务本身不退出；/metrics 在数据库不可用时
// 跳过行数刷新但照常输出其余指标。
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/nimbus/clog"
	"github.com/ceyewan/nimbus/connector"
	"github.com/ceyewan/nimbus/metrics"
	"github.com/ceyewan/nimbus/store"
	"github.com/ceyewan/nimbus/xerrors"
)

const metricItemsTotal = "api_items_total"

// Config API 服务配置
type Config struct {
	// Addr 监听地址 (默认: ":8080")
	Addr string `mapstructure:"addr"`

	// Mode gin 运行模式：debug/release/test (默认: "release")
	Mode string `mapstructure:"mode"`

	// ShutdownTimeout 优雅关闭的等待时间 (默认: 10s)
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.Mode == "" {
		c.Mode = gin.ReleaseMode
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Server items REST 服务
type Server struct {
	cfg    *Config
	items  store.Store
	probe  connector.Connector
	logger clog.Logger
	router *gin.Engine

	itemsTotal metrics.Gauge
}

// createItemRequest POST /api/items 的请求体
type createItemRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// New 创建 API 服务
//
// 参数:
//   - cfg: 服务配置
//   - items: 数据访问组件
//   - probe: 就绪探针使用的数据库连接器
//   - opts: 可选参数 (Logger, Meter)
func New(cfg *Config, items store.Store, probe connector.Connector, opts ...Option) (*Server, error) {
	if items == nil {
		return nil, xerrors.New("api: store is nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.setDefaults()

	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	opt.applyDefaults()

	itemsTotal, err := opt.meter.Gauge(metricItemsTotal, "Total items in database.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create items total gauge")
	}

	httpMetrics, err := metrics.NewHTTPServerMetrics(opt.meter, metrics.DefaultHTTPServerMetricsConfig("api-service"))
	if err != nil {
		return nil, xerrors.Wrap(err, "create http metrics")
	}

	s := &Server{
		cfg:        cfg,
		items:      items,
		probe:      probe,
		logger:     opt.logger,
		itemsTotal: itemsTotal,
	}

	gin.SetMode(cfg.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.GinHTTPMiddleware(httpMetrics))

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/api/items", s.listItems)
	router.POST("/api/items", s.createItem)
	router.DELETE("/api/items/:id", s.deleteItem)
	router.GET("/metrics", s.metricsHandler())

	s.router = router
	return s, nil
}

// Router 返回底层路由，测试中可直接用 httptest 驱动
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run 启动 HTTP 服务并阻塞，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", clog.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return xerrors.Wrap(err, "api server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("api server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return xerrors.Wrap(err, "shutdown api server")
	}
	return nil
}

// health 存活探针，进程活着就返回 200
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "api-service",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ready 就绪探针，数据库连通才算就绪
func (s *Server) ready(c *gin.Context) {
	if !s.databaseReady(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "not ready",
			"database": "disconnected",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
	})
}

// databaseReady 先检查已有连接，失败时尝试建立一次新连接。
// 进程先于数据库启动的场景下，数据库恢复后 /ready 要能自行转绿
func (s *Server) databaseReady(ctx context.Context) bool {
	if s.probe == nil {
		return false
	}
	if s.probe.HealthCheck(ctx) == nil {
		return true
	}
	if err := s.probe.Connect(ctx); err != nil {
		return false
	}
	return s.probe.HealthCheck(ctx) == nil
}

// listItems 列出全部条目
func (s *Server) listItems(c *gin.Context) {
	items, err := s.items.List(c.Request.Context())
	if err != nil {
		s.renderStoreError(c, err, "Failed to fetch items")
		return
	}
	if items == nil {
		items = []store.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// createItem 创建条目
func (s *Server) createItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}

	item, err := s.items.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		if errors.Is(err, store.ErrInvalidInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
			return
		}
		s.renderStoreError(c, err, "Failed to create item")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":      item.ID,
		"message": "Item created successfully",
	})
}

// deleteItem 删除条目
func (s *Server) deleteItem(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid item id"})
		return
	}

	if err := s.items.Delete(c.Request.Context(), uint(id)); err != nil {
		if store.IsNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		s.renderStoreError(c, err, "Failed to delete item")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Item deleted successfully"})
}

// metricsHandler 暴露 Prometheus 指标，暴露前刷新派生指标。
// 数据库不可用时跳过刷新，其余指标照常输出。
func (s *Server) metricsHandler() gin.HandlerFunc {
	promHandler := metrics.Handler()
	return func(c *gin.Context) {
		if count, err := s.items.Count(c.Request.Context()); err == nil {
			s.itemsTotal.Set(c.Request.Context(), float64(count))
		} else {
			s.logger.Debug("skipping items total refresh", clog.Error(err))
		}
		promHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// renderStoreError 将数据层错误映射为 HTTP 响应
func (s *Server) renderStoreError(c *gin.Context, err error, msg string) {
	if errors.Is(err, store.ErrUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database unavailable"})
		return
	}
	s.logger.Error(msg, clog.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
