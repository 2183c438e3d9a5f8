package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"OnchainAgent/internal/observability/metrics"
	"OnchainAgent/internal/runlog"
	"OnchainAgent/internal/sse"
	"OnchainAgent/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Streamer 产出一次推理的事件序列，由 relay.Relay 实现。
type Streamer interface {
	Run(ctx context.Context, instruction string) iter.Seq[sse.Event]
}

// RunLister 提供最近运行记录的查询。
type RunLister interface {
	ListLatest(ctx context.Context, limit int) ([]runlog.Run, error)
}

// Server 负责暴露 HTTP 接口，供前端驱动智能体并订阅事件流。
type Server struct {
	addr            string
	streamer        Streamer
	runs            RunLister
	metrics         *metrics.Metrics
	metricsPath     string
	shutdownTimeout time.Duration
	allowedOrigins  []string
	authToken       string
	log             *slog.Logger
}

// Option 定义可选的 Server 配置。
type Option func(*Server)

// WithRuns 启用 /api/runs 接口。
func WithRuns(runs RunLister) Option {
	return func(s *Server) {
		s.runs = runs
	}
}

// WithMetrics 启用请求指标与指标暴露路径，path 为空时不在 API 端口暴露。
func WithMetrics(m *metrics.Metrics, path string) Option {
	return func(s *Server) {
		s.metrics = m
		s.metricsPath = path
	}
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.shutdownTimeout = timeout
		}
	}
}

// WithAllowedOrigins 限制允许跨域访问的来源，为空或包含 "*" 时允许任意来源。
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAuthToken 要求 /api 下的请求携带令牌：Authorization: Bearer <token> 或 ?token=<token>。
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.authToken = strings.TrimSpace(token)
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, streamer Streamer, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		streamer:        streamer,
		shutdownTimeout: 5 * time.Second,
		log:             logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Router 构建 gin 路由。
func (s *Server) Router() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	if allowAnyOrigin(s.allowedOrigins) {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.allowedOrigins
	}
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "Last-Event-ID"}
	engine.Use(cors.New(corsConfig))

	if s.metrics != nil {
		engine.Use(s.metrics.Middleware())
		if s.metricsPath != "" {
			engine.GET(s.metricsPath, gin.WrapH(s.metrics.Handler()))
		}
	}

	engine.GET("/healthz", s.handleHealth)

	api := engine.Group("/api")
	if s.authToken != "" {
		api.Use(s.requireToken())
	}
	{
		api.GET("/chat", s.handleChat)
		api.POST("/chat", s.handleChat)
		api.GET("/runs", s.handleRuns)
	}
	return engine
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	// 事件流是长连接，不设置写超时。
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn("API 服务关闭超时", slog.Any("error", err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// requireToken 校验 /api 请求携带的访问令牌。
func (s *Server) requireToken() gin.HandlerFunc {
	expected := []byte(s.authToken)
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少或错误的访问令牌"})
			return
		}
		c.Next()
	}
}

func allowAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	return slices.Contains(origins, "*")
}

// requestLogger 以结构化日志记录每个请求。
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.log.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(started)),
			slog.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
