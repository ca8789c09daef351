package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/teamflow/api/handlers"
	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/engine"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/internal/server"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/persistence"
	"github.com/BaSui01/teamflow/profile"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 TeamFlow 的主服务器：装配引擎依赖并暴露 HTTP/WebSocket 面
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 引擎及其依赖
	engine   *engine.Engine
	registry *profile.Registry
	store    persistence.ExecutionStore

	// Handlers
	healthHandler *handlers.HealthHandler
	teamHandler   *handlers.TeamHandler
	agentHandler  *handlers.AgentHandler

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	// 1. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("teamflow", s.logger)

	// 2. 装配编排引擎
	if err := s.initEngine(); err != nil {
		return fmt.Errorf("failed to init engine: %w", err)
	}

	// 3. 初始化 Handlers
	s.initHandlers()

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("persistence_backend", s.cfg.Persistence.Backend),
		zap.String("memory_backend", s.cfg.Memory.Backend),
	)

	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initEngine 按配置装配引擎依赖：档案注册表、记忆后端、持久化后端、Runner
func (s *Server) initEngine() error {
	ctx := context.Background()

	s.registry = profile.NewRegistry(profile.WithLogger(s.logger))

	// 记忆后端
	var memStore memory.Store
	switch s.cfg.Memory.Backend {
	case "redis":
		rs, err := memory.NewRedisStore(ctx, s.cfg.MemoryRedisConfig(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to create redis memory store: %w", err)
		}
		memStore = rs
	default:
		memStore = memory.NewInMemoryStore(memory.WithLogger(s.logger))
	}

	// 执行持久化后端
	store, err := persistence.NewStore(ctx, s.cfg.StoreConfig(), s.logger)
	if err != nil {
		return fmt.Errorf("failed to create execution store: %w", err)
	}
	s.store = store

	eng, err := engine.New(engine.Options{
		Registry:        s.registry,
		Runner:          newRunner(s.cfg.Engine, s.logger),
		Store:           store,
		Memory:          memStore,
		Metrics:         s.metricsCollector,
		Bus:             s.cfg.BusConfig(),
		EventBufferSize: s.cfg.Engine.EventBufferSize,
		RateLimit:       s.cfg.Engine.InvokeRateLimit,
		RateBurst:       s.cfg.Engine.InvokeRateBurst,
		MaxWorkers:      s.cfg.Engine.MaxWorkers,
		Logger:          s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	s.engine = eng
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("execution_store", s.store.Ping))

	s.teamHandler = handlers.NewTeamHandler(s.engine, s.store, s.logger)
	s.agentHandler = handlers.NewAgentHandler(s.registry, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// ========================================
	// 健康检查端点
	// ========================================
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// ========================================
	// 智能体档案 API
	// ========================================
	mux.HandleFunc("POST /api/v1/agents", s.agentHandler.HandleRegisterAgent)
	mux.HandleFunc("GET /api/v1/agents", s.agentHandler.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", s.agentHandler.HandleGetAgent)
	mux.HandleFunc("GET /api/v1/agents/balance", s.agentHandler.HandleTeamBalance)

	// ========================================
	// 团队编排 API
	// ========================================
	mux.HandleFunc("POST /api/v1/teams", s.teamHandler.HandleStartTeam)
	mux.HandleFunc("GET /api/v1/executions", s.teamHandler.HandleListExecutions)
	mux.HandleFunc("GET /api/v1/executions/{id}", s.teamHandler.HandleGetExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/cancel", s.teamHandler.HandleCancelExecution)
	mux.HandleFunc("POST /api/v1/executions/{id}/conflicts/{conflict_id}/resolve", s.teamHandler.HandleResolveConflict)
	mux.HandleFunc("GET /api/v1/executions/{id}/events", s.teamHandler.HandleEvents)

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSOrigins),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		middlewares = append(middlewares, OTelTracing())
	}
	if s.cfg.Auth.Enabled {
		if len(s.cfg.Auth.APIKeys) > 0 {
			middlewares = append(middlewares, APIKeyAuth(s.cfg.Auth.APIKeys, skipAuthPaths, s.logger))
		}
		if s.cfg.Auth.JWTSecret != "" {
			middlewares = append(middlewares, JWTAuth(s.cfg.Auth.JWTSecret, skipAuthPaths, s.logger))
		}
	}
	handler := Chain(mux, middlewares...)

	// ========================================
	// 使用 internal/server.Manager
	// ========================================
	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器（停止接收新请求）
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 关闭引擎（取消在途执行并关闭记忆/持久化后端）
	if s.engine != nil {
		if err := s.engine.Close(); err != nil {
			s.logger.Error("Engine shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 等待所有 goroutine 完成
	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
