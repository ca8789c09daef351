package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器生命周期
// =============================================================================

// Config HTTP 服务器参数
type Config struct {
	// 监听地址，如 ":8080"
	Addr string `yaml:"addr" json:"addr"`

	// 读超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// keep-alive 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 请求头上限
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭等待时长
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 默认服务器参数
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Manager 托管单个 http.Server 的启动与优雅关闭。
// Start 非阻塞；运行期错误经 Errors 通道上报。
type Manager struct {
	srv    *http.Server
	ln     net.Listener
	errCh  chan error
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "http_server")),
	}
}

// Start 绑定端口并在后台开始服务
func (m *Manager) Start() error {
	return m.start("http", func(ln net.Listener) error {
		return m.srv.Serve(ln)
	})
}

// StartTLS 绑定端口并在后台以 TLS 服务
func (m *Manager) StartTLS(certFile, keyFile string) error {
	return m.start("https", func(ln net.Listener) error {
		return m.srv.ServeTLS(ln, certFile, keyFile)
	})
}

func (m *Manager) start(scheme string, serve func(net.Listener) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("server already shut down")
	}
	if m.ln != nil {
		return fmt.Errorf("server already listening on %s", m.ln.Addr())
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.cfg.Addr, err)
	}
	m.ln = ln

	m.logger.Info("server listening",
		zap.String("scheme", scheme),
		zap.String("addr", ln.Addr().String()),
	)

	go func() {
		if err := serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("server terminated", zap.Error(err))
			select {
			case m.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Shutdown 停止接收新连接并等待在途请求完成，
// 超过 ShutdownTimeout 后放弃。重复调用是无害的。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.ln = nil

	m.logger.Info("draining HTTP server")
	drainCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	if err := m.srv.Shutdown(drainCtx); err != nil {
		m.logger.Error("drain failed", zap.Error(err))
		return err
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或服务异常退出，
// 然后执行优雅关闭
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 返回异步服务错误通道
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 实际监听地址；未启动时返回配置地址
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 是否仍在服务
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
