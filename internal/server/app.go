package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"minter-core/pkg/logger"

	"go.uber.org/zap"
)

type Config struct {
	HttpPort        string
	ShutdownTimeout time.Duration
}

type App struct {
	httpServer *http.Server
	timeout    time.Duration
	onShutdown []func(ctx context.Context)
}

// New 创建 App，ShutdownTimeout 未设置时默认 5s
func New(cfg Config, httpHandler http.Handler) *App {
	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &App{
		httpServer: &http.Server{
			Addr:              ":" + cfg.HttpPort,
			Handler:           httpHandler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		timeout: timeout,
	}
}

// OnShutdown 注册 HTTP 服务停止后按顺序执行的清理函数
func (a *App) OnShutdown(fn func(ctx context.Context)) {
	a.onShutdown = append(a.onShutdown, fn)
}

// Run 启动 HTTP 服务 (阻塞)，ctx 结束或收到 SIGINT/SIGTERM 后优雅退出
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-errCh:
		serveErr = fmt.Errorf("http server: %w", err)
		logger.Error("HTTP Server failure", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}
	for _, fn := range a.onShutdown {
		fn(shutdownCtx)
	}
	logger.Info("Server exited properly")
	return serveErr
}
