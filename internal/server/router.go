package server

import (
	"minter-core/internal/handler"
	"minter-core/pkg/monitor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPRouter 初始化并返回一个 Gin Engine (minter API + /metrics)
func NewHTTPRouter(withdrawals *handler.WithdrawalHandler) *gin.Engine {
	monitor.Init()

	r := gin.Default()
	r.Use(monitor.PrometheusMiddleware())

	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		api.GET("/minter", withdrawals.GetMinter)
		api.GET("/withdrawals/:id", withdrawals.GetWithdrawal)
		api.POST("/withdrawals", withdrawals.CreateWithdrawal)
	}

	return r
}
