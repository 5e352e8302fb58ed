package http

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richardliu001/wallet-ledger/internal/config"
	"github.com/richardliu001/wallet-ledger/internal/service"
	"go.uber.org/zap"
)

var registerOnce sync.Once

func NewRouter(svc *service.WalletService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	registerOnce.Do(registerDecimal)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(LoggingMiddleware(log))
	r.Use(MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) { respondOK(c, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("")
	api.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(api, svc)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{TraceID: traceID(c), Message: "route not found"})
	})
	return r
}
