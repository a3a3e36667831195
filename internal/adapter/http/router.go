package http

import (
	"github.com/gin-gonic/gin"
	"github.com/npquoc/mallcore/configs"
	"github.com/npquoc/mallcore/internal/adapter/http/middleware"
	"github.com/npquoc/mallcore/internal/adapter/ws"
	"github.com/npquoc/mallcore/internal/logging"
	"github.com/npquoc/mallcore/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(cfg configs.Config, h *OrderHandler, th *TokenHandler, wsh *ws.Handler,
	authz *middleware.Authz, gate *ratelimit.Gate) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.MetricsMiddleware())

	l := logging.New("http")
	r.Use(middleware.Logging(l))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	// Prometheus endpoint (scraped by Prometheus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/v1/token", th.IssueToken)

	// live push channel; identity comes from the token during handshake
	r.GET("/ws", wsh.Serve)

	rl := cfg.RateLimit
	v1 := r.Group("/v1")
	{
		v1.POST("/orders",
			authz.Require("orders.write"),
			middleware.RateLimit(gate, ratelimit.Rule{Name: "order.create", Limit: rl.CreateOrder.Limit, Window: rl.CreateOrder.Window}),
			h.CreateOrder)
		v1.POST("/orders/:id/pay",
			authz.Require("orders.write"),
			middleware.RateLimit(gate, ratelimit.Rule{Name: "order.pay", Limit: rl.PayOrder.Limit, Window: rl.PayOrder.Window}),
			h.Pay)
		v1.POST("/orders/:id/cancel",
			authz.Require("orders.write"),
			middleware.RateLimit(gate, ratelimit.Rule{Name: "order.cancel", Limit: rl.PayOrder.Limit, Window: rl.PayOrder.Window}),
			h.Cancel)
		v1.POST("/orders/:id/complete",
			authz.Require("orders.write"),
			middleware.RateLimit(gate, ratelimit.Rule{Name: "order.complete", Limit: rl.PayOrder.Limit, Window: rl.PayOrder.Window}),
			h.Complete)
		v1.GET("/orders/:id", authz.Require("orders.read"), h.GetOrderByID)
		v1.GET("/orders/:id/status", authz.Require("orders.read"), h.GetOrderStatus)

		v1.POST("/coupons/templates/:id/claim",
			authz.Require("coupons.claim"),
			middleware.RateLimit(gate, ratelimit.Rule{Name: "coupon.claim", Limit: rl.ClaimCoupon.Limit, Window: rl.ClaimCoupon.Window}),
			h.ClaimCoupon)
	}

	return r
}
