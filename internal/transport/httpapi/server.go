// Package httpapi - HTTP API витрины поверх gin.
package httpapi

import (
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/teashop/internal/domain"
	"github.com/vladislavdragonenkov/teashop/internal/metrics"
	"github.com/vladislavdragonenkov/teashop/internal/service/cart"
	"github.com/vladislavdragonenkov/teashop/internal/service/checkout"
	"github.com/vladislavdragonenkov/teashop/internal/service/webhook"
)

const (
	headerUserID            = "X-User-ID"
	headerRequestID         = "X-Request-ID"
	headerWebhookSignature  = "X-Razorpay-Signature"
	headerWebhookEventID    = "X-Razorpay-Event-Id"
	contextKeyUser          = "teashop.user"
	defaultOrderListLimit   = 20
	maxWebhookBodyBytes     = 1 << 20
	defaultOrphanListLimit  = 50
	webhookAcceptedResponse = "ok"
)

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger HTTP-слоя.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики HTTP-запросов.
func WithMetrics(m *metrics.HTTPMetrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server связывает HTTP-маршруты с сервисами витрины.
type Server struct {
	tx       domain.TxManager
	checkout *checkout.Service
	carts    *cart.Service
	webhooks *webhook.Reconciler
	metrics  *metrics.HTTPMetrics
	logger   *log.Entry
}

// NewServer создаёт HTTP API. tx используется только для поиска пользователя по X-User-ID.
func NewServer(tx domain.TxManager, checkoutSvc *checkout.Service, cartSvc *cart.Service, reconciler *webhook.Reconciler, options ...Option) *Server {
	s := &Server{
		tx:       tx,
		checkout: checkoutSvc,
		carts:    cartSvc,
		webhooks: reconciler,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "http-api")
	}
	return s
}

// Router собирает gin engine со всеми маршрутами.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.trace(), s.observe())

	api := r.Group("/api")
	api.POST("/webhooks/razorpay", s.handleWebhook)

	authed := api.Group("", s.authenticate())
	authed.POST("/payments/orders", s.handleCreateGatewayOrder)
	authed.POST("/checkout/quote", s.handleQuote)

	authed.POST("/orders", s.handlePlaceOrder)
	authed.GET("/orders", s.handleListOrders)
	authed.GET("/orders/:id", s.handleGetOrder)
	authed.GET("/orders/:id/timeline", s.handleTimeline)
	authed.POST("/orders/:id/cancel", s.handleCancelOrder)

	authed.GET("/cart", s.handleGetCart)
	authed.DELETE("/cart", s.handleClearCart)
	authed.POST("/cart/items", s.handleAddCartItem)
	authed.PUT("/cart/items/:productId", s.handleUpdateCartItem)
	authed.DELETE("/cart/items/:productId", s.handleRemoveCartItem)

	admin := authed.Group("/admin", requireAdmin())
	admin.PUT("/orders/:id/status", s.handleUpdateStatus)
	admin.GET("/payments/orphans", s.handleListOrphans)
	admin.POST("/payments/:id/link", s.handleLinkOrphan)

	return r
}
