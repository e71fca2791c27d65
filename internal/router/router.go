package router

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"coursepay/internal/handler"
	"coursepay/internal/middleware"
	"coursepay/internal/payment"
	"coursepay/internal/repository"
)

// Options carries the optional parts of the HTTP surface.
type Options struct {
	BaseURL        string
	AdminAPIKey    string
	CallbackCIDRs  []string
	// TrustedProxies are the reverse proxies whose X-Forwarded-For is believed.
	// Empty means the socket peer is the client.
	TrustedProxies []string
	ItemHook       repository.ItemHook
}

// Setup configures all routes for the Echo server.
func Setup(
	e *echo.Echo,
	db *gorm.DB,
	proc *payment.Processor,
	reporter payment.RejectionReporter,
	replay middleware.ReplayCache,
	limiter *middleware.RateLimiter,
	logger *zap.Logger,
	opts Options,
) {
	e.IPExtractor = middleware.ClientIPExtractor(opts.TrustedProxies, logger)

	// Global middleware
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))

	// Repositories
	orders := repository.NewOrderRepository(db).WithItemHook(opts.ItemHook)
	callbackLogs := repository.NewCallbackLogRepository(db)

	reconciler := payment.NewReconciler(proc, orders, callbackLogs, logger).WithReporter(reporter)
	paymentHandler := handler.NewPaymentHandler(proc, reconciler, orders, callbackLogs, opts.BaseURL, logger)

	// Payment routes
	paymentGroup := e.Group("/payment")
	paymentGroup.POST("/checkout/:id", paymentHandler.Checkout)
	paymentGroup.GET("/result/:id", paymentHandler.Result)
	paymentGroup.POST("/result/:id", paymentHandler.Result)

	// Processor callback (IP check + rate limit + replay short-circuit)
	paymentGroup.POST("/callback", paymentHandler.Callback,
		middleware.ProcessorIPCheck(opts.CallbackCIDRs, logger),
		limiter.Middleware(),
		middleware.CallbackReplay(replay, callbackLogs, logger),
	)

	// Admin API
	adminGroup := e.Group("/admin")
	adminGroup.Use(middleware.APIAuth(opts.AdminAPIKey))
	adminGroup.GET("/orders/:id/callbacks", paymentHandler.CallbackLogs)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
