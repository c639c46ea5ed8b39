package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/api/handler"
	"github.com/shelfmate/library_server/internal/api/middleware"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/service"
)

type Router struct {
	subscriptionHandler *handler.SubscriptionHandler
	adminHandler        *handler.AdminHandler
	entitlementHandler  *handler.EntitlementHandler
	itemHandler         *handler.ItemHandler
	webhookHandler      *handler.WebhookHandler
	entitlements        *service.EntitlementService
	cfg                 *config.Config
	logger              *zap.Logger
}

func NewRouter(
	subscriptionHandler *handler.SubscriptionHandler,
	adminHandler *handler.AdminHandler,
	entitlementHandler *handler.EntitlementHandler,
	itemHandler *handler.ItemHandler,
	webhookHandler *handler.WebhookHandler,
	entitlements *service.EntitlementService,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		subscriptionHandler: subscriptionHandler,
		adminHandler:        adminHandler,
		entitlementHandler:  entitlementHandler,
		itemHandler:         itemHandler,
		webhookHandler:      webhookHandler,
		entitlements:        entitlements,
		cfg:                 cfg,
		logger:              logger,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(r.logger))
	engine.Use(middleware.CORS(r.cfg.CORS))

	api := engine.Group("/api/v1")
	{
		// 公开接口 - 支付回调，靠签名校验
		api.POST("/webhooks/payment", r.webhookHandler.Payment)

		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 订阅
			subscription := authenticated.Group("/subscription")
			{
				subscription.GET("", r.subscriptionHandler.Current)
				subscription.GET("/history", r.subscriptionHandler.History)
				subscription.POST("/checkout", r.subscriptionHandler.Checkout)
				subscription.POST("/:id/cancel", r.subscriptionHandler.Cancel)
				subscription.POST("/:id/upgrade", r.subscriptionHandler.Upgrade)
				subscription.POST("/:id/downgrade", r.subscriptionHandler.Downgrade)
			}

			// 权益
			entitlements := authenticated.Group("/entitlements")
			{
				entitlements.GET("", r.entitlementHandler.Summary)
				entitlements.GET("/:feature", r.entitlementHandler.Check)
			}

			// 条目
			items := authenticated.Group("/items")
			{
				items.POST("", middleware.RequireFeature(r.entitlements, model.FeatureMediaItemLimit), r.itemHandler.Create)
				items.POST("/import", middleware.RequireFeature(r.entitlements, model.FeatureCSVImportExport), r.itemHandler.Import)
			}

			// 运营 - 绕过支付直接改订阅
			admin := authenticated.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.POST("/subscriptions", r.adminHandler.CreateSubscription)
				admin.PUT("/subscriptions/:id/status", r.adminHandler.UpdateStatus)
				admin.POST("/subscriptions/:id/upgrade", r.adminHandler.Upgrade)
			}
		}
	}

	return engine
}
