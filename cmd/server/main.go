package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/api"
	"github.com/shelfmate/library_server/internal/api/handler"
	"github.com/shelfmate/library_server/internal/database"
	"github.com/shelfmate/library_server/internal/pkg/clock"
	"github.com/shelfmate/library_server/internal/pkg/logger"
	"github.com/shelfmate/library_server/internal/pkg/payment"
	"github.com/shelfmate/library_server/internal/pkg/pubsub"
	"github.com/shelfmate/library_server/internal/repository"
	"github.com/shelfmate/library_server/internal/service"
)

var configPath = flag.String("config", "config.yaml", "Path to config file")

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.Log)
	defer func() { _ = zlog.Sync() }()

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("failed to migrate database", zap.Error(err))
	}
	zlog.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	zlog.Info("redis connected")

	// 支付平台（可选）
	var gateway payment.Gateway
	if cfg.Payment.SecretKey != "" {
		gateway = payment.NewStripeGateway(cfg.Payment, zlog.Named("payment"))
		zlog.Info("payment gateway enabled")
	} else {
		zlog.Warn("payment gateway not configured, checkout and webhooks are disabled")
	}

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	itemRepo := repository.NewItemRepository(db)

	// 初始化 Service
	subService := service.NewSubscriptionService(
		subRepo,
		userRepo,
		gateway,
		pubsub.NewPublisher(rdb),
		cfg,
		clock.Real(),
		zlog.Named("subscription"),
	)
	entitlementService := service.NewEntitlementService(subService, itemRepo, zlog.Named("entitlement"))

	// 初始化 Router
	router := api.NewRouter(
		handler.NewSubscriptionHandler(subService),
		handler.NewAdminHandler(subService),
		handler.NewEntitlementHandler(entitlementService),
		handler.NewItemHandler(itemRepo),
		handler.NewWebhookHandler(subService, zlog.Named("webhook")),
		entitlementService,
		cfg,
		zlog.Named("http"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zlog.Info("received shutdown signal")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zlog.Error("server shutdown failed", zap.Error(err))
	}
	_ = rdb.Close()
	zlog.Info("server stopped")
}
