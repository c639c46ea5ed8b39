package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/database"
	"github.com/shelfmate/library_server/internal/pkg/clock"
	"github.com/shelfmate/library_server/internal/pkg/cron"
	"github.com/shelfmate/library_server/internal/pkg/email"
	"github.com/shelfmate/library_server/internal/pkg/lock"
	"github.com/shelfmate/library_server/internal/pkg/logger"
	"github.com/shelfmate/library_server/internal/pkg/pubsub"
	"github.com/shelfmate/library_server/internal/pkg/queue"
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
	zlog.Info("database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		zlog.Fatal("failed to connect redis", zap.Error(err))
	}
	zlog.Info("redis connected")

	// 邮件发送：worker 总是直接投递，queue 模式下巡检只负责入队
	mailer, err := email.NewSender(&cfg.Email, zlog.Named("email"))
	if err != nil {
		zlog.Fatal("failed to init email sender", zap.Error(err))
	}
	notifyQueue := queue.NewQueue(rdb, cfg.Notification.QueueName)
	var sender email.Sender = mailer
	if cfg.Notification.Mode == "queue" {
		sender = queue.NewNotifier(notifyQueue)
	}

	// 初始化 Repository 与 Service
	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	itemRepo := repository.NewItemRepository(db)
	subService := service.NewSubscriptionService(
		subRepo,
		userRepo,
		nil,
		pubsub.NewPublisher(rdb),
		cfg,
		clock.Real(),
		zlog.Named("subscription"),
	)

	scheduler := cron.NewService(cron.Deps{
		Subscriptions: subService,
		SubRepo:       subRepo,
		ItemRepo:      itemRepo,
		UserRepo:      userRepo,
		Sender:        sender,
		Locker:        lock.NewLocker(rdb),
		Logger:        zlog.Named("reconcile"),
	}, cron.OptionsFrom(cfg.Reconcile))

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	scheduler.Start(ctx)
	zlog.Info("reconcile scheduler started", zap.Duration("interval", cfg.Reconcile.Interval))

	if cfg.Notification.Mode == "queue" {
		deliverer := queue.NewDeliverer(notifyQueue, mailer, zlog.Named("deliver"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			deliverer.Run(ctx)
		}()
		zlog.Info("notification deliverer started", zap.String("queue", cfg.Notification.QueueName))
	}

	// 订阅变更事件仅做审计日志
	events := zlog.Named("events")
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := pubsub.NewSubscriber(rdb).Subscribe(ctx, func(e *pubsub.SubscriptionEvent) {
			events.Info("subscription event",
				zap.String("type", e.Type),
				zap.String("subscription_id", e.SubscriptionID),
				zap.Int64("user_id", e.UserID),
				zap.String("plan", e.Plan),
				zap.String("status", e.Status),
				zap.Int64("count", e.Count),
			)
		})
		if err != nil && ctx.Err() == nil {
			events.Error("event subscription stopped", zap.Error(err))
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	zlog.Info("received shutdown signal")

	scheduler.Stop()
	cancel()
	wg.Wait()
	_ = rdb.Close()
	zlog.Info("worker shutdown complete")
}
