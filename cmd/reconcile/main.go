package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/database"
	"github.com/shelfmate/library_server/internal/pkg/clock"
	"github.com/shelfmate/library_server/internal/pkg/cron"
	"github.com/shelfmate/library_server/internal/pkg/email"
	"github.com/shelfmate/library_server/internal/pkg/lock"
	"github.com/shelfmate/library_server/internal/pkg/logger"
	"github.com/shelfmate/library_server/internal/repository"
	"github.com/shelfmate/library_server/internal/service"
)

var (
	configPath    = flag.String("config", "config.yaml", "Path to config file")
	dryRun        = flag.Bool("dry-run", false, "Report violations without expiring subscriptions or sending email")
	noLock        = flag.Bool("no-lock", false, "Skip the distributed lock (no redis required)")
	expireOverdue = flag.Bool("expire-overdue", false, "Expire active subscriptions past their end time before the sweep")
)

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.Log)
	defer func() { _ = zlog.Sync() }()
	zlog.Info("starting one-shot reconcile", zap.Bool("dry_run", *dryRun))

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		zlog.Fatal("failed to connect database", zap.Error(err))
	}

	var locker *lock.Locker
	if !*noLock {
		rdb, err := database.NewRedis(&cfg.Redis)
		if err != nil {
			zlog.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewLocker(rdb)
	}

	sender, err := email.NewSender(&cfg.Email, zlog.Named("email"))
	if err != nil {
		zlog.Fatal("failed to init email sender", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	subService := service.NewSubscriptionService(subRepo, userRepo, nil, nil, cfg, clock.Real(), zlog.Named("subscription"))

	opts := cron.OptionsFrom(cfg.Reconcile)
	opts.DryRun = *dryRun
	if *expireOverdue {
		opts.ExpireOverdue = true
	}
	scheduler := cron.NewService(cron.Deps{
		Subscriptions: subService,
		SubRepo:       subRepo,
		ItemRepo:      repository.NewItemRepository(db),
		UserRepo:      userRepo,
		Sender:        sender,
		Locker:        locker,
		Logger:        zlog.Named("reconcile"),
	}, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := scheduler.RunNow(ctx)
	if err != nil {
		zlog.Error("reconcile failed", zap.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}
