package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/model"
	"github.com/shelfmate/library_server/internal/pkg/email"
	"github.com/shelfmate/library_server/internal/pkg/lock"
	"github.com/shelfmate/library_server/internal/repository"
	"github.com/shelfmate/library_server/internal/service"
)

// reconciledPlans 需要巡检条目上限的套餐
var reconciledPlans = []model.Plan{model.PlanFree, model.PlanBasic}

// Deps 巡检依赖，Locker 为空时不加分布式锁
type Deps struct {
	Subscriptions *service.SubscriptionService
	SubRepo       *repository.SubscriptionRepository
	ItemRepo      *repository.ItemRepository
	UserRepo      *repository.UserRepository
	Sender        email.Sender
	Locker        *lock.Locker
	Logger        *zap.Logger
}

type Options struct {
	Interval     time.Duration
	DrainTimeout time.Duration
	LockKey      string
	LockTTL      time.Duration
	DryRun       bool
	// ExpireOverdue 巡检前先处理到期订阅，默认只读
	ExpireOverdue bool
}

// OptionsFrom 由配置生成选项
func OptionsFrom(cfg config.ReconcileConfig) Options {
	return Options{
		Interval:     cfg.Interval,
		DrainTimeout: cfg.DrainTimeout,
		LockKey:      cfg.LockKey,
		LockTTL:      cfg.LockTTL,

		ExpireOverdue: cfg.ExpireOverdue,
	}
}

// Report 一次巡检的结果
type Report struct {
	Expired     int64 `json:"expired"`
	Scanned     int   `json:"scanned"`
	Violations  int   `json:"violations"`
	Notified    int   `json:"notified"`
	Failed      int   `json:"failed"`
	Skipped     bool  `json:"skipped"`
	Interrupted bool  `json:"interrupted"`
}

// Service 套餐上限巡检，按固定间隔扫描 free/basic 的 active 订阅并提醒超限用户。
// 巡检只读取和提醒，不改变订阅状态；到期处理需显式开启 ExpireOverdue
type Service struct {
	deps Deps
	opts Options

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc
}

func NewService(deps Deps, opts Options) *Service {
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultReconcileInterval
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = config.DefaultDrainTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = config.DefaultLockTTL
	}
	if opts.LockKey == "" {
		opts.LockKey = "reconcile:lock"
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{deps: deps, opts: opts}
}

// Start 启动巡检循环，重复调用无效
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	workCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.cancel = cancel

	go s.loop(workCtx, s.stop, s.done)
	s.deps.Logger.Info("reconciliation scheduler started", zap.Duration("interval", s.opts.Interval))
}

// Stop 不再开始新的巡检，等待进行中的记录处理完；超过 DrainTimeout 则强制取消
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	done, cancel := s.done, s.cancel
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(s.opts.DrainTimeout):
		s.deps.Logger.Warn("reconciliation drain timed out, cancelling", zap.Duration("drain_timeout", s.opts.DrainTimeout))
		cancel()
		<-done
	}
	cancel()
	s.deps.Logger.Info("reconciliation scheduler stopped")
}

func (s *Service) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(s.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			report, err := s.sweep(ctx, stop)
			if err != nil {
				s.deps.Logger.Error("reconciliation sweep failed", zap.Error(err))
			} else {
				s.logReport(report)
			}
			timer.Reset(s.opts.Interval)
		}
	}
}

// RunNow 同步执行一次巡检
func (s *Service) RunNow(ctx context.Context) (Report, error) {
	report, err := s.sweep(ctx, nil)
	if err == nil {
		s.logReport(report)
	}
	return report, err
}

func (s *Service) sweep(ctx context.Context, stop <-chan struct{}) (Report, error) {
	var report Report

	if s.deps.Locker != nil {
		held, err := s.deps.Locker.Acquire(ctx, s.opts.LockKey, s.opts.LockTTL)
		if err != nil {
			if errors.Is(err, lock.ErrNotAcquired) {
				s.deps.Logger.Info("reconciliation already running elsewhere, skipping")
				report.Skipped = true
				return report, nil
			}
			return report, fmt.Errorf("acquire reconcile lock: %w", err)
		}
		keepCtx, stopKeep := context.WithCancel(ctx)
		go held.KeepAlive(keepCtx, s.opts.LockTTL, func(err error) {
			s.deps.Logger.Warn("reconcile lock lost during sweep", zap.Error(err))
		})
		defer func() {
			stopKeep()
			if err := held.Release(context.WithoutCancel(ctx)); err != nil {
				s.deps.Logger.Warn("failed to release reconcile lock", zap.Error(err))
			}
		}()
	}

	if s.opts.ExpireOverdue && !s.opts.DryRun && s.deps.Subscriptions != nil {
		expired, err := s.deps.Subscriptions.ExpireOverdue(ctx)
		if err != nil {
			s.deps.Logger.Error("failed to expire overdue subscriptions", zap.Error(err))
		}
		report.Expired = expired
	}

	subs, err := s.deps.SubRepo.ListActiveByPlans(ctx, reconciledPlans)
	if err != nil {
		return report, fmt.Errorf("list subscriptions: %w", err)
	}

	seen := make(map[int64]struct{}, len(subs))
	for i := range subs {
		if stopped(ctx, stop) {
			report.Interrupted = true
			s.deps.Logger.Info("reconciliation interrupted", zap.Int("remaining", len(subs)-i))
			break
		}

		userID := subs[i].UserID
		if _, ok := seen[userID]; ok {
			continue
		}
		seen[userID] = struct{}{}

		// 同一用户有多条 active 记录时以最近开始的一条为准，可能是不受限的套餐
		sub, err := s.deps.SubRepo.GetLatestActive(ctx, userID)
		if err != nil {
			report.Failed++
			s.deps.Logger.Error("failed to resolve current subscription",
				zap.Int64("user_id", userID), zap.Error(err))
			continue
		}

		report.Scanned++
		s.reconcileOne(ctx, sub, &report)
	}

	return report, nil
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// reconcileOne 单条记录的失败只记日志和计数，不影响后续记录
func (s *Service) reconcileOne(ctx context.Context, sub *model.Subscription, report *Report) {
	log := s.deps.Logger.With(
		zap.String("subscription_id", sub.ID.String()),
		zap.Int64("user_id", sub.UserID),
		zap.String("plan", sub.Plan.String()),
	)
	defer func() {
		if r := recover(); r != nil {
			report.Failed++
			log.Error("panic while reconciling subscription", zap.Any("panic", r))
		}
	}()

	limit, unlimited := model.ItemCeiling(sub.Plan)
	if unlimited {
		return
	}

	count, err := s.deps.ItemRepo.CountItems(ctx, sub.UserID)
	if err != nil {
		report.Failed++
		log.Error("failed to count items", zap.Error(err))
		return
	}
	if count <= limit {
		return
	}

	report.Violations++
	log = log.With(zap.Int64("count", count), zap.Int64("ceiling", limit))
	if s.opts.DryRun {
		log.Info("plan limit exceeded (dry run)")
		return
	}

	user, err := s.deps.UserRepo.GetByID(ctx, sub.UserID)
	if err != nil {
		report.Failed++
		log.Error("failed to load user for notification", zap.Error(err))
		return
	}

	subject, body := email.OverLimitMessage(user.Username, sub.Plan.String(), limit, count)
	if err := s.deps.Sender.Send(ctx, user.Email, subject, body); err != nil {
		report.Failed++
		log.Error("failed to send plan limit notification", zap.Error(err))
		return
	}

	report.Notified++
	log.Info("plan limit notification sent")
}

func (s *Service) logReport(r Report) {
	s.deps.Logger.Info("reconciliation sweep finished",
		zap.Int64("expired", r.Expired),
		zap.Int("scanned", r.Scanned),
		zap.Int("violations", r.Violations),
		zap.Int("notified", r.Notified),
		zap.Int("failed", r.Failed),
		zap.Bool("skipped", r.Skipped),
		zap.Bool("interrupted", r.Interrupted),
		zap.Bool("dry_run", s.opts.DryRun),
	)
}
