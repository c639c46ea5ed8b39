package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shelfmate/library_server/internal/model"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// Epoch 测试用的固定时间
var Epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TestUser 创建测试用户
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	user := &model.User{
		Username: fmt.Sprintf("reader_%d", n),
		Email:    fmt.Sprintf("reader_%d@example.com", n),
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = email
	}
}

// WithCustomerID 设置支付客户 ID
func WithCustomerID(customerID string) func(*model.User) {
	return func(u *model.User) {
		u.PaymentCustomerID = &customerID
	}
}

// TestSubscription 创建测试订阅（直接写库，不经过生命周期管理）
func TestSubscription(t *testing.T, db *gorm.DB, userID int64, opts ...func(*model.Subscription)) *model.Subscription {
	t.Helper()

	sub := &model.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		Plan:      model.PlanBasic,
		Status:    model.StatusActive,
		StartTime: Epoch,
		EndTime:   Epoch.AddDate(0, 1, 0),
		CreatedAt: Epoch,
		UpdatedAt: Epoch,
	}

	for _, opt := range opts {
		opt(sub)
	}

	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("Failed to create test subscription: %v", err)
	}

	return sub
}

// WithPlan 设置套餐
func WithPlan(plan model.Plan) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Plan = plan
	}
}

// WithStatus 设置状态
func WithStatus(status model.Status) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.Status = status
	}
}

// WithPeriod 设置有效期
func WithPeriod(start, end time.Time) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.StartTime = start
		s.EndTime = end
	}
}

// WithAutoRenew 设置自动续费
func WithAutoRenew(autoRenew bool) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.AutoRenew = autoRenew
	}
}

// WithPaymentSubscriptionID 设置支付平台订阅 ID
func WithPaymentSubscriptionID(ref string) func(*model.Subscription) {
	return func(s *model.Subscription) {
		s.PaymentSubscriptionID = &ref
	}
}

// TestItems 为用户创建 n 个条目
func TestItems(t *testing.T, db *gorm.DB, ownerID int64, n int) {
	t.Helper()

	if n == 0 {
		return
	}
	items := make([]model.MediaItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, model.MediaItem{
			OwnerID: ownerID,
			Title:   fmt.Sprintf("Book %d", i+1),
		})
	}
	if err := db.CreateInBatches(items, 100).Error; err != nil {
		t.Fatalf("Failed to create test items: %v", err)
	}
}
