package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Plan 订阅套餐，按 free < basic < premium 排序
type Plan string

const (
	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

var planRanks = map[Plan]int{
	PlanFree:    0,
	PlanBasic:   1,
	PlanPremium: 2,
}

// Plans 按等级升序排列的全部套餐
var Plans = []Plan{PlanFree, PlanBasic, PlanPremium}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if _, ok := planRanks[p]; !ok {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return p, nil
}

// Rank 套餐等级，未知套餐返回 -1
func (p Plan) Rank() int {
	if r, ok := planRanks[p]; ok {
		return r
	}
	return -1
}

func (p Plan) Valid() bool {
	_, ok := planRanks[p]
	return ok
}

// Above 是否高于另一个套餐
func (p Plan) Above(other Plan) bool {
	return p.Rank() > other.Rank()
}

func (p Plan) String() string {
	return string(p)
}

// Status 订阅状态
type Status string

const (
	StatusActive     Status = "active"
	StatusCancelled  Status = "cancelled"
	StatusExpired    Status = "expired"
	StatusTrial      Status = "trial"
	StatusPaused     Status = "paused"
	StatusIncomplete Status = "incomplete"
)

var statuses = map[Status]struct{}{
	StatusActive:     {},
	StatusCancelled:  {},
	StatusExpired:    {},
	StatusTrial:      {},
	StatusPaused:     {},
	StatusIncomplete: {},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statuses[st]; !ok {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

type Subscription struct {
	ID                    uuid.UUID `gorm:"type:char(36);primaryKey" json:"id"`
	UserID                int64     `gorm:"not null;index:idx_subscriptions_user_status" json:"user_id"`
	Plan                  Plan      `gorm:"size:20;not null;index" json:"plan"`
	Status                Status    `gorm:"size:20;not null;default:active;index:idx_subscriptions_user_status" json:"status"`
	StartTime             time.Time `gorm:"not null" json:"start_time"`
	EndTime               time.Time `gorm:"not null;index" json:"end_time"`
	AutoRenew             bool      `gorm:"not null;default:false" json:"auto_renew"`
	PaymentCustomerID     *string   `gorm:"size:100" json:"payment_customer_id,omitempty"`
	PaymentSubscriptionID *string   `gorm:"size:100;index" json:"payment_subscription_id,omitempty"`
	CreatedAt             time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime:false" json:"updated_at"`
}

func (Subscription) TableName() string {
	return "subscriptions"
}

// BeforeCreate 缺省时生成 ID
func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}
