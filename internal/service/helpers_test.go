package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/pkg/clock"
	"github.com/shelfmate/library_server/internal/pkg/payment"
	"github.com/shelfmate/library_server/internal/pkg/pubsub"
	"github.com/shelfmate/library_server/internal/repository"
	"github.com/shelfmate/library_server/internal/testutil"
)

type fakeGateway struct {
	mu sync.Mutex

	customerErr error
	checkoutErr error
	cancelErr   error
	updateErr   error
	event       *payment.WebhookEvent
	webhookErr  error

	customers []string
	checkouts []payment.CheckoutRequest
	cancelled []string
	updated   map[string]string
}

func (g *fakeGateway) CreateCustomer(_ context.Context, email string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.customerErr != nil {
		return "", g.customerErr
	}
	g.customers = append(g.customers, email)
	return "cus_" + email, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payment.CheckoutRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkoutErr != nil {
		return "", g.checkoutErr
	}
	g.checkouts = append(g.checkouts, req)
	return "https://checkout.example.com/" + req.Plan, nil
}

func (g *fakeGateway) CancelRemoteSubscription(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, id)
	return g.cancelErr
}

func (g *fakeGateway) UpdateRemoteSubscription(_ context.Context, id, priceRef string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	if g.updated == nil {
		g.updated = map[string]string{}
	}
	g.updated[id] = priceRef
	return nil
}

func (g *fakeGateway) VerifyAndParseWebhook(_ []byte, _ string) (*payment.WebhookEvent, error) {
	if g.webhookErr != nil {
		return nil, g.webhookErr
	}
	return g.event, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.SubscriptionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e *pubsub.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	db           *gorm.DB
	clock        *clock.Fake
	gateway      *fakeGateway
	publisher    *recordingPublisher
	subRepo      *repository.SubscriptionRepository
	subs         *SubscriptionService
	entitlements *EntitlementService
}

func testConfig() *config.Config {
	return &config.Config{
		Payment: config.PaymentConfig{
			Prices: map[string]string{
				"basic":   "price_basic",
				"premium": "price_premium",
			},
		},
	}
}

func setupServices(t *testing.T) *fixture {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	f := &fixture{
		db:        db,
		clock:     clock.NewFake(testutil.Epoch),
		gateway:   &fakeGateway{},
		publisher: &recordingPublisher{},
		subRepo:   repository.NewSubscriptionRepository(db),
	}
	f.subs = NewSubscriptionService(
		f.subRepo,
		repository.NewUserRepository(db),
		f.gateway,
		f.publisher,
		testConfig(),
		f.clock,
		zap.NewNop(),
	)
	f.entitlements = NewEntitlementService(f.subs, repository.NewItemRepository(db), zap.NewNop())
	return f
}
