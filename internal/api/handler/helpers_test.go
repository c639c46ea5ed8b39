package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/shelfmate/library_server/config"
	"github.com/shelfmate/library_server/internal/api/middleware"
	"github.com/shelfmate/library_server/internal/pkg/clock"
	"github.com/shelfmate/library_server/internal/pkg/payment"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/repository"
	"github.com/shelfmate/library_server/internal/service"
	"github.com/shelfmate/library_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testWebhookSecret = "whsec_handler_test"

// testContext 本地测试上下文
type testContext struct {
	DB           *gorm.DB
	Clock        *clock.Fake
	Subs         *service.SubscriptionService
	Entitlements *service.EntitlementService
	ItemRepo     *repository.ItemRepository
}

func testConfig() *config.Config {
	return &config.Config{
		Payment: config.PaymentConfig{
			SecretKey:     "sk_test_handler",
			WebhookSecret: testWebhookSecret,
			Prices: map[string]string{
				"basic":   "price_basic",
				"premium": "price_premium",
			},
			Breaker: config.BreakerConfig{Timeout: time.Minute},
		},
	}
}

// setupTest gateway 为 nil 时不配置支付平台
func setupTest(t *testing.T, gateway payment.Gateway) *testContext {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	clk := clock.NewFake(testutil.Epoch)
	itemRepo := repository.NewItemRepository(db)
	subs := service.NewSubscriptionService(
		repository.NewSubscriptionRepository(db),
		repository.NewUserRepository(db),
		gateway,
		nil,
		testConfig(),
		clk,
		zap.NewNop(),
	)

	return &testContext{
		DB:           db,
		Clock:        clk,
		Subs:         subs,
		Entitlements: service.NewEntitlementService(subs, itemRepo, zap.NewNop()),
		ItemRepo:     itemRepo,
	}
}

// priceGateway 只记录改价调用，其余操作不应被触发
type priceGateway struct {
	payment.Gateway
	updated map[string]string
}

func (g *priceGateway) UpdateRemoteSubscription(_ context.Context, id, priceRef string) error {
	if g.updated == nil {
		g.updated = map[string]string{}
	}
	g.updated[id] = priceRef
	return nil
}

// mockAuth 模拟认证中间件
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

// dataMap 将响应 data 转为 map
func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}
