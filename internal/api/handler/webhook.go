package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shelfmate/library_server/internal/pkg/apperr"
	"github.com/shelfmate/library_server/internal/pkg/response"
	"github.com/shelfmate/library_server/internal/service"
)

// maxWebhookBody 回调请求体上限
const maxWebhookBody = 64 << 10

// SignatureHeader 支付平台回调签名头
const SignatureHeader = "Stripe-Signature"

// WebhookHandler 支付平台回调。与其他接口不同，失败时返回非 2xx 状态码以便平台重试
type WebhookHandler struct {
	subService *service.SubscriptionService
	logger     *zap.Logger
}

func NewWebhookHandler(subService *service.SubscriptionService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		subService: subService,
		logger:     logger,
	}
}

// Payment 接收支付事件
// POST /api/v1/webhooks/payment
func (h *WebhookHandler) Payment(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Response{Code: response.CodeParamError, Message: "failed to read body"})
		return
	}

	err = h.subService.ApplyWebhook(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err == nil {
		response.Success(c, nil)
		return
	}

	h.logger.Warn("payment webhook rejected", zap.Error(err))
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindNotFound:
		c.JSON(http.StatusBadRequest, response.Response{Code: response.CodeParamError, Message: err.Error()})
	case apperr.KindExternalService:
		c.JSON(http.StatusServiceUnavailable, response.Response{Code: response.CodeExternalService, Message: "payment gateway unavailable"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, response.Response{Code: response.CodeServerError, Message: "internal server error"})
	}
}
