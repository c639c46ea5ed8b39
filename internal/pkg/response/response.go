package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shelfmate/library_server/internal/pkg/apperr"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodePlanRestricted   = 1004
	CodeServerError      = 5000
	CodeExternalService  = 5001
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "invalid parameters",
	CodeAuthFailed:       "authentication failed",
	CodePermissionDenied: "permission denied",
	CodeResourceNotFound: "resource not found",
	CodePlanRestricted:   "not available on the current plan",
	CodeServerError:      "internal server error",
	CodeExternalService:  "upstream service unavailable",
}

// kindCodes 错误类别到错误码的映射
var kindCodes = map[apperr.Kind]int{
	apperr.KindValidation:      CodeParamError,
	apperr.KindNotFound:        CodeResourceNotFound,
	apperr.KindForbidden:       CodePlanRestricted,
	apperr.KindExternalService: CodeExternalService,
	apperr.KindInternal:        CodeServerError,
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Errors  []string    `json:"errors,omitempty"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// FromError 按错误类别输出响应；内部错误不暴露细节
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		code = CodeServerError
	}

	if code == CodeServerError {
		_ = c.Error(err)
		Error(c, code, "")
		return
	}

	msgs := apperr.Messages(err)
	resp := Response{Code: code, Message: codeMessages[code]}
	if len(msgs) > 0 {
		resp.Message = msgs[0]
	}
	if len(msgs) > 1 {
		resp.Errors = msgs
	}
	c.JSON(http.StatusOK, resp)
}

// ParamError 参数错误
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError 认证失败
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError 权限不足
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError 资源不存在
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// PlanError 当前套餐不支持
func PlanError(c *gin.Context, message string) {
	Error(c, CodePlanRestricted, message)
}

// ServerError 服务器错误
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
