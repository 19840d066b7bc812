package response

import (
	"net/http"

	"social-connect/pkg/apperr"
	"social-connect/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Response 统一响应结构
type Response struct {
	Code    int                    `json:"code"`              // 状态码：0表示成功，其他表示错误
	Message string                 `json:"message"`           // 响应消息
	Data    interface{}            `json:"data,omitempty"`    // 响应数据
	Details map[string]interface{} `json:"details,omitempty"` // 错误附加信息（如剩余天数）
	Error   string                 `json:"error,omitempty"`   // 错误详情（仅在开发环境显示）
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应，HTTP状态码与业务码一致
func Error(c *gin.Context, code int, message string) {
	c.JSON(code, Response{
		Code:    code,
		Message: message,
	})
}

// BadRequest 400错误
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, message)
}

// Unauthorized 401错误
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message)
}

// Forbidden 403错误
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message)
}

// NotFound 404错误
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message)
}

// TooManyRequests 429错误
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, message)
}

// InternalError 500错误
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, message)
}

// StatusOf 业务错误类别到HTTP状态码的映射
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.BadRequest:
		return http.StatusBadRequest
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.Unprocessable:
		return http.StatusUnprocessableEntity
	case apperr.PaymentRequired:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// FromError 根据业务错误类别写出错误响应
func FromError(c *gin.Context, err error) {
	appErr, ok := apperr.As(apperr.Normalize(err))
	if !ok {
		InternalError(c, "internal server error")
		return
	}

	code := StatusOf(appErr.Kind)
	resp := Response{
		Code:    code,
		Message: appErr.Message,
		Details: appErr.Details,
	}

	if appErr.Kind == apperr.ServerError {
		logger.Error("请求处理失败",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		// 在开发环境下显示错误详情，生产环境隐藏存储层信息
		if gin.Mode() == gin.DebugMode {
			resp.Error = err.Error()
		} else {
			resp.Message = "internal server error"
		}
	}

	c.JSON(code, resp)
}
