package handler

import (
	"context"
	"crypto/subtle"
	"time"

	"social-connect/pkg/response"

	"github.com/gin-gonic/gin"
)

// ThrottleCounter 计数器查询与重置
type ThrottleCounter interface {
	Count(ctx context.Context, userID uint, feature string) (int64, error)
	GetRemainingHours(ctx context.Context, userID uint, feature string) (int, error)
	Reset(ctx context.Context, userID uint, feature string) error
}

// LimitLookup 用户功能限额查询
type LimitLookup interface {
	Limit(ctx context.Context, userID uint, feature string) (int64, bool, error)
}

type ThrottleHandler struct {
	counter ThrottleCounter
	limits  LimitLookup
	window  time.Duration
}

func NewThrottleHandler(counter ThrottleCounter, limits LimitLookup, window time.Duration) *ThrottleHandler {
	return &ThrottleHandler{counter: counter, limits: limits, window: window}
}

// Usage 当前用户某功能的使用情况
func (h *ThrottleHandler) Usage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	feature := c.Param("feature")
	ctx := c.Request.Context()

	limit, limited, err := h.limits.Limit(ctx, userID, feature)
	if err != nil {
		response.FromError(c, err)
		return
	}
	used, err := h.counter.Count(ctx, userID, feature)
	if err != nil {
		response.FromError(c, err)
		return
	}

	data := gin.H{
		"feature":      feature,
		"used":         used,
		"limited":      limited,
		"window_hours": int(h.window / time.Hour),
	}
	if limited {
		remaining := limit - used
		if remaining < 0 {
			remaining = 0
		}
		data["limit"] = limit
		data["remaining"] = remaining
	}
	if used > 0 {
		hours, err := h.counter.GetRemainingHours(ctx, userID, feature)
		if err != nil {
			response.FromError(c, err)
			return
		}
		data["reset_in_hours"] = hours
	}
	response.Success(c, data)
}

// Reset 重置指定用户的计数（维护接口）
func (h *ThrottleHandler) Reset(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	feature := c.Param("feature")

	if err := h.counter.Reset(c.Request.Context(), userID, feature); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "计数已重置", nil)
}

// AdminAuth 维护接口认证：X-Admin-Token 必须与配置一致
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-Admin-Token")
		if token == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			response.Forbidden(c, "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}
