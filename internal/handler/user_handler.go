package handler

import (
	"context"
	"errors"

	"social-connect/internal/model"
	"social-connect/internal/repository"
	"social-connect/pkg/response"

	"github.com/gin-gonic/gin"
)

// ProfileReader 用户资料查询
type ProfileReader interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// PresenceChecker 在线状态查询
type PresenceChecker interface {
	IsOnline(userID uint) bool
}

type UserHandler struct {
	users    ProfileReader
	presence PresenceChecker
}

func NewUserHandler(users ProfileReader, presence PresenceChecker) *UserHandler {
	return &UserHandler{users: users, presence: presence}
}

// GetProfile 当前用户资料
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	user, err := h.users.FindByID(c.Request.Context(), userID)
	if errors.Is(err, repository.ErrNotFound) {
		response.NotFound(c, "user not found")
		return
	}
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"id":              user.ID,
		"email":           user.Email,
		"name":            user.Name,
		"avatar":          user.Avatar,
		"bio":             user.Bio,
		"membership_tier": user.MembershipTier,
		"online":          h.presence.IsOnline(user.ID),
	})
}

// CheckUserOnline 检查指定用户是否在线
func (h *UserHandler) CheckUserOnline(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"online":  h.presence.IsOnline(userID),
	})
}
