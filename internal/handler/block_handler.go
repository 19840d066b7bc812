package handler

import (
	"context"

	"social-connect/pkg/response"

	"github.com/gin-gonic/gin"
)

// BlockStore 屏蔽关系写入
type BlockStore interface {
	Block(ctx context.Context, blockerID, blockedID uint) error
	Unblock(ctx context.Context, blockerID, blockedID uint) error
}

// UserChecker 用户存在性查询
type UserChecker interface {
	Exists(ctx context.Context, id uint) (bool, error)
}

type BlockHandler struct {
	blocks BlockStore
	users  UserChecker
}

func NewBlockHandler(blocks BlockStore, users UserChecker) *BlockHandler {
	return &BlockHandler{blocks: blocks, users: users}
}

// Block 屏蔽用户，被屏蔽的用户不会出现在好友列表中
func (h *BlockHandler) Block(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if targetID == userID {
		response.BadRequest(c, "cannot block yourself")
		return
	}

	exists, err := h.users.Exists(c.Request.Context(), targetID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if !exists {
		response.NotFound(c, "user not found")
		return
	}

	if err := h.blocks.Block(c.Request.Context(), userID, targetID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已屏蔽", nil)
}

// Unblock 取消屏蔽
func (h *BlockHandler) Unblock(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := h.blocks.Unblock(c.Request.Context(), userID, targetID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已取消屏蔽", nil)
}
