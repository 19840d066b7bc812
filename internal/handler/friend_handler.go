package handler

import (
	"strconv"
	"strings"

	"social-connect/internal/service"
	"social-connect/pkg/response"

	"github.com/gin-gonic/gin"
)

type FriendHandler struct {
	service *service.ConnectionService
}

func NewFriendHandler(s *service.ConnectionService) *FriendHandler {
	return &FriendHandler{service: s}
}

// SendRequest 发送好友请求
// receiver_id 可以是数字或字符串，格式由服务层校验
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	type req struct {
		ReceiverID interface{} `json:"receiver_id" binding:"required"`
		Message    string      `json:"message" binding:"max=500"`
	}
	var r req
	if err := c.ShouldBindJSON(&r); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	request, err := h.service.SendFriendRequest(c.Request.Context(), userID, rawID(r.ReceiverID), r.Message)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "好友请求已发送", request)
}

// rawID 把JSON中的数字或字符串统一为字符串
func rawID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		// 非整数会在服务层解析失败
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

// AcceptRequest 接受好友请求
func (h *FriendHandler) AcceptRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}

	edge, err := h.service.AcceptFriendRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已添加好友", edge)
}

// RejectRequest 拒绝好友请求
func (h *FriendHandler) RejectRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}

	request, err := h.service.RejectFriendRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已拒绝好友请求", request)
}

// DeleteRequest 删除好友请求（维护接口）
func (h *FriendHandler) DeleteRequest(c *gin.Context) {
	requestID, ok := pathID(c, "request_id")
	if !ok {
		return
	}

	if err := h.service.DeleteFriendRequest(c.Request.Context(), requestID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "好友请求已删除", nil)
}

// ListIncoming 收到的好友请求
func (h *FriendHandler) ListIncoming(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	requests, err := h.service.GetFriendRequests(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, requests)
}

// ListSent 发出的好友请求
func (h *FriendHandler) ListSent(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	requests, err := h.service.GetSentFriendRequests(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, requests)
}

// ListFriends 好友列表
func (h *FriendHandler) ListFriends(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	friends, err := h.service.GetFriends(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, friends)
}

// Unfriend 解除好友关系
func (h *FriendHandler) Unfriend(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	friendID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	if err := h.service.Unfriend(c.Request.Context(), userID, friendID); err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "已解除好友关系", nil)
}

// Status 与指定用户的关系状态
func (h *FriendHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	targetID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	status, err := h.service.GetFriendshipStatus(c.Request.Context(), userID, targetID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, status)
}
