package handler

import (
	"github.com/gin-gonic/gin"
)

// Handlers 所有业务处理器
type Handlers struct {
	Friends  *FriendHandler
	Blocks   *BlockHandler
	Throttle *ThrottleHandler
	Users    *UserHandler
}

// RegisterRoutes 绑定 /api/v1 路由
// auth 为认证中间件；adminToken 为空时不注册维护接口
func RegisterRoutes(router gin.IRouter, h Handlers, auth gin.HandlerFunc, adminToken string) {
	v1 := router.Group("/api/v1")

	// 用户资料与在线状态
	users := v1.Group("/users", auth)
	{
		users.GET("/me", h.Users.GetProfile)
	}
	v1.GET("/presence/:user_id", auth, h.Users.CheckUserOnline)

	// 好友关系
	friends := v1.Group("/friends", auth)
	{
		friends.GET("", h.Friends.ListFriends)            // 好友列表
		friends.GET("/:user_id/status", h.Friends.Status) // 关系状态
		friends.DELETE("/:user_id", h.Friends.Unfriend)   // 解除好友关系
	}

	// 好友请求
	requests := v1.Group("/friend-requests", auth)
	{
		requests.GET("", h.Friends.ListIncoming)                      // 收到的请求
		requests.GET("/sent", h.Friends.ListSent)                     // 发出的请求
		requests.POST("", h.Friends.SendRequest)                      // 发送请求
		requests.POST("/:request_id/accept", h.Friends.AcceptRequest) // 接受
		requests.POST("/:request_id/reject", h.Friends.RejectRequest) // 拒绝
	}

	// 屏蔽
	blocks := v1.Group("/blocks", auth)
	{
		blocks.POST("/:user_id", h.Blocks.Block)
		blocks.DELETE("/:user_id", h.Blocks.Unblock)
	}

	// 功能限额
	v1.GET("/throttle/:feature", auth, h.Throttle.Usage)

	if adminToken == "" {
		return
	}

	// 维护接口
	admin := v1.Group("/admin", AdminAuth(adminToken))
	{
		admin.DELETE("/friend-requests/:request_id", h.Friends.DeleteRequest)
		admin.POST("/throttle/:feature/users/:user_id/reset", h.Throttle.Reset)
	}
}
