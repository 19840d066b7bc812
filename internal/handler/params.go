package handler

import (
	"strconv"

	"social-connect/pkg/jwt"
	"social-connect/pkg/response"

	"github.com/gin-gonic/gin"
)

// currentUser 获取已认证用户ID，失败时写出401
func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := jwt.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "用户未认证")
		return 0, false
	}
	return userID, true
}

// pathID 解析路径中的正整数ID，失败时写出400
func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}
