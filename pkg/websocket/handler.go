package websocket

import (
	"net/http"
	"strings"
	"time"

	"social-connect/config"
	"social-connect/pkg/jwt"
	"social-connect/pkg/logger"
	"social-connect/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// Handler 推送通道的Gin处理函数
// token 通过 ?token= 或 Sec-WebSocket-Protocol 传入
func Handler(m *Manager, jwtSvc *jwt.JWTService, cfg config.WebSocketConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Sec-WebSocket-Protocol"), "Bearer ")
		}
		if token == "" {
			response.Unauthorized(c, "缺少token")
			return
		}

		claims, err := jwtSvc.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "token无效或已过期")
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			response.Unauthorized(c, "token无效")
			return
		}

		// 回显子协议，避免客户端提示 "Server sent no subprotocol"
		respHeader := http.Header{}
		if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
			respHeader.Set("Sec-WebSocket-Protocol", protocol)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
		if err != nil {
			logger.Warn("WebSocket升级失败", zap.Uint("user_id", userID), zap.Error(err))
			return
		}
		defer conn.Close()

		client := NewClient(userID, conn)
		m.AddClient(client)
		defer m.RemoveClient(client)

		logger.Info("推送连接建立", zap.Uint("user_id", userID))

		go writeLoop(m, client, cfg.PingInterval)
		readLoop(client, cfg.ReadTimeout)

		logger.Info("推送连接断开", zap.Uint("user_id", userID))
	}
}

// writeLoop 写协程：发送推送并定时发送ping心跳
// 写失败时立即移除连接，之后的推送走离线队列，不再写入无人读取的缓冲
func writeLoop(m *Manager, client *Client, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("推送写入失败，断开连接", zap.Uint("user_id", client.UserID), zap.Error(err))
				_ = client.Conn.Close()
				m.release(client, msg)
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
				_ = client.Conn.Close()
				m.release(client)
				return
			}
		case <-client.Closed():
			// 被新连接替换或读协程已退出
			_ = client.Conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = client.Conn.Close()
			m.release(client)
			return
		}
	}
}

// readLoop 读协程：客户端只发送心跳，超时未收到任何数据则断开
func readLoop(client *Client, readTimeout time.Duration) {
	conn := client.Conn
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
}
