package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// PushSender 按用户投递原始推送帧
type PushSender interface {
	SendToUser(ctx context.Context, userID uint, msg []byte) error
}

// WebSocketNotifier 通过WebSocket推送通道实现 PushNotifier，离线用户由通道暂存
type WebSocketNotifier struct {
	sender PushSender
}

// NewWebSocketNotifier 创建推送通知器
func NewWebSocketNotifier(sender PushSender) *WebSocketNotifier {
	return &WebSocketNotifier{sender: sender}
}

type pushFrame struct {
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// SendPushToUser 序列化并投递推送
func (n *WebSocketNotifier) SendPushToUser(ctx context.Context, userID uint, push Push) error {
	payload, err := json.Marshal(pushFrame{
		Type:      "push",
		Title:     push.Title,
		Body:      push.Body,
		Data:      push.Data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("序列化推送失败: %w", err)
	}
	return n.sender.SendToUser(ctx, userID, payload)
}
