package websocket

import (
	"context"
	"sync"
	"time"

	"social-connect/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendBufferSize = 256
	flushTimeout   = 5 * time.Second
)

// OfflineStore 用户不在线时暂存推送
type OfflineStore interface {
	Push(ctx context.Context, userID uint, payload []byte) error
	Drain(ctx context.Context, userID uint) ([][]byte, error)
}

// Client 一个在线用户的WebSocket连接
// Send 由写协程消费；closed 关闭后不再向 Send 写入
type Client struct {
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient 创建连接对象
func NewClient(userID uint, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// Closed 连接移除后关闭
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Manager 管理在线用户的WebSocket连接，并发安全
// 每个用户只保留最新的一个连接
type Manager struct {
	clients map[uint]*Client
	lock    sync.RWMutex
	offline OfflineStore
}

// NewManager 创建连接管理器，offline 为 nil 时离线推送直接丢弃
func NewManager(offline OfflineStore) *Manager {
	return &Manager{
		clients: make(map[uint]*Client),
		offline: offline,
	}
}

// AddClient 注册连接并补发离线推送
func (m *Manager) AddClient(client *Client) {
	m.lock.Lock()
	if old, ok := m.clients[client.UserID]; ok && old != client {
		old.close()
	}
	m.clients[client.UserID] = client
	m.lock.Unlock()

	go m.flushOffline(client)
}

// RemoveClient 移除连接；用户已用新连接替换时不做处理
func (m *Manager) RemoveClient(client *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if current, ok := m.clients[client.UserID]; ok && current == client {
		delete(m.clients, client.UserID)
	}
	client.close()
}

// IsOnline 判断用户是否在线
func (m *Manager) IsOnline(userID uint) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

// OnlineCount 在线连接数
func (m *Manager) OnlineCount() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

// SendToUser 推送给指定用户；不在线或发送缓冲已满时写入离线队列
func (m *Manager) SendToUser(ctx context.Context, userID uint, msg []byte) error {
	m.lock.RLock()
	client, ok := m.clients[userID]
	m.lock.RUnlock()

	if ok && !client.isClosed() {
		select {
		case client.Send <- msg:
			return nil
		case <-client.closed:
		default:
			logger.Warn("发送缓冲已满，转为离线推送", zap.Uint("user_id", userID))
		}
	}

	if m.offline == nil {
		return nil
	}
	return m.offline.Push(ctx, userID, msg)
}

// flushOffline 连接建立后补发离线推送
func (m *Manager) flushOffline(client *Client) {
	if m.offline == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	payloads, err := m.offline.Drain(ctx, client.UserID)
	if err != nil {
		logger.Warn("获取离线推送失败", zap.Uint("user_id", client.UserID), zap.Error(err))
		return
	}

	for i, payload := range payloads {
		if client.isClosed() {
			m.requeue(client.UserID, payloads[i:])
			return
		}
		select {
		case client.Send <- payload:
		case <-client.closed:
			m.requeue(client.UserID, payloads[i:])
			return
		case <-ctx.Done():
			m.requeue(client.UserID, payloads[i:])
			return
		}
	}
}

// release 写协程退出时调用：移除连接，并把未写出的推送转给用户的新连接或离线队列
func (m *Manager) release(client *Client, unsent ...[]byte) {
	m.RemoveClient(client)

	for drained := false; !drained; {
		select {
		case msg := <-client.Send:
			unsent = append(unsent, msg)
		default:
			drained = true
		}
	}
	if len(unsent) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for _, msg := range unsent {
		if err := m.SendToUser(ctx, client.UserID, msg); err != nil {
			logger.Warn("未送达推送转存失败", zap.Uint("user_id", client.UserID), zap.Error(err))
			return
		}
	}
}

// requeue 补发中断时把剩余推送放回离线队列
func (m *Manager) requeue(userID uint, payloads [][]byte) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	for _, payload := range payloads {
		if err := m.offline.Push(ctx, userID, payload); err != nil {
			logger.Warn("离线推送回写失败", zap.Uint("user_id", userID), zap.Error(err))
			return
		}
	}
}
