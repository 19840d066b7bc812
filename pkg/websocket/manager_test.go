package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"social-connect/config"
	"social-connect/pkg/jwt"
	redisPkg "social-connect/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *redisPkg.OfflinePushQueue) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	queue := redisPkg.NewOfflinePushQueue(client)
	return NewManager(queue), queue
}

func receive(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func TestManager_OfflineThenFlushOnConnect(t *testing.T) {
	m, queue := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SendToUser(ctx, 1, []byte("a")))
	require.NoError(t, m.SendToUser(ctx, 1, []byte("b")))
	count, err := queue.Count(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	client := NewClient(1, nil)
	m.AddClient(client)
	assert.True(t, m.IsOnline(1))

	assert.Equal(t, "a", receive(t, client.Send))
	assert.Equal(t, "b", receive(t, client.Send))

	// 在线时直接投递
	require.NoError(t, m.SendToUser(ctx, 1, []byte("c")))
	assert.Equal(t, "c", receive(t, client.Send))
}

func TestManager_ReplaceAndRemove(t *testing.T) {
	m, _ := newTestManager(t)

	first := NewClient(5, nil)
	m.AddClient(first)
	second := NewClient(5, nil)
	m.AddClient(second)

	select {
	case <-first.Closed():
	default:
		t.Fatal("replaced client should be closed")
	}
	assert.Equal(t, 1, m.OnlineCount())

	// 旧连接退出不影响新连接
	m.RemoveClient(first)
	assert.True(t, m.IsOnline(5))

	m.RemoveClient(second)
	assert.False(t, m.IsOnline(5))
}

func TestHandler_DeliversPush(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, _ := newTestManager(t)
	jwtSvc := jwt.NewJWTService(config.JWTConfig{Secret: "s", Issuer: "social-connect", ExpireTime: time.Hour})

	r := gin.New()
	r.GET("/ws", Handler(m, jwtSvc, config.WebSocketConfig{PingInterval: time.Second, ReadTimeout: 5 * time.Second}))
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	token, err := jwtSvc.GenerateToken(9, nil)
	require.NoError(t, err)
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return m.IsOnline(9) }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, m.SendToUser(context.Background(), 9, []byte(`{"type":"push"}`)))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"push"}`, string(msg))
}

func TestManager_ReleaseMovesUnsentToOffline(t *testing.T) {
	m, queue := newTestManager(t)
	ctx := context.Background()

	client := NewClient(4, nil)
	m.AddClient(client)
	client.Send <- []byte("buffered")

	m.release(client, []byte("failed"))
	assert.False(t, m.IsOnline(4))

	require.Eventually(t, func() bool {
		n, err := queue.Count(ctx, 4)
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	// 移除后的推送直接进入离线队列
	require.NoError(t, m.SendToUser(ctx, 4, []byte("later")))
	count, err := queue.Count(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestManager_ReleaseForwardsToReplacement(t *testing.T) {
	m, _ := newTestManager(t)

	first := NewClient(6, nil)
	m.AddClient(first)
	first.Send <- []byte("pending")

	second := NewClient(6, nil)
	m.AddClient(second)

	m.release(first)
	assert.True(t, m.IsOnline(6))
	assert.Equal(t, "pending", receive(t, second.Send))
}

func TestWriteLoop_WriteFailureUnregistersClient(t *testing.T) {
	m, queue := newTestManager(t)
	ctx := context.Background()

	serverConns := make(chan *gorillaws.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConns <- conn
	}))
	defer srv.Close()

	peer, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer peer.Close()

	var conn *gorillaws.Conn
	select {
	case conn = <-serverConns:
	case <-time.After(2 * time.Second):
		t.Fatal("server side of the connection not established")
	}

	client := NewClient(8, conn)
	m.AddClient(client)

	// 底层连接已断开，但读协程尚未超时
	require.NoError(t, conn.Close())
	go writeLoop(m, client, time.Hour)

	require.NoError(t, m.SendToUser(ctx, 8, []byte("first")))

	require.Eventually(t, func() bool { return !m.IsOnline(8) }, 2*time.Second, 10*time.Millisecond)
	select {
	case <-client.Closed():
	default:
		t.Fatal("client should be closed after a failed write")
	}

	require.NoError(t, m.SendToUser(ctx, 8, []byte("second")))
	require.Eventually(t, func() bool {
		n, err := queue.Count(ctx, 8)
		return err == nil && n == 2
	}, 2*time.Second, 10*time.Millisecond)
}
