package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 离线推送相关常量
const (
	OfflinePushKeyPrefix = "connect:offline:"  // 离线推送key前缀
	OfflinePushTTL       = 7 * 24 * time.Hour // 7天过期
	OfflinePushMax       = 100                // 每个用户最多保留条数
)

// OfflinePushQueue 用户不在线时暂存推送，连接建立后补发
type OfflinePushQueue struct {
	client redis.Cmdable
}

// NewOfflinePushQueue 创建离线推送队列
func NewOfflinePushQueue(client redis.Cmdable) *OfflinePushQueue {
	return &OfflinePushQueue{client: client}
}

func offlinePushKey(userID uint) string {
	return fmt.Sprintf("%s%d", OfflinePushKeyPrefix, userID)
}

// Push 添加离线推送（最新的在列表头部）
func (q *OfflinePushQueue) Push(ctx context.Context, userID uint, payload []byte) error {
	key := offlinePushKey(userID)

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, OfflinePushMax-1)
	pipe.Expire(ctx, key, OfflinePushTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("添加离线推送失败: %w", err)
	}

	return nil
}

// Drain 取出并清空用户的离线推送，按时间从旧到新返回
func (q *OfflinePushQueue) Drain(ctx context.Context, userID uint) ([][]byte, error) {
	key := offlinePushKey(userID)

	pipe := q.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, key, 0, OfflinePushMax-1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("获取离线推送失败: %w", err)
	}

	results := rangeCmd.Val()
	payloads := make([][]byte, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		payloads = append(payloads, []byte(results[i]))
	}

	return payloads, nil
}

// Count 获取用户离线推送数量
func (q *OfflinePushQueue) Count(ctx context.Context, userID uint) (int64, error) {
	count, err := q.client.LLen(ctx, offlinePushKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("获取离线推送数量失败: %w", err)
	}
	return count, nil
}
