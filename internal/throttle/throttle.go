// Package throttle 基于Redis的固定窗口计数器，按 (用户, 功能) 统计使用次数
package throttle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-connect/pkg/apperr"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix 计数器key前缀，格式 throttle:<feature>:<userId>，已落库的计数依赖该格式
	KeyPrefix = "throttle:"

	// FallbackHours key不存在或没有过期时间时返回的剩余小时数（仅用于展示）
	FallbackHours = 24
)

// Throttle 计数器
// 计数只通过 INCR 修改；检查与递增之间存在窗口，并发请求可能同时通过检查，这里接受这种超额
type Throttle struct {
	rdb redis.Cmdable
}

// New 创建计数器
func New(rdb redis.Cmdable) *Throttle {
	return &Throttle{rdb: rdb}
}

// Key 返回计数器key
func Key(userID uint, feature string) string {
	return fmt.Sprintf("%s%s:%d", KeyPrefix, feature, userID)
}

// Count 当前计数，key不存在视为0
func (t *Throttle) Count(ctx context.Context, userID uint, feature string) (int64, error) {
	count, err := t.rdb.Get(ctx, Key(userID, feature)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取计数失败: %w", err)
	}
	return count, nil
}

// CheckLimit 当前计数小于 maxCount 时返回 true
func (t *Throttle) CheckLimit(ctx context.Context, userID uint, feature string, maxCount int64) (bool, error) {
	count, err := t.Count(ctx, userID, feature)
	if err != nil {
		return false, err
	}
	return count < maxCount, nil
}

// Increment 原子递增并返回新值
// INCR 与 EXPIRE NX 在同一个事务中提交：只有没有过期时间的key才会被设置，
// 正常情况下即新值为1时；意外遗留的无过期key也会在下一次递增时补上过期时间
func (t *Throttle) Increment(ctx context.Context, userID uint, feature string, ttl time.Duration) (int64, error) {
	key := Key(userID, feature)

	pipe := t.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("增加计数失败: %w", err)
	}

	return incr.Val(), nil
}

// refundScript 计数大于0时减一，不会产生负数，也不会创建key
var refundScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

// Refund 退还一次计数，用于已扣减但最终没有产生记录的操作
func (t *Throttle) Refund(ctx context.Context, userID uint, feature string) (int64, error) {
	count, err := refundScript.Run(ctx, t.rdb, []string{Key(userID, feature)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("退还计数失败: %w", err)
	}
	return count, nil
}

// GetRemainingHours 窗口剩余小时数（向上取整）
// key不存在或没有过期时间时返回 FallbackHours
func (t *Throttle) GetRemainingHours(ctx context.Context, userID uint, feature string) (int, error) {
	ttl, err := t.rdb.TTL(ctx, Key(userID, feature)).Result()
	if err != nil {
		return 0, fmt.Errorf("读取计数过期时间失败: %w", err)
	}

	// go-redis 对 -1（无过期）和 -2（不存在）返回负值
	if ttl <= 0 {
		return FallbackHours, nil
	}

	hours := int(ttl / time.Hour)
	if ttl%time.Hour != 0 {
		hours++
	}
	return hours, nil
}

// CheckAndIncrement 未超限时递增并返回新值；超限时返回 PaymentRequired 且不递增
func (t *Throttle) CheckAndIncrement(ctx context.Context, userID uint, feature string, limit int64, ttl time.Duration) (int64, error) {
	ok, err := t.CheckLimit(ctx, userID, feature, limit)
	if err != nil {
		return 0, err
	}

	if !ok {
		hours, err := t.GetRemainingHours(ctx, userID, feature)
		if err != nil {
			return 0, err
		}
		return 0, apperr.Newf(apperr.PaymentRequired,
			"daily limit reached for %s, try again in %d hours", feature, hours).
			With("remainingHours", hours).
			With("limit", limit)
	}

	return t.Increment(ctx, userID, feature, ttl)
}

// Reset 删除计数器，提前结束当前窗口
func (t *Throttle) Reset(ctx context.Context, userID uint, feature string) error {
	if err := t.rdb.Del(ctx, Key(userID, feature)).Err(); err != nil {
		return fmt.Errorf("重置计数失败: %w", err)
	}
	return nil
}
