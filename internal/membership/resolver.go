// Package membership 根据用户会员等级解析功能限额
package membership

import (
	"context"
	"fmt"

	"social-connect/config"
)

// TierLookup 查询用户会员等级
type TierLookup interface {
	MembershipTier(ctx context.Context, userID uint) (string, error)
}

// Resolver 会员等级限额解析器
type Resolver struct {
	tiers TierLookup
	cfg   config.ThrottleConfig
}

// NewResolver 创建解析器
func NewResolver(tiers TierLookup, cfg config.ThrottleConfig) *Resolver {
	return &Resolver{tiers: tiers, cfg: cfg}
}

// Limit 返回用户在某功能上的上限
// limited 为 false 表示不限：等级配置了 null 上限，或该等级没有配置这个功能
func (r *Resolver) Limit(ctx context.Context, userID uint, feature string) (int64, bool, error) {
	tier, err := r.tiers.MembershipTier(ctx, userID)
	if err != nil {
		return 0, false, fmt.Errorf("获取会员等级失败: %w", err)
	}
	if tier == "" {
		tier = r.cfg.DefaultTier
	}

	caps, ok := r.cfg.Tiers[tier]
	if !ok {
		// 未知等级按默认等级处理
		caps = r.cfg.Tiers[r.cfg.DefaultTier]
	}

	limit, ok := caps[feature]
	if !ok || limit == nil {
		return 0, false, nil
	}
	return *limit, true, nil
}

