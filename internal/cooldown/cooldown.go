// Package cooldown 计算被拒绝的好友请求何时可以重新发送
package cooldown

import "time"

const (
	// Window 拒绝后的冷却期
	Window = 7 * 24 * time.Hour

	day = 24 * time.Hour
)

// CanResend 距离上次状态变更严格超过冷却期才允许重新发送
func CanResend(lastRequestDate, now time.Time) bool {
	return now.Sub(lastRequestDate) > Window
}

// RemainingDays 冷却期剩余天数，不足一天按一天计，已过期返回0
func RemainingDays(lastRequestDate, now time.Time) int {
	rem := Window - now.Sub(lastRequestDate)
	if rem <= 0 {
		return 0
	}
	days := int(rem / day)
	if rem%day != 0 {
		days++
	}
	return days
}
