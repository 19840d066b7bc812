package model

import "time"

// Friendship 已确认的好友关系（对称边）
// User1ID 始终小于 User2ID，唯一索引保证一对用户只有一条边

type Friendship struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	User1ID   uint      `gorm:"not null;uniqueIndex:idx_friendship_pair;comment:较小的用户ID" json:"user1_id"`
	User2ID   uint      `gorm:"not null;uniqueIndex:idx_friendship_pair;index;comment:较大的用户ID" json:"user2_id"`
	CreatedAt time.Time `gorm:"comment:创建时间" json:"created_at"`
}

func (Friendship) TableName() string { return "friendship" }

// NewFriendship 以规范顺序构造好友关系
func NewFriendship(a, b uint) *Friendship {
	if a > b {
		a, b = b, a
	}
	return &Friendship{User1ID: a, User2ID: b}
}

// Peer 返回关系中另一方的ID
func (f *Friendship) Peer(userID uint) uint {
	if f.User1ID == userID {
		return f.User2ID
	}
	return f.User1ID
}
