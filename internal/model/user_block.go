package model

import "time"

// UserBlock 屏蔽关系：BlockerID 屏蔽了 BlockedID

type UserBlock struct {
	ID        uint      `gorm:"primaryKey"`
	BlockerID uint      `gorm:"not null;uniqueIndex:idx_user_block_pair;comment:屏蔽者ID"`
	BlockedID uint      `gorm:"not null;uniqueIndex:idx_user_block_pair;index;comment:被屏蔽者ID"`
	CreatedAt time.Time `gorm:"comment:创建时间"`
}

func (UserBlock) TableName() string { return "user_block" }
