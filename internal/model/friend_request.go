package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// FriendRequestStatus 好友请求状态
type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "PENDING"
	FriendRequestAccepted FriendRequestStatus = "ACCEPTED"
	FriendRequestRejected FriendRequestStatus = "REJECTED"
)

// FriendRequest 好友请求记录
// 同一对用户（不分方向）最多一条记录：PairKey 为 "较小ID:较大ID"，带唯一索引。
// 接受/拒绝/重新发送都原地修改该记录，只有解除好友关系时才删除。
// LastRequestDate 记录最近一次状态变更的时间，拒绝冷却期从这里开始计算。
// 不使用软删除，否则被删除的行仍会占用唯一索引。
type FriendRequest struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	SenderID        uint                `gorm:"not null;uniqueIndex:idx_friend_request_sender_receiver;comment:发送者ID" json:"sender_id"`
	ReceiverID      uint                `gorm:"not null;uniqueIndex:idx_friend_request_sender_receiver;index;comment:接收者ID" json:"receiver_id"`
	PairKey         string              `gorm:"type:varchar(48);not null;uniqueIndex;comment:无序用户对" json:"-"`
	Message         string              `gorm:"type:varchar(500);comment:附言" json:"message"`
	Status          FriendRequestStatus `gorm:"type:varchar(16);not null;default:'PENDING';index;comment:请求状态" json:"status"`
	LastRequestDate time.Time           `gorm:"not null;index;comment:最近状态变更时间" json:"last_request_date"`
	CreatedAt       time.Time           `gorm:"comment:创建时间" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"comment:更新时间" json:"updated_at"`
}

func (FriendRequest) TableName() string { return "friend_request" }

// BeforeCreate 写入无序用户对
func (r *FriendRequest) BeforeCreate(tx *gorm.DB) error {
	r.PairKey = PairKey(r.SenderID, r.ReceiverID)
	return nil
}

// PairKey 返回两个用户的无序键
func PairKey(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}
