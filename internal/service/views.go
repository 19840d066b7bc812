package service

import "time"

// ConnectionStatus 两个用户之间的关系状态（只读视图，不落库）
type ConnectionStatus string

const (
	StatusSOAF      ConnectionStatus = "SOAF" // 已是好友
	StatusNotFriend ConnectionStatus = "NOT_FRIEND"
	StatusPending   ConnectionStatus = "PENDING"
	StatusRejected  ConnectionStatus = "REJECTED"
)

// FriendshipStatusView 关系状态
type FriendshipStatusView struct {
	Status        ConnectionStatus `json:"status"`
	RequestID     uint             `json:"request_id,omitempty"`
	SenderID      uint             `json:"sender_id,omitempty"`
	RemainingDays *int             `json:"remaining_days,omitempty"`
}

// IncomingRequestView 收到的好友请求
type IncomingRequestView struct {
	ID              uint      `json:"id"`
	SenderID        uint      `json:"sender_id"`
	SenderName      string    `json:"sender_name"`
	SenderAvatar    string    `json:"sender_avatar,omitempty"`
	Message         string    `json:"message"`
	LastRequestDate time.Time `json:"last_request_date"`
}

// SentRequestView 发出的好友请求，被拒绝的带冷却剩余天数
type SentRequestView struct {
	ID              uint      `json:"id"`
	ReceiverID      uint      `json:"receiver_id"`
	ReceiverName    string    `json:"receiver_name"`
	Message         string    `json:"message"`
	Status          string    `json:"status"`
	LastRequestDate time.Time `json:"last_request_date"`
	RemainingDays   *int      `json:"remaining_days,omitempty"`
}

// FriendView 好友的公开资料
type FriendView struct {
	UserID uint      `json:"user_id"`
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
	Bio    string    `json:"bio,omitempty"`
	Since  time.Time `json:"since"`
}
