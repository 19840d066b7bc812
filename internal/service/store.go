package service

import (
	"context"
	"time"

	"social-connect/internal/model"
	"social-connect/internal/repository"

	"gorm.io/gorm"
)

// RequestLedger 好友请求存储，同一对用户最多一条记录
type RequestLedger interface {
	Create(ctx context.Context, req *model.FriendRequest) error
	GetByID(ctx context.Context, id uint) (*model.FriendRequest, error)
	FindBetween(ctx context.Context, a, b uint) (*model.FriendRequest, error)
	Transition(ctx context.Context, id uint, from, to model.FriendRequestStatus, at time.Time) error
	Resend(ctx context.Context, id uint, message string, at time.Time) error
	Delete(ctx context.Context, id uint) error
	DeleteBetween(ctx context.Context, a, b uint) (int64, error)
	ListIncomingPending(ctx context.Context, receiverID uint) ([]model.FriendRequest, error)
	ListSent(ctx context.Context, senderID uint, statuses ...model.FriendRequestStatus) ([]model.FriendRequest, error)
}

// FriendshipGraph 好友关系存储
type FriendshipGraph interface {
	Exists(ctx context.Context, a, b uint) (bool, error)
	Create(ctx context.Context, a, b uint) (*model.Friendship, error)
	DeleteBetween(ctx context.Context, a, b uint) (int64, error)
	ListByUser(ctx context.Context, userID uint) ([]model.Friendship, error)
}

// ConnectionStore 把请求与好友关系放在同一个数据库事务边界内
type ConnectionStore interface {
	Requests() RequestLedger
	Friendships() FriendshipGraph
	// Transaction 在一个事务中执行 fn，fn 返回错误时回滚
	Transaction(ctx context.Context, fn func(tx ConnectionStore) error) error
}

// GormStore 基于GORM的 ConnectionStore
type GormStore struct {
	db          *gorm.DB
	requests    *repository.FriendRequestRepository
	friendships *repository.FriendshipRepository
}

// NewConnectionStore 创建GormStore
func NewConnectionStore(db *gorm.DB) *GormStore {
	return &GormStore{
		db:          db,
		requests:    repository.NewFriendRequestRepository(db),
		friendships: repository.NewFriendshipRepository(db),
	}
}

func (s *GormStore) Requests() RequestLedger { return s.requests }

func (s *GormStore) Friendships() FriendshipGraph { return s.friendships }

func (s *GormStore) Transaction(ctx context.Context, fn func(tx ConnectionStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewConnectionStore(tx))
	})
}
