package repository

import (
	"context"
	"time"

	"social-connect/internal/model"
	dbPkg "social-connect/pkg/db"

	"gorm.io/gorm"
)

// FriendRequestRepository 好友请求数据仓储
type FriendRequestRepository struct {
	db *gorm.DB
}

// NewFriendRequestRepository 创建FriendRequestRepository实例
func NewFriendRequestRepository(db *gorm.DB) *FriendRequestRepository {
	return &FriendRequestRepository{db: db}
}

// Create 创建好友请求，同一对用户已有记录时返回 ErrDuplicate
func (r *FriendRequestRepository) Create(ctx context.Context, req *model.FriendRequest) error {
	return translate(dbPkg.Primary(ctx, r.db).Create(req).Error)
}

// GetByID 根据ID获取好友请求
func (r *FriendRequestRepository) GetByID(ctx context.Context, id uint) (*model.FriendRequest, error) {
	var req model.FriendRequest
	if err := dbPkg.Primary(ctx, r.db).First(&req, id).Error; err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// FindBetween 查找两个用户之间的请求记录（不分方向）
func (r *FriendRequestRepository) FindBetween(ctx context.Context, a, b uint) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := dbPkg.Primary(ctx, r.db).
		Where("pair_key = ?", model.PairKey(a, b)).
		First(&req).Error
	if err != nil {
		return nil, translate(err)
	}
	return &req, nil
}

// Transition 条件更新状态：仅当当前状态为 from 时改为 to，并刷新 last_request_date
// 没有命中任何行（记录不存在或状态已被并发修改）时返回 ErrNotFound
func (r *FriendRequestRepository) Transition(ctx context.Context, id uint, from, to model.FriendRequestStatus, at time.Time) error {
	result := dbPkg.Primary(ctx, r.db).Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":            to,
			"last_request_date": at,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Resend 冷却期结束后原地重新发送：REJECTED -> PENDING，更新附言和时间
func (r *FriendRequestRepository) Resend(ctx context.Context, id uint, message string, at time.Time) error {
	result := dbPkg.Primary(ctx, r.db).Model(&model.FriendRequest{}).
		Where("id = ? AND status = ?", id, model.FriendRequestRejected).
		Updates(map[string]interface{}{
			"status":            model.FriendRequestPending,
			"message":           message,
			"last_request_date": at,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete 删除指定请求
func (r *FriendRequestRepository) Delete(ctx context.Context, id uint) error {
	result := dbPkg.Primary(ctx, r.db).Delete(&model.FriendRequest{}, id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBetween 删除两个用户之间的所有请求记录（双向，任意状态）
func (r *FriendRequestRepository) DeleteBetween(ctx context.Context, a, b uint) (int64, error) {
	result := dbPkg.Primary(ctx, r.db).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Delete(&model.FriendRequest{})
	return result.RowsAffected, translate(result.Error)
}

// ListIncomingPending 获取发给用户的待处理请求
func (r *FriendRequestRepository) ListIncomingPending(ctx context.Context, receiverID uint) ([]model.FriendRequest, error) {
	var requests []model.FriendRequest
	err := dbPkg.Replica(ctx, r.db).
		Where("receiver_id = ? AND status = ?", receiverID, model.FriendRequestPending).
		Order("last_request_date DESC").
		Find(&requests).Error
	return requests, translate(err)
}

// ListSent 获取用户发出的指定状态的请求，按最近变更时间倒序
func (r *FriendRequestRepository) ListSent(ctx context.Context, senderID uint, statuses ...model.FriendRequestStatus) ([]model.FriendRequest, error) {
	var requests []model.FriendRequest
	err := dbPkg.Replica(ctx, r.db).
		Where("sender_id = ? AND status IN ?", senderID, statuses).
		Order("last_request_date DESC").
		Find(&requests).Error
	return requests, translate(err)
}
