package repository

import (
	"context"

	"social-connect/internal/model"
	dbPkg "social-connect/pkg/db"

	"gorm.io/gorm"
)

// FriendshipRepository 好友关系数据仓储
type FriendshipRepository struct {
	db *gorm.DB
}

// NewFriendshipRepository 创建FriendshipRepository实例
func NewFriendshipRepository(db *gorm.DB) *FriendshipRepository {
	return &FriendshipRepository{db: db}
}

// Exists 判断两个用户之间是否存在好友关系
func (r *FriendshipRepository) Exists(ctx context.Context, a, b uint) (bool, error) {
	edge := model.NewFriendship(a, b)
	var count int64
	err := dbPkg.Primary(ctx, r.db).Model(&model.Friendship{}).
		Where("user1_id = ? AND user2_id = ?", edge.User1ID, edge.User2ID).
		Count(&count).Error
	if err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

// Create 创建好友关系，已存在时返回 ErrDuplicate
func (r *FriendshipRepository) Create(ctx context.Context, a, b uint) (*model.Friendship, error) {
	edge := model.NewFriendship(a, b)
	if err := dbPkg.Primary(ctx, r.db).Create(edge).Error; err != nil {
		return nil, translate(err)
	}
	return edge, nil
}

// DeleteBetween 删除两个用户之间的好友关系，返回删除的行数
func (r *FriendshipRepository) DeleteBetween(ctx context.Context, a, b uint) (int64, error) {
	edge := model.NewFriendship(a, b)
	result := dbPkg.Primary(ctx, r.db).
		Where("user1_id = ? AND user2_id = ?", edge.User1ID, edge.User2ID).
		Delete(&model.Friendship{})
	return result.RowsAffected, translate(result.Error)
}

// ListByUser 获取与用户相关的所有好友关系
func (r *FriendshipRepository) ListByUser(ctx context.Context, userID uint) ([]model.Friendship, error) {
	var edges []model.Friendship
	err := dbPkg.Replica(ctx, r.db).
		Where("user1_id = ? OR user2_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&edges).Error
	return edges, translate(err)
}
