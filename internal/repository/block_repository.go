package repository

import (
	"context"

	"social-connect/internal/model"
	dbPkg "social-connect/pkg/db"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlockRepository 屏蔽关系数据仓储
type BlockRepository struct {
	db *gorm.DB
}

// NewBlockRepository 创建BlockRepository实例
func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{db: db}
}

// Block 屏蔽用户，重复屏蔽不报错
func (r *BlockRepository) Block(ctx context.Context, blockerID, blockedID uint) error {
	block := &model.UserBlock{BlockerID: blockerID, BlockedID: blockedID}
	err := dbPkg.Primary(ctx, r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(block).Error
	return translate(err)
}

// Unblock 取消屏蔽
func (r *BlockRepository) Unblock(ctx context.Context, blockerID, blockedID uint) error {
	err := dbPkg.Primary(ctx, r.db).
		Where("blocker_id = ? AND blocked_id = ?", blockerID, blockedID).
		Delete(&model.UserBlock{}).Error
	return translate(err)
}

// BlockedIDsOf 返回与用户存在屏蔽关系的用户ID（双向：用户屏蔽的人和屏蔽了用户的人）
func (r *BlockRepository) BlockedIDsOf(ctx context.Context, userID uint) (map[uint]struct{}, error) {
	var blocks []model.UserBlock
	err := dbPkg.Replica(ctx, r.db).
		Where("blocker_id = ? OR blocked_id = ?", userID, userID).
		Find(&blocks).Error
	if err != nil {
		return nil, translate(err)
	}

	ids := make(map[uint]struct{}, len(blocks))
	for _, b := range blocks {
		if b.BlockerID == userID {
			ids[b.BlockedID] = struct{}{}
		} else {
			ids[b.BlockerID] = struct{}{}
		}
	}
	return ids, nil
}
