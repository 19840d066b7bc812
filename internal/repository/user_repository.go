package repository

import (
	"context"

	"social-connect/internal/model"
	dbPkg "social-connect/pkg/db"

	"gorm.io/gorm"
)

type UserRepository struct {
	orm *gorm.DB
}

func NewUserRepository(orm *gorm.DB) *UserRepository {
	return &UserRepository{orm: orm}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return translate(r.orm.WithContext(ctx).Create(user).Error)
}

func (r *UserRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var count int64
	if err := dbPkg.Replica(ctx, r.orm).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, translate(err)
	}
	return count > 0, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := dbPkg.Replica(ctx, r.orm).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := dbPkg.Replica(ctx, r.orm).Where("id IN ?", ids).Find(&users).Error
	return users, translate(err)
}

// MembershipTier 获取用户会员等级，未设置时返回空字符串
func (r *UserRepository) MembershipTier(ctx context.Context, id uint) (string, error) {
	var u model.User
	err := dbPkg.Replica(ctx, r.orm).Select("id", "membership_tier").First(&u, id).Error
	if err != nil {
		return "", translate(err)
	}
	return u.MembershipTier, nil
}
