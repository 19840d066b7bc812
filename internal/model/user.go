package model

import (
	"time"

	"gorm.io/gorm"
)

// User 用户模型
// 资料的增删改由用户服务负责，本服务只读取公开字段与会员等级
// MembershipTier 为空时按配置中的默认等级计算限额

type User struct {
	ID             uint           `gorm:"primaryKey"`
	Email          string         `gorm:"type:varchar(128);uniqueIndex;comment:邮箱"`
	Name           string         `gorm:"type:varchar(64);not null;comment:显示名称"`
	Avatar         string         `gorm:"type:varchar(255);comment:头像URL"`
	Bio            string         `gorm:"type:varchar(255);comment:个人简介"`
	MembershipTier string         `gorm:"type:varchar(32);comment:会员等级"`
	CreatedAt      time.Time      `gorm:"comment:创建时间"`
	UpdatedAt      time.Time      `gorm:"comment:更新时间"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

// TableName 指定表名
func (User) TableName() string { return "user" }
