// Package testutil 测试用的内存数据库与Redis
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"social-connect/internal/model"
	dbPkg "social-connect/pkg/db"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB 创建独立的内存SQLite数据库并完成迁移
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	// 每个测试一个命名内存库，单连接保证事务内外看到同一份数据
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), dbPkg.Options(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, dbPkg.AutoMigrate(db,
		&model.User{},
		&model.FriendRequest{},
		&model.Friendship{},
		&model.UserBlock{},
	))
	return db
}

// NewRedis 创建miniredis及其客户端
func NewRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

// CreateUsers 写入 n 个随机用户
func CreateUsers(t *testing.T, db *gorm.DB, n int, tier string) []model.User {
	t.Helper()
	users := make([]model.User, 0, n)
	for i := 0; i < n; i++ {
		users = append(users, model.User{
			Email:          gofakeit.Email(),
			Name:           gofakeit.Name(),
			Avatar:         gofakeit.URL(),
			Bio:            gofakeit.Hobby(),
			MembershipTier: tier,
		})
	}
	require.NoError(t, db.Create(&users).Error)
	return users
}
