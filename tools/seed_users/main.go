package main

import (
	"flag"
	"fmt"
	"log"

	"social-connect/config"
	"social-connect/internal/model"
	dbPkg "social-connect/pkg/db"
	"social-connect/pkg/jwt"

	"github.com/brianvoe/gofakeit/v7"
)

// 批量写入测试用户并打印对应的访问令牌，供压测与联调使用
func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "config file path")
	count := flag.Int("n", 10, "number of users to create")
	tier := flag.String("tier", "", "membership tier for created users (empty = default tier)")
	flag.Parse()

	if *count <= 0 {
		log.Fatalf("-n must be positive")
	}

	cfg := config.LoadConfigFrom(*configPath)

	db, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer dbPkg.Close(db)

	if err := dbPkg.AutoMigrate(db, &model.User{}); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	users := make([]model.User, 0, *count)
	for i := 0; i < *count; i++ {
		users = append(users, model.User{
			Email:          gofakeit.Email(),
			Name:           gofakeit.Name(),
			Avatar:         gofakeit.URL(),
			Bio:            gofakeit.Hobby(),
			MembershipTier: *tier,
		})
	}
	if err := db.CreateInBatches(&users, 100).Error; err != nil {
		log.Fatalf("Creating users failed: %v", err)
	}

	jwtSvc := jwt.NewJWTService(cfg.JWT)
	fmt.Println("id\tname\ttoken")
	for _, u := range users {
		token, err := jwtSvc.GenerateToken(u.ID, nil)
		if err != nil {
			log.Fatalf("Generating token for user %d failed: %v", u.ID, err)
		}
		fmt.Printf("%d\t%s\t%s\n", u.ID, u.Name, token)
	}

	fmt.Printf("\nCreated %d users (ids %d..%d)\n", len(users), users[0].ID, users[len(users)-1].ID)
}
