package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"

	"social-connect/config"
	"social-connect/internal/throttle"
	redisPkg "social-connect/pkg/redis"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "config file path")
	yes := flag.Bool("yes", false, "skip confirmation prompt")
	withUsers := flag.Bool("users", false, "also clear the user table")
	keepCounters := flag.Bool("keep-counters", false, "do not clear throttle counters in Redis")
	flag.Parse()

	cfg := config.LoadConfigFrom(*configPath)

	db, err := sql.Open("mysql", buildDSN(cfg.Database))
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Database connection test failed: %v", err)
	}

	fmt.Println("Database connected successfully")
	fmt.Printf("Database: %s\n", cfg.Database.Database)

	// 子表在前
	tables := []string{"friend_request", "friendship", "user_block"}
	if *withUsers {
		tables = append(tables, "user")
	}

	if !*yes {
		fmt.Printf("\nWARNING: This operation will CLEAR ALL DATA in tables %v!\n", tables)
		if !*keepCounters {
			fmt.Printf("Throttle counters (%s*) in Redis will be cleared as well.\n", throttle.KeyPrefix)
		}
		fmt.Print("Type 'YES' to confirm: ")
		var confirm string
		fmt.Scanln(&confirm)
		if confirm != "YES" {
			fmt.Println("Operation cancelled")
			return
		}
	}

	_, _ = db.Exec("SET FOREIGN_KEY_CHECKS=0")

	for _, table := range tables {
		fmt.Printf("Clearing table %s... ", table)
		if _, err := db.Exec(fmt.Sprintf("DELETE FROM `%s`", table)); err != nil {
			fmt.Printf("Failed: %v\n", err)
		} else {
			fmt.Println("Success")
		}
	}

	fmt.Println("\nResetting auto-increment IDs...")
	for _, table := range tables {
		fmt.Printf("Resetting %s auto-increment... ", table)
		if _, err := db.Exec(fmt.Sprintf("ALTER TABLE `%s` AUTO_INCREMENT = 1", table)); err != nil {
			fmt.Printf("Failed: %v\n", err)
		} else {
			fmt.Println("Success")
		}
	}

	_, _ = db.Exec("SET FOREIGN_KEY_CHECKS=1")

	if !*keepCounters {
		ctx := context.Background()
		rdb, err := redisPkg.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		defer rdb.Close()

		n, err := clearCounters(ctx, rdb)
		if err != nil {
			log.Fatalf("Clearing throttle counters failed: %v", err)
		}
		fmt.Printf("\nCleared %d throttle counters\n", n)
	}

	fmt.Println("\nReset completed!")
	fmt.Println("Table structure preserved, auto-increment IDs reset to 1")
}

// buildDSN 与服务端使用相同的连接参数
func buildDSN(db config.DatabaseConfig) string {
	c := mysql.NewConfig()
	c.User = db.Username
	c.Passwd = db.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
	c.DBName = db.Database
	c.ParseTime = true
	c.Params = map[string]string{"charset": db.Charset}
	if db.Timeout > 0 {
		c.Timeout = db.Timeout
	}
	return c.FormatDSN()
}

// clearCounters 按批扫描删除限额计数键
func clearCounters(ctx context.Context, rdb redis.Cmdable) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := rdb.Scan(ctx, cursor, throttle.KeyPrefix+"*", 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
