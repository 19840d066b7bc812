package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-connect/config"
	"social-connect/internal/handler"
	"social-connect/internal/membership"
	"social-connect/internal/model"
	"social-connect/internal/repository"
	"social-connect/internal/service"
	"social-connect/internal/throttle"
	dbPkg "social-connect/pkg/db"
	"social-connect/pkg/jwt"
	"social-connect/pkg/logger"
	"social-connect/pkg/metrics"
	"social-connect/pkg/ratelimit"
	redisPkg "social-connect/pkg/redis"
	"social-connect/pkg/response"
	"social-connect/pkg/websocket"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化日志系统
	log := logger.InitLogger(cfg.Log)
	defer log.Sync()

	log.Info("=== 好友关系服务启动 ===")
	log.Info("服务器配置信息",
		zap.String("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.Int("database_port", cfg.Database.Port),
		zap.String("database_name", cfg.Database.Database),
		zap.Int("database_replicas", len(cfg.Database.Replicas)),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Duration("throttle_window", cfg.Throttle.Window),
		zap.String("throttle_default_tier", cfg.Throttle.DefaultTier),
		zap.Bool("admin_enabled", cfg.Server.AdminToken != ""),
		zap.String("log_level", cfg.Log.Level),
	)

	// 3. 初始化数据库连接
	db, err := dbPkg.InitDB(cfg.Database)
	if err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}
	defer func() {
		if err := dbPkg.Close(db); err != nil {
			log.Error("关闭数据库连接失败", zap.Error(err))
		}
	}()
	log.Info("数据库连接成功")

	// 3.1 自动迁移表结构
	if err := dbPkg.AutoMigrate(db, &model.User{}, &model.FriendRequest{}, &model.Friendship{}, &model.UserBlock{}); err != nil {
		log.Fatal("自动迁移失败", zap.Error(err))
	}
	log.Info("自动迁移完成")

	// 3.2 初始化Redis
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rdb, err := redisPkg.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Redis连接失败", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("关闭Redis连接失败", zap.Error(err))
		}
	}()
	log.Info("Redis连接成功")

	// 3.3 初始化业务服务
	jwtSvc := jwt.NewJWTService(cfg.JWT)
	userRepo := repository.NewUserRepository(db)
	blockRepo := repository.NewBlockRepository(db)

	wsManager := websocket.NewManager(redisPkg.NewOfflinePushQueue(rdb))
	limiter := throttle.New(rdb)
	limits := membership.NewResolver(userRepo, cfg.Throttle)

	connectionSvc := service.NewConnectionService(
		service.NewConnectionStore(db),
		userRepo,
		blockRepo,
		service.NewWebSocketNotifier(wsManager),
		service.WithQuota(service.Quota{
			Throttle: limiter,
			Limits:   limits,
			Window:   cfg.Throttle.Window,
		}),
	)

	handlers := handler.Handlers{
		Friends:  handler.NewFriendHandler(connectionSvc),
		Blocks:   handler.NewBlockHandler(blockRepo, userRepo),
		Throttle: handler.NewThrottleHandler(limiter, limits, cfg.Throttle.Window),
		Users:    handler.NewUserHandler(userRepo, wsManager),
	}

	// 4. 设置Gin模式
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 5. 创建Gin路由
	router := gin.New()
	router.Use(logger.RequestLogger())
	router.Use(logger.ErrorLoggerMiddleware())
	router.Use(metrics.GinMiddleware())

	if cfg.HTTPLimit.RPS > 0 {
		store := ratelimit.NewStore(cfg.HTTPLimit.RPS, cfg.HTTPLimit.Burst)
		store.StartJanitor(ctx)
		router.Use(ratelimit.Middleware(store))
	}

	// 6. 设置基础路由
	setupBasicRoutes(router, db, rdb, wsManager)

	// 6.1 业务路由
	handler.RegisterRoutes(router, handlers, jwtSvc.AuthMiddleware(), cfg.Server.AdminToken)

	// WebSocket推送通道
	router.GET("/ws", websocket.Handler(wsManager, jwtSvc, cfg.WebSocket))

	// 7. 创建HTTP服务器
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 8. 启动HTTP服务器
	go func() {
		log.Info("HTTP服务器启动", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP服务器启动失败", zap.Error(err))
		}
	}()

	// 9. 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务器...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP服务器关闭失败", zap.Error(err))
	}

	log.Info("服务器已安全关闭")
}

// setupBasicRoutes 健康检查、指标与在线统计
func setupBasicRoutes(router *gin.Engine, db *gorm.DB, rdb redis.Cmdable, ws *websocket.Manager) {
	// 完整url为：http://localhost:8080/health
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		dbStatus, redisStatus := "ok", "ok"
		if err := dbPkg.HealthCheck(ctx, db); err != nil {
			dbStatus, status = "down", "degraded"
		}
		if err := redisPkg.HealthCheck(ctx, rdb); err != nil {
			redisStatus, status = "down", "degraded"
		}
		response.Success(c, gin.H{
			"status":       status,
			"database":     dbStatus,
			"redis":        redisStatus,
			"online_users": ws.OnlineCount(),
			"time":         time.Now().Format(time.RFC3339),
		})
	})

	// 完整url为：http://localhost:8080/metrics
	router.GET("/metrics", metrics.Handler())
}
