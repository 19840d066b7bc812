package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath 默认配置文件路径
const DefaultConfigPath = "config/config.yaml"

// Config 应用配置结构体
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Throttle  ThrottleConfig  `yaml:"throttle"`
	HTTPLimit HTTPLimitConfig `yaml:"httpLimit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port         string        `yaml:"port"`         // 服务器监听端口
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 读取超时时间
	WriteTimeout time.Duration `yaml:"writeTimeout"` // 写入超时时间
	IdleTimeout  time.Duration `yaml:"idleTimeout"`  // 空闲超时时间
	AdminToken   string        `yaml:"adminToken"`   // 维护接口令牌，为空时不开放维护接口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string          `yaml:"driver"`   // 数据库驱动类型
	Host     string          `yaml:"host"`     // 数据库主机地址
	Port     int             `yaml:"port"`     // 数据库端口
	Username string          `yaml:"username"` // 数据库用户名
	Password string          `yaml:"password"` // 数据库密码
	Database string          `yaml:"database"` // 数据库名称
	Charset  string          `yaml:"charset"`  // 字符集
	MaxIdle  int             `yaml:"maxIdle"`  // 最大空闲连接数
	MaxOpen  int             `yaml:"maxOpen"`  // 最大打开连接数
	Timeout  time.Duration   `yaml:"timeout"`  // 连接/读写超时
	Replicas []ReplicaConfig `yaml:"replicas"` // 只读副本（列表查询走副本）
}

// ReplicaConfig 只读副本配置，未填写的字段沿用主库
type ReplicaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret     string        `yaml:"secret"`     // JWT密钥
	ExpireTime time.Duration `yaml:"expireTime"` // JWT过期时间
	Issuer     string        `yaml:"issuer"`     // JWT签发者
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`      // 日志级别
	Filename   string `yaml:"filename"`   // 日志文件名
	MaxSize    int    `yaml:"maxSize"`    // 单个日志文件最大大小(MB)
	MaxBackups int    `yaml:"maxBackups"` // 最大备份文件数
	MaxAge     int    `yaml:"maxAge"`     // 最大保存天数
	Compress   bool   `yaml:"compress"`   // 是否压缩
	Console    bool   `yaml:"console"`    // 是否同时输出到标准输出
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string        `yaml:"host"`     // Redis主机地址
	Port     int           `yaml:"port"`     // Redis端口
	Password string        `yaml:"password"` // Redis密码
	DB       int           `yaml:"db"`       // Redis数据库编号
	Timeout  time.Duration `yaml:"timeout"`  // 读写超时
}

// WebSocketConfig WebSocket 心跳配置
type WebSocketConfig struct {
	PingInterval time.Duration `yaml:"pingInterval"` // 发送ping的间隔
	ReadTimeout  time.Duration `yaml:"readTimeout"`  // 读超时时间（未收到任何数据则断开）
}

// ThrottleConfig 按会员等级的每日功能限额
// Tiers: 等级 -> 功能 -> 上限；上限为 ~ (null) 表示不限
type ThrottleConfig struct {
	Window      time.Duration                `yaml:"window"`      // 计数窗口
	DefaultTier string                       `yaml:"defaultTier"` // 用户未设置等级时使用
	Tiers       map[string]map[string]*int64 `yaml:"tiers"`
}

// HTTPLimitConfig 按客户端IP的请求速率限制
type HTTPLimitConfig struct {
	RPS   float64 `yaml:"rps"`   // 每秒请求数，<=0 表示关闭
	Burst int     `yaml:"burst"` // 突发容量
}

// LoadConfig 加载配置（混合方式：YAML文件 + .env + 环境变量）
func LoadConfig() *Config {
	return LoadConfigFrom(DefaultConfigPath)
}

// LoadConfigFrom 从指定路径加载配置
func LoadConfigFrom(filePath string) *Config {
	// 1. 首先从YAML文件加载默认配置
	config := loadFromYAML(filePath)

	// 2. .env 文件存在时载入（不覆盖已存在的环境变量）
	_ = godotenv.Load()

	// 3. 用环境变量覆盖配置（环境变量优先级更高）
	overrideWithEnvVars(config)

	return config
}

// loadFromYAML 从YAML文件加载配置
func loadFromYAML(filePath string) *Config {
	data, err := os.ReadFile(filePath)
	if err != nil {
		// 如果文件不存在，返回默认配置
		return getDefaultConfig()
	}

	// 以默认值为底，YAML中出现的字段覆盖默认值
	config := getDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return getDefaultConfig()
	}

	return config
}

// overrideWithEnvVars 用环境变量覆盖配置
func overrideWithEnvVars(config *Config) {
	// 服务器配置
	if port := getEnv("SERVER_PORT", ""); port != "" {
		config.Server.Port = port
	}
	if timeout := getEnvDuration("SERVER_READ_TIMEOUT", 0); timeout > 0 {
		config.Server.ReadTimeout = timeout
	}
	if timeout := getEnvDuration("SERVER_WRITE_TIMEOUT", 0); timeout > 0 {
		config.Server.WriteTimeout = timeout
	}
	if token := getEnv("ADMIN_TOKEN", ""); token != "" {
		config.Server.AdminToken = token
	}

	// 数据库配置
	if host := getEnv("DB_HOST", ""); host != "" {
		config.Database.Host = host
	}
	if port := getEnvInt("DB_PORT", 0); port > 0 {
		config.Database.Port = port
	}
	if username := getEnv("DB_USERNAME", ""); username != "" {
		config.Database.Username = username
	}
	if password := getEnv("DB_PASSWORD", ""); password != "" {
		config.Database.Password = password
	}
	if database := getEnv("DB_DATABASE", ""); database != "" {
		config.Database.Database = database
	}
	if maxIdle := getEnvInt("DB_MAX_IDLE", 0); maxIdle > 0 {
		config.Database.MaxIdle = maxIdle
	}
	if maxOpen := getEnvInt("DB_MAX_OPEN", 0); maxOpen > 0 {
		config.Database.MaxOpen = maxOpen
	}

	// JWT配置
	if secret := getEnv("JWT_SECRET", ""); secret != "" {
		config.JWT.Secret = secret
	}
	if issuer := getEnv("JWT_ISSUER", ""); issuer != "" {
		config.JWT.Issuer = issuer
	}

	// 日志配置
	if level := getEnv("LOG_LEVEL", ""); level != "" {
		config.Log.Level = level
	}
	if filename := getEnv("LOG_FILENAME", ""); filename != "" {
		config.Log.Filename = filename
	}
	config.Log.Console = getEnvBool("LOG_CONSOLE", config.Log.Console)

	// Redis配置
	if host := getEnv("REDIS_HOST", ""); host != "" {
		config.Redis.Host = host
	}
	if port := getEnvInt("REDIS_PORT", 0); port > 0 {
		config.Redis.Port = port
	}
	if password := getEnv("REDIS_PASSWORD", ""); password != "" {
		config.Redis.Password = password
	}
	if db := getEnvInt("REDIS_DB", -1); db >= 0 {
		config.Redis.DB = db
	}

	// 限额配置
	if window := getEnvDuration("THROTTLE_WINDOW", 0); window > 0 {
		config.Throttle.Window = window
	}
	if tier := getEnv("THROTTLE_DEFAULT_TIER", ""); tier != "" {
		config.Throttle.DefaultTier = tier
	}
}

// getDefaultConfig 获取默认配置
func getDefaultConfig() *Config {
	freeFriendRequests := int64(5)
	plusFriendRequests := int64(50)

	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			Username: "connect_user",
			Password: "connect_pass",
			Database: "social_connect",
			Charset:  "utf8mb4",
			MaxIdle:  10,
			MaxOpen:  100,
			Timeout:  5 * time.Second,
		},
		JWT: JWTConfig{
			Secret:     "your-secret-key",
			ExpireTime: 24 * time.Hour,
			Issuer:     "social-connect",
		},
		Log: LogConfig{
			Level:      "info",
			Filename:   "logs/app.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Redis: RedisConfig{
			Host:    "localhost",
			Port:    6379,
			DB:      0,
			Timeout: 3 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  90 * time.Second,
		},
		Throttle: ThrottleConfig{
			Window:      24 * time.Hour,
			DefaultTier: "free",
			Tiers: map[string]map[string]*int64{
				"free": {"friend_request": &freeFriendRequests},
				"plus": {"friend_request": &plusFriendRequests},
				"vip":  {"friend_request": nil},
			},
		},
		HTTPLimit: HTTPLimitConfig{
			RPS:   20,
			Burst: 40,
		},
	}
}

// 辅助函数：获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// 辅助函数：获取整数环境变量
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// 辅助函数：获取布尔环境变量
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// 辅助函数：获取时间环境变量
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
