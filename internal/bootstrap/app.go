package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "github.com/wi1ex/mafia-sub000/internal/handler/http"
	wsHandler "github.com/wi1ex/mafia-sub000/internal/handler/websocket"
	"github.com/wi1ex/mafia-sub000/internal/hub"
	gormpersistence "github.com/wi1ex/mafia-sub000/internal/infra/persistence/gorm"
	redispresence "github.com/wi1ex/mafia-sub000/internal/infra/presence/redis"
	"github.com/wi1ex/mafia-sub000/internal/infra/setup"
	"github.com/wi1ex/mafia-sub000/internal/media"
	"github.com/wi1ex/mafia-sub000/internal/middleware"
	"github.com/wi1ex/mafia-sub000/internal/service"
	"github.com/wi1ex/mafia-sub000/internal/tasks"
	"github.com/wi1ex/mafia-sub000/internal/worker"
)

// Config 存储从环境变量或 .env 文件加载的配置。
type Config struct {
	DBUser        string
	DBPassword    string
	DBHost        string
	DBPort        string
	DBName        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string

	JWTSecret      string
	MediaAPIKey    string
	MediaAPISecret string
	MediaTokenTTL  time.Duration

	ServerPort      string
	LogLevel        string
	AppEnv          string
	CORSOrigins     []string
	RateLimitMax    int
	RateLimitWindow time.Duration

	// 空房间从 empty_since 到回收任务执行之间的延迟
	RoomEmptyTTL time.Duration
}

// LoadConfig 从环境变量加载配置。缺少必需项时返回错误。
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // 允许只使用环境变量

	cfg := &Config{
		DBUser:         os.Getenv("DB_USER"),
		DBPassword:     os.Getenv("DB_PASSWORD"),
		DBHost:         os.Getenv("DB_HOST"),
		DBPort:         os.Getenv("DB_PORT"),
		DBName:         os.Getenv("DB_NAME"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:      os.Getenv("REDIS_KEY_PREFIX"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		MediaAPIKey:    os.Getenv("MEDIA_API_KEY"),
		MediaAPISecret: os.Getenv("MEDIA_API_SECRET"),
		ServerPort:     os.Getenv("SERVER_PORT"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		AppEnv:         os.Getenv("APP_ENV"),
		// --- 默认值 ---
		MediaTokenTTL:   10 * time.Minute,
		RateLimitMax:    100,
		RateLimitWindow: 1 * time.Second,
		RoomEmptyTTL:    10 * time.Second,
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB")) // 忽略错误，默认为 0

	if raw := os.Getenv("ROOMS_EMPTY_TTL_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.RoomEmptyTTL = time.Duration(v) * time.Second
		} else {
			logrus.Warnf("Invalid ROOMS_EMPTY_TTL_SECONDS '%s', using default %s", raw, cfg.RoomEmptyTTL)
		}
	}
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, origin := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, trimmed)
			}
		}
	}

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "mf:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}
	if cfg.MediaAPIKey == "" || cfg.MediaAPISecret == "" {
		return nil, fmt.Errorf("environment variables MEDIA_API_KEY and MEDIA_API_SECRET must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 包含应用的所有组件。
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	AsynqServer *worker.WorkerServer
	Hub         *hub.Hub
	HttpServer  *http.Server

	roomService *service.RoomService
}

// NewApp 创建并装配应用的所有组件。
func NewApp() (*App, error) {
	// 1. 配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 日志
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetLevel(logLevel) // 包级 logger 与实例保持同级
	log.Info("Configuration loaded successfully")

	// 3. 基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Infrastructure initialized successfully")

	// 4. Repositories
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	appLogRepo := gormpersistence.NewGormAppLogRepository(db)
	presenceStore := redispresence.NewStore(redisClient, cfg.KeyPrefix)
	log.Info("Repositories initialized")

	// 5. Hub（扇出总线）与 GC 排期器
	hubInstance := hub.NewHub(redisClient, presenceStore.FanoutChannel())
	gcScheduler := tasks.NewScheduler(asynqClient, cfg.RoomEmptyTTL)

	// 6. Services
	presenceService := service.NewPresenceService(presenceStore, hubInstance, gcScheduler)
	moderationService := service.NewModerationService(presenceStore, hubInstance)
	screenService := service.NewScreenService(presenceStore, hubInstance)
	roomService := service.NewRoomService(roomRepo, appLogRepo, presenceStore, hubInstance)
	gcService := service.NewGCService(presenceStore, roomRepo, hubInstance)
	log.Info("Services initialized")

	// 7. Handlers
	issuer := media.NewIssuer(cfg.MediaAPIKey, cfg.MediaAPISecret, cfg.MediaTokenTTL)
	roomHandler := httpHandler.NewRoomHandler(roomService, presenceService, issuer)
	socketHandler := wsHandler.NewSocketHandler(hubInstance, presenceService, moderationService, screenService)
	log.Info("Handlers initialized")

	// 8. Worker
	workerServer := worker.NewWorkerServer(redisClientOpt, gcService, log)
	log.Info("Worker server initialized")

	// 9. 路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	roomRoutes := router.Group("/rooms").Use(middleware.Auth(cfg.JWTSecret))
	{
		roomRoutes.POST("", roomHandler.Create)
		roomRoutes.GET("", roomHandler.List)
		roomRoutes.POST("/:id/join", roomHandler.Join)
		roomRoutes.POST("/:id/leave", roomHandler.Leave)
		roomRoutes.POST("/:id/state", roomHandler.UpdateState)
		roomRoutes.GET("/:id/snapshot", roomHandler.Snapshot)
	}
	wsRoutes := router.Group("/ws").Use(middleware.Auth(cfg.JWTSecret))
	{
		wsRoutes.GET("", socketHandler.ServeWS)
	}
	router.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })
	log.Info("Router setup complete")

	// 10. HTTP Server
	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		AsynqServer: workerServer,
		Hub:         hubInstance,
		HttpServer:  httpServer,
		roomService: roomService,
	}, nil
}

// Start 启动所有后台 goroutine 与 HTTP 服务器。
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	go a.AsynqServer.Start()

	// 重启后把关系库里的活跃房间补回热索引
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.roomService.Rehydrate(ctx); err != nil {
		a.Log.Errorf("Failed to rehydrate room index: %v", err)
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 按依赖的反序优雅关闭应用。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	if a.Hub != nil {
		a.Hub.Stop()
	}
	if a.AsynqServer != nil {
		a.AsynqServer.Shutdown()
	}
	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (len(allowed) == 0 || allowed[origin]) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 记录每个请求的结构化访问日志。
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
