package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Capoen/BootcampsAPI/internal/api/auth"
	"github.com/Capoen/BootcampsAPI/internal/api/middleware"
	"github.com/Capoen/BootcampsAPI/internal/config"
	"github.com/Capoen/BootcampsAPI/internal/model"
	"github.com/Capoen/BootcampsAPI/internal/pkg/metrics"
	"github.com/Capoen/BootcampsAPI/internal/pkg/notify"
	"github.com/Capoen/BootcampsAPI/internal/pkg/ratelimit"
	"github.com/Capoen/BootcampsAPI/internal/pkg/token"
	"github.com/Capoen/BootcampsAPI/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// UserAdminStore 管理端接口需要的用户操作。
type UserAdminStore interface {
	List(ctx context.Context) ([]model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	UpdateDetails(ctx context.Context, id uint, updates map[string]interface{}) error
	Delete(ctx context.Context, id uint) error
}

// Server 封装了 API 服务所需的依赖和路由处理。
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *gorm.DB
	rdb    *redis.Client
	router *gin.Engine
	issuer *token.Issuer
	auth   *auth.Handler
	users  UserAdminStore
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis（限流）
// 3. 初始化 Gin 路由引擎
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	users := store.NewUsers(db)
	issuer := token.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpire, cfg.Auth.CookieExpireDays, cfg.App.Env == "prod")
	mailer := notify.NewEmailNotifier(&cfg.Email, logger)
	limiter := ratelimit.NewRedisLimiter(rdb, "bootcamps:ratelimit:ip:", cfg.App.RateLimit, cfg.App.RateBurst)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		router: r,
		issuer: issuer,
		auth:   auth.NewHandler(users, issuer, mailer, cfg.App.PublicBaseURL, cfg.Auth.ResetTokenTTL, logger),
		users:  users,
	}
	s.registerRoutes(limiter)
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(limiter *ratelimit.Limiter) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", s.handleHealthz)

	v1 := s.router.Group("/api/v1")

	authRoutes := v1.Group("/auth")
	authRoutes.Use(middleware.RateLimit(limiter, s.logger))
	authRoutes.POST("/register", s.auth.Register)
	authRoutes.POST("/login", s.auth.Login)
	authRoutes.GET("/logout", s.auth.Logout)
	authRoutes.POST("/forgotpassword", s.auth.ForgotPassword)
	authRoutes.PUT("/resetpassword/:resettoken", s.auth.ResetPassword)

	authed := authRoutes.Group("")
	authed.Use(middleware.AuthMiddleware(s.issuer))
	authed.GET("/me", s.auth.Me)
	authed.PUT("/updatedetails", s.auth.UpdateDetails)
	authed.PUT("/updatepassword", s.auth.UpdatePassword)

	users := v1.Group("/users")
	users.Use(middleware.AuthMiddleware(s.issuer))
	users.Use(middleware.RequireRoles(model.RoleAdmin))
	users.GET("", s.handleListUsers)
	users.GET("/:id", s.handleGetUser)
	users.POST("", s.handleCreateUser)
	users.PUT("/:id", s.handleUpdateUser)
	users.DELETE("/:id", s.handleDeleteUser)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
