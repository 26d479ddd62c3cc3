package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Capoen/BootcampsAPI/internal/api/middleware"
	"github.com/Capoen/BootcampsAPI/internal/api/respond"
	"github.com/Capoen/BootcampsAPI/internal/model"
	"github.com/Capoen/BootcampsAPI/internal/pkg/credential"
	"github.com/Capoen/BootcampsAPI/internal/pkg/metrics"
	"github.com/Capoen/BootcampsAPI/internal/pkg/token"
	"github.com/Capoen/BootcampsAPI/internal/store"

	"github.com/gin-gonic/gin"
)

// UserStore 定义认证流程需要的用户持久化操作。
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
	FindByResetToken(ctx context.Context, digest string, now time.Time) (*model.User, error)
	UpdateDetails(ctx context.Context, id uint, updates map[string]interface{}) error
	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	SetResetToken(ctx context.Context, id uint, digest string, expire time.Time) error
	ClearResetToken(ctx context.Context, id uint) error
	ResetPassword(ctx context.Context, id uint, passwordHash string) error
}

// Mailer 定义重置密码邮件发送接口。
type Mailer interface {
	SendPasswordReset(ctx context.Context, toEmail string, resetURL string) error
}

// Handler 提供注册、登录与密码生命周期接口。
type Handler struct {
	store    UserStore
	issuer   *token.Issuer
	mailer   Mailer
	baseURL  string
	resetTTL time.Duration
	logger   *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(userStore UserStore, issuer *token.Issuer, mailer Mailer, baseURL string, resetTTL time.Duration, logger *slog.Logger) *Handler {
	if resetTTL <= 0 {
		resetTTL = 10 * time.Minute
	}
	return &Handler{
		store:    userStore,
		issuer:   issuer,
		mailer:   mailer,
		baseURL:  strings.TrimRight(baseURL, "/"),
		resetTTL: resetTTL,
		logger:   logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateDetailsRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=6"`
}

// Register 创建新用户并签发会话令牌。
//
// POST /api/v1/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	role := strings.TrimSpace(strings.ToLower(req.Role))
	if role == "" {
		role = model.RoleUser
	}
	if !model.ValidRegistrationRole(role) {
		respond.Error(c, http.StatusBadRequest, "Invalid role")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	hash, err := credential.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password failed", slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not create user")
		return
	}

	user := model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: hash,
		Role:     role,
	}
	if err := h.store.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			respond.Error(c, http.StatusBadRequest, "Duplicate field value entered")
			return
		}
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not create user")
		return
	}

	metrics.RegisterTotal.Inc()
	h.logger.Info("user registered", slog.String("email", email), slog.String("role", role))
	h.sendToken(c, &user)
}

// Login 校验凭证并签发会话令牌。
//
// 未知邮箱与密码错误返回完全一致的响应，避免账号枚举。
//
// POST /api/v1/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "Please provide an email and password")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		respond.Error(c, http.StatusBadRequest, "Please provide an email and password")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.store.FindByEmail(c.Request.Context(), email)
	if err != nil {
		metrics.LoginFailureTotal.Inc()
		respond.Error(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if !credential.VerifyPassword(user.Password, req.Password) {
		metrics.LoginFailureTotal.Inc()
		respond.Error(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	metrics.LoginSuccessTotal.Inc()
	h.logger.Info("user logged in", slog.String("email", email), slog.String("role", user.Role))
	h.sendToken(c, user)
}

// Logout 清除会话 Cookie。令牌本身无状态，到期自然失效。
//
// GET /api/v1/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, h.issuer.ExpiredCookie())
	respond.Data(c, http.StatusOK, gin.H{})
}

// Me 返回当前登录用户（密码哈希不外泄）。
//
// GET /api/v1/auth/me
func (h *Handler) Me(c *gin.Context) {
	user, err := h.store.FindByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respond.Error(c, http.StatusUnauthorized, "Not authorized to access this route")
		return
	}
	respond.Data(c, http.StatusOK, user)
}

// UpdateDetails 更新当前用户的姓名/邮箱。
//
// PUT /api/v1/auth/updatedetails
func (h *Handler) UpdateDetails(c *gin.Context) {
	var req updateDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.Name); name != "" {
		updates["name"] = name
	}
	if email := strings.TrimSpace(strings.ToLower(req.Email)); email != "" {
		updates["email"] = email
	}
	if len(updates) == 0 {
		respond.Error(c, http.StatusBadRequest, "Nothing to update")
		return
	}

	userID := middleware.GetUserID(c)
	if err := h.store.UpdateDetails(c.Request.Context(), userID, updates); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			respond.Error(c, http.StatusBadRequest, "Duplicate field value entered")
			return
		}
		h.logger.Error("update details failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not update user")
		return
	}

	user, err := h.store.FindByID(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Could not update user")
		return
	}
	respond.Data(c, http.StatusOK, user)
}

// UpdatePassword 校验当前密码后更新密码并重新签发令牌。
//
// PUT /api/v1/auth/updatepassword
func (h *Handler) UpdatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	userID := middleware.GetUserID(c)
	user, err := h.store.FindByID(c.Request.Context(), userID)
	if err != nil {
		respond.Error(c, http.StatusUnauthorized, "Not authorized to access this route")
		return
	}
	if !credential.VerifyPassword(user.Password, req.CurrentPassword) {
		respond.Error(c, http.StatusUnauthorized, "Password is incorrect")
		return
	}

	hash, err := credential.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error("hash password failed", slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not update password")
		return
	}
	if err := h.store.UpdatePassword(c.Request.Context(), userID, hash); err != nil {
		h.logger.Error("update password failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not update password")
		return
	}

	h.logger.Info("password updated", slog.String("email", user.Email))
	h.sendToken(c, user)
}

// ForgotPassword 生成重置令牌并通过邮件下发。
//
// 令牌摘要必须先落库再发邮件；发送失败时回滚两个令牌字段，
// 避免留下一个用户拿不到的悬挂令牌。
//
// POST /api/v1/auth/forgotpassword
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := h.store.FindByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, fmt.Sprintf("There is no user with the email %s", email))
			return
		}
		h.logger.Error("find user failed", slog.String("email", email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Email could not be sent")
		return
	}

	plain, digest, err := credential.NewResetToken()
	if err != nil {
		h.logger.Error("generate reset token failed", slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Email could not be sent")
		return
	}

	expire := time.Now().Add(h.resetTTL)
	if err := h.store.SetResetToken(c.Request.Context(), user.ID, digest, expire); err != nil {
		h.logger.Error("save reset token failed", slog.String("email", email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Email could not be sent")
		return
	}

	resetURL := fmt.Sprintf("%s/api/v1/auth/resetpassword/%s", h.baseURL, plain)
	if err := h.mailer.SendPasswordReset(c.Request.Context(), user.Email, resetURL); err != nil {
		metrics.ResetMailFailureTotal.Inc()
		h.logger.Warn("send reset email failed", slog.String("email", email), slog.String("error", err.Error()))
		if clearErr := h.store.ClearResetToken(c.Request.Context(), user.ID); clearErr != nil {
			h.logger.Error("rollback reset token failed", slog.String("email", email), slog.String("error", clearErr.Error()))
		}
		respond.Error(c, http.StatusInternalServerError, "Email could not be sent")
		return
	}

	metrics.PasswordResetRequestedTotal.Inc()
	h.logger.Info("reset email sent", slog.String("email", email))
	respond.Data(c, http.StatusOK, "Email sent")
}

// ResetPassword 用邮件中的令牌设置新密码。
//
// 令牌单次有效：成功后两个令牌字段被清空，重放同一令牌会匹配失败。
//
// PUT /api/v1/auth/resetpassword/:resettoken
func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	digest := credential.HashResetToken(c.Param("resettoken"))
	user, err := h.store.FindByResetToken(c.Request.Context(), digest, time.Now())
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "Invalid token")
		return
	}

	hash, err := credential.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("hash password failed", slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not reset password")
		return
	}
	if err := h.store.ResetPassword(c.Request.Context(), user.ID, hash); err != nil {
		h.logger.Error("reset password failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not reset password")
		return
	}

	metrics.PasswordResetCompletedTotal.Inc()
	h.logger.Info("password reset", slog.String("email", user.Email))
	h.sendToken(c, user)
}

// sendToken 签发会话令牌，同时写入响应体与 Cookie。
func (h *Handler) sendToken(c *gin.Context, user *model.User) {
	tokenStr, err := h.issuer.Issue(user.ID, user.Role)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not sign token")
		return
	}
	http.SetCookie(c.Writer, h.issuer.Cookie(tokenStr))
	respond.Token(c, http.StatusOK, tokenStr)
}
