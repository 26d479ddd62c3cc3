package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Capoen/BootcampsAPI/internal/api/respond"
	"github.com/Capoen/BootcampsAPI/internal/model"
	"github.com/Capoen/BootcampsAPI/internal/pkg/credential"
	"github.com/Capoen/BootcampsAPI/internal/store"

	"github.com/gin-gonic/gin"
)

// 管理端用户接口，全部要求 admin 角色（见路由注册）。

type createUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role"`
}

type updateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// handleListUsers 返回全部用户。
//
// GET /api/v1/users
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not list users")
		return
	}
	respond.Data(c, http.StatusOK, users)
}

// handleGetUser 返回单个用户。
//
// GET /api/v1/users/:id
func (s *Server) handleGetUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	user, err := s.users.FindByID(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusNotFound, "User not found")
		return
	}
	respond.Data(c, http.StatusOK, user)
}

// handleCreateUser 由管理员创建用户，角色不受自助注册限制。
//
// POST /api/v1/users
func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, err.Error())
		return
	}

	role := strings.TrimSpace(strings.ToLower(req.Role))
	if role == "" {
		role = model.RoleUser
	}
	switch role {
	case model.RoleUser, model.RolePublisher, model.RoleAdmin:
	default:
		respond.Error(c, http.StatusBadRequest, "Invalid role")
		return
	}

	hash, err := credential.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not create user")
		return
	}

	user := model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(strings.ToLower(req.Email)),
		Password: hash,
		Role:     role,
	}
	if err := s.users.Create(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			respond.Error(c, http.StatusBadRequest, "Duplicate field value entered")
			return
		}
		s.logger.Error("create user failed", slog.String("email", user.Email), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not create user")
		return
	}

	respond.Data(c, http.StatusCreated, user)
}

// handleUpdateUser 更新用户资料/角色。
//
// PUT /api/v1/users/:id
func (s *Server) handleUpdateUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	var req updateUserRequest
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
	if role := strings.TrimSpace(strings.ToLower(req.Role)); role != "" {
		switch role {
		case model.RoleUser, model.RolePublisher, model.RoleAdmin:
			updates["role"] = role
		default:
			respond.Error(c, http.StatusBadRequest, "Invalid role")
			return
		}
	}
	if len(updates) == 0 {
		respond.Error(c, http.StatusBadRequest, "Nothing to update")
		return
	}

	if err := s.users.UpdateDetails(c.Request.Context(), id, updates); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "User not found")
		case errors.Is(err, store.ErrDuplicateEmail):
			respond.Error(c, http.StatusBadRequest, "Duplicate field value entered")
		default:
			s.logger.Error("update user failed", slog.Uint64("user_id", uint64(id)), slog.String("error", err.Error()))
			respond.Error(c, http.StatusInternalServerError, "Could not update user")
		}
		return
	}

	user, err := s.users.FindByID(c.Request.Context(), id)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "Could not update user")
		return
	}
	respond.Data(c, http.StatusOK, user)
}

// handleDeleteUser 删除用户。这是用户记录唯一的销毁路径。
//
// DELETE /api/v1/users/:id
func (s *Server) handleDeleteUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}
	if err := s.users.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "User not found")
			return
		}
		s.logger.Error("delete user failed", slog.Uint64("user_id", uint64(id)), slog.String("error", err.Error()))
		respond.Error(c, http.StatusInternalServerError, "Could not delete user")
		return
	}
	respond.Data(c, http.StatusOK, gin.H{})
}

func parseUserID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "Invalid user id")
		return 0, false
	}
	return uint(id), true
}
