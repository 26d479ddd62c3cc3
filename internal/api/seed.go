package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Capoen/BootcampsAPI/internal/model"
	"github.com/Capoen/BootcampsAPI/internal/pkg/credential"
	"github.com/Capoen/BootcampsAPI/internal/store"
)

// SeedAdmin 创建种子管理员账号。
//
// 管理员无法自助注册，只能通过配置（ADMIN_EMAIL / ADMIN_PASSWORD）引导；
// 账号已存在时什么都不做。
func (s *Server) SeedAdmin(ctx context.Context) error {
	email := s.cfg.Auth.AdminEmail
	if email == "" {
		return nil
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	hash, err := credential.HashPassword(s.cfg.Auth.AdminPassword)
	if err != nil {
		return err
	}
	admin := model.User{
		Name:     "Admin",
		Email:    email,
		Password: hash,
		Role:     model.RoleAdmin,
	}
	if err := s.users.Create(ctx, &admin); err != nil {
		return err
	}

	s.logger.Info("admin account seeded", slog.String("email", email))
	return nil
}
