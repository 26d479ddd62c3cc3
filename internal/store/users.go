package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Capoen/BootcampsAPI/internal/model"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// 存储层错误。
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("duplicate email")
)

const mysqlDuplicateEntry = 1062

// Users 基于 gorm 的用户存储。
type Users struct {
	db *gorm.DB
}

// NewUsers 创建用户存储。
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// Create 创建用户。邮箱唯一约束冲突时返回 ErrDuplicateEmail。
func (s *Users) Create(ctx context.Context, user *model.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindByEmail 按邮箱查找用户。
func (s *Users) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID 按 ID 查找用户。
func (s *Users) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByResetToken 按重置令牌摘要查找用户，要求令牌未过期。
func (s *Users) FindByResetToken(ctx context.Context, digest string, now time.Time) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Where("reset_password_token = ? AND reset_password_expire > ?", digest, now).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user by reset token: %w", err)
	}
	return &user, nil
}

// List 返回全部用户（管理端）。
func (s *Users) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateDetails 更新用户资料字段（只写传入的列）。
func (s *Users) UpdateDetails(ctx context.Context, id uint, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if isDuplicateKey(res.Error) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("update user details: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword 只更新密码哈希列。
func (s *Users) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("password", passwordHash).Error
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// SetResetToken 写入重置令牌摘要与过期时间，不触碰其它列。
func (s *Users) SetResetToken(ctx context.Context, id uint, digest string, expire time.Time) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_password_token":  digest,
			"reset_password_expire": expire,
		}).Error
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

// ClearResetToken 清空重置令牌字段（邮件发送失败回滚或重置完成后调用）。
func (s *Users) ClearResetToken(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_password_token":  nil,
			"reset_password_expire": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}

// ResetPassword 原子地写入新密码哈希并清空重置令牌字段。
func (s *Users) ResetPassword(ctx context.Context, id uint, passwordHash string) error {
	err := s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"password":              passwordHash,
			"reset_password_token":  nil,
			"reset_password_expire": nil,
		}).Error
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	return nil
}

// Delete 删除用户（管理端）。
func (s *Users) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&model.User{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
