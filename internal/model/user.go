package model

import "time"

// 用户角色。
const (
	RoleUser      = "user"      // 普通用户
	RolePublisher = "publisher" // 训练营发布者
	RoleAdmin     = "admin"     // 管理员（仅种子账号或管理端创建）
)

// User 表示系统用户。
//
// Password 永远只存 bcrypt 哈希，且不出现在任何 JSON 响应中。
// ResetPasswordToken 存的是重置令牌的 sha256，明文令牌只通过邮件下发。
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"` // 用户 ID
	CreatedAt time.Time `json:"created_at"`           // 创建时间
	UpdatedAt time.Time `json:"updated_at"`           // 更新时间

	Name     string `gorm:"type:varchar(64);not null" json:"name"`               // 显示名
	Email    string `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"` // 邮箱（唯一）
	Password string `gorm:"not null" json:"-"`                                   // bcrypt 哈希
	Role     string `gorm:"type:varchar(16);default:user" json:"role"`           // 角色: user / publisher / admin

	// 重置密码令牌；两个字段要么都存在，要么都为空。
	ResetPasswordToken  *string    `gorm:"type:varchar(64);index" json:"-"` // 令牌 sha256（hex）
	ResetPasswordExpire *time.Time `json:"-"`                               // 令牌过期时间
}

// ValidRegistrationRole 判断角色是否允许自助注册。
func ValidRegistrationRole(role string) bool {
	return role == RoleUser || role == RolePublisher
}
