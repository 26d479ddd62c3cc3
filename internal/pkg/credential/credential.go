package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// resetTokenBytes 重置令牌的随机字节数（hex 编码后 40 字符）。
const resetTokenBytes = 20

// HashPassword 对明文密码做 bcrypt 哈希。
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword 校验明文密码与存储的 bcrypt 哈希是否匹配。
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// NewResetToken 生成一个随机重置令牌。
//
// 返回明文令牌（只通过邮件下发，绝不入库）和它的 sha256 摘要（入库用）。
func NewResetToken() (plain string, digest string, err error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}
	plain = hex.EncodeToString(buf)
	return plain, HashResetToken(plain), nil
}

// HashResetToken 计算重置令牌的 sha256 摘要（hex）。
//
// 与密码哈希不同，这里是无盐的确定性哈希：令牌本身已经是高熵随机值，
// 验证时需要通过摘要反查用户。
func HashResetToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
