package token

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName 会话令牌 Cookie 名称。
const CookieName = "token"

// Claims JWT 负载：标准字段 + 角色。
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Issuer 签发并校验会话令牌。
type Issuer struct {
	secret     []byte
	ttl        time.Duration
	cookieDays int
	secure     bool
}

// NewIssuer 创建 Issuer。
//
// secure 只在生产部署时为 true，控制 Cookie 的 Secure 属性。
func NewIssuer(secret string, ttl time.Duration, cookieDays int, secure bool) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cookieDays <= 0 {
		cookieDays = 30
	}
	return &Issuer{
		secret:     []byte(secret),
		ttl:        ttl,
		cookieDays: cookieDays,
		secure:     secure,
	}
}

// Issue 为指定用户签发 HS256 会话令牌。
func (i *Issuer) Issue(userID uint, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse 校验令牌签名与有效期，返回负载。
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Cookie 构造携带会话令牌的 Cookie。
func (i *Issuer) Cookie(tokenStr string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    tokenStr,
		Path:     "/",
		Expires:  time.Now().Add(time.Duration(i.cookieDays) * 24 * time.Hour),
		HttpOnly: true,
		Secure:   i.secure,
	}
}

// ExpiredCookie 构造一个立即过期的 Cookie，用于注销。
func (i *Issuer) ExpiredCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "none",
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Second),
		HttpOnly: true,
		Secure:   i.secure,
	}
}
