package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Capoen/BootcampsAPI/internal/api/respond"
	"github.com/Capoen/BootcampsAPI/internal/pkg/token"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 校验会话令牌并将 userID / role 写入上下文。
//
// 令牌优先取 Authorization: Bearer 头，其次取 token Cookie。
func AuthMiddleware(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			if cookie, err := c.Cookie(token.CookieName); err == nil {
				tokenStr = cookie
			}
		}
		if tokenStr == "" {
			respond.Error(c, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}

		claims, err := issuer.Parse(tokenStr)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}
		if claims.Subject == "" {
			respond.Error(c, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			respond.Error(c, http.StatusUnauthorized, "Not authorized to access this route")
			return
		}

		c.Set("userID", uint(uid))
		c.Set("role", strings.TrimSpace(strings.ToLower(claims.Role)))
		c.Next()
	}
}

// RequireRoles 限制路由只允许指定角色访问，需在 AuthMiddleware 之后使用。
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := GetRole(c)
		if _, ok := allowed[role]; !ok {
			respond.Error(c, http.StatusForbidden,
				fmt.Sprintf("User role %s is not authorized to access this route", role))
			return
		}
		c.Next()
	}
}

// GetUserID 读取上下文中的用户 ID。
func GetUserID(c *gin.Context) uint {
	v, ok := c.Get("userID")
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}

// GetRole 读取上下文中的角色。
func GetRole(c *gin.Context) string {
	v, ok := c.Get("role")
	if !ok {
		return ""
	}
	role, _ := v.(string)
	return role
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
