package respond

import "github.com/gin-gonic/gin"

// 统一的响应信封：成功 {success:true, ...}，失败 {success:false, error}。
// 所有 handler 都通过这里出错，保证错误体格式一致。

// Data 返回 {success:true, data}。
func Data(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// Token 返回 {success:true, token}。
func Token(c *gin.Context, status int, token string) {
	c.JSON(status, gin.H{"success": true, "token": token})
}

// Error 返回 {success:false, error} 并终止后续 handler。
func Error(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": message})
}
