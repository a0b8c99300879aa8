package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ContextKeyClientIP 客户端 IP 在 gin 上下文中的 key
const ContextKeyClientIP = "clientIP"

// SecurityHeaders 添加安全响应头
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// 令牌会出现在路径里，禁止中间缓存
		c.Header("Cache-Control", "no-store")

		c.Next()
	}
}

// RequestLogger 请求日志中间件。路径中含有邮箱令牌，只记录路由模板。
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.GetString(ContextKeyClientIP)),
		}
		if accountID, exists := c.Get(ContextKeyAccountID); exists {
			fields = append(fields, zap.String("account_id", accountID.(string)))
		}

		switch {
		case status >= 500:
			log.Error("server error", fields...)
		case status >= 400:
			log.Warn("client error", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}

// ClientIP 从指定请求头读取客户端 IP，header 为空时使用 gin 的 ClientIP。
// 配置了请求头但请求未携带时返回 400。
func ClientIP(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header == "" {
			c.Set(ContextKeyClientIP, c.ClientIP())
			c.Next()
			return
		}

		ip := strings.TrimSpace(c.GetHeader(header))
		if ip == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			c.Abort()
			return
		}
		c.Set(ContextKeyClientIP, ip)
		c.Next()
	}
}
