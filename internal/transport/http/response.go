package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ghostmail/internal/domain"
)

// Response 审核接口统一响应结构
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data,omitempty"`
}

// Success 成功响应（200）
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: http.StatusOK,
		Msg:  "ok",
		Data: data,
	})
}

// Error 审核接口错误响应
func Error(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, Response{
		Code: httpCode,
		Msg:  msg,
	})
}

// inboxResponse 收件箱查询结果
type inboxResponse struct {
	Email []domain.Message `json:"email"`
}

// errorBody 公开接口的错误响应，保持 {"error": "..."} 格式
func errorBody(c *gin.Context, httpCode int, msg string) {
	c.JSON(httpCode, gin.H{"error": msg})
}
