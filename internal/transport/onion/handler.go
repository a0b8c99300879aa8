// Package onion 提供 Tor 隐藏服务使用的纯文本前端。
package onion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ghostmail/internal/domain"
	"ghostmail/internal/middleware"
	"ghostmail/internal/monitoring"
	"ghostmail/internal/service"
)

// Mailboxes 邮箱业务
type Mailboxes interface {
	Generate(ctx context.Context, in service.GenerateInput) (*domain.Credentials, error)
	PollInbox(token string) ([]domain.Message, bool)
}

// Handler Tor 前端处理器
type Handler struct {
	mailboxes Mailboxes
	hostname  string
	logger    *zap.Logger
}

// NewHandler 创建处理器，hostname 为对外的 .onion 主机名
func NewHandler(mailboxes Mailboxes, hostname string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{mailboxes: mailboxes, hostname: hostname, logger: logger}
}

// NewRouter 创建 Tor 前端路由
func NewRouter(h *Handler, metrics *monitoring.Metrics, logger *zap.Logger) *gin.Engine {
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	router := gin.New()
	monitor := middleware.NewMonitoringMiddleware(metrics, logger)
	router.Use(monitor.PanicRecovery())
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())

	router.GET("/token/:token/email/:address", h.Inbox)
	router.NoRoute(h.Index)
	return router
}

// Index 创建新邮箱并跳转到收件箱页面。/token/ 下不完整的路径给出提示。
func (h *Handler) Index(c *gin.Context) {
	if strings.HasPrefix(c.Request.URL.Path, "/token/") {
		c.String(http.StatusOK, "malformed inbox url\ngo to %s to generate a new inbox", h.hostname)
		return
	}

	creds, err := h.mailboxes.Generate(c.Request.Context(), service.GenerateInput{Source: service.SourceOnion})
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			c.String(http.StatusTooManyRequests, "rate limited, try again later")
			return
		}
		h.logger.Error("failed to generate onion mailbox", zap.Error(err))
		c.String(http.StatusServiceUnavailable, "could not create an inbox right now")
		return
	}

	c.Redirect(http.StatusFound, fmt.Sprintf("http://%s/token/%s/email/%s", h.hostname, creds.Token, creds.Address))
}

// Inbox 以纯文本输出收件箱，读取后即清空
func (h *Handler) Inbox(c *gin.Context) {
	head := "your inbox is: " + c.Param("address")

	msgs, _ := h.mailboxes.PollInbox(c.Param("token"))
	if len(msgs) == 0 {
		c.String(http.StatusOK, "%s\nyou do not have any emails currently. refresh to check.", head)
		return
	}

	var b strings.Builder
	b.WriteString(head)
	b.WriteString("\nNote: refreshing will delete the email(s) currently on this page.\nEmail(s):\n\n")
	for _, m := range msgs {
		out, err := json.MarshalIndent(m, "", "    ")
		if err != nil {
			h.logger.Error("failed to render message", zap.Error(err))
			continue
		}
		b.Write(out)
		b.WriteString("\n")
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(b.String()))
}
