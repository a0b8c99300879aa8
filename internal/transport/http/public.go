package httptransport

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ghostmail/internal/domain"
	"ghostmail/internal/middleware"
	"ghostmail/internal/service"
)

// 公共域名提交长度限制
const maxPublicDomainLength = 64

// MailboxAPI 邮箱相关业务
type MailboxAPI interface {
	Generate(ctx context.Context, in service.GenerateInput) (*domain.Credentials, error)
	PollInbox(token string) ([]domain.Message, bool)
	PollCustomInbox(token, domainName string) []domain.Message
	Stats() service.Stats
}

// DomainAPI 公共域名相关业务
type DomainAPI interface {
	Submit(ctx context.Context, name, submitterIP string) error
	Moderate(name string, state domain.DomainState) error
	List(state domain.DomainState) []domain.Domain
}

// PublicHandler 公开API处理器
type PublicHandler struct {
	mailboxes MailboxAPI
	domains   DomainAPI
	logger    *zap.Logger
}

// NewPublicHandler 创建公开API处理器
func NewPublicHandler(mailboxes MailboxAPI, domains DomainAPI, logger *zap.Logger) *PublicHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublicHandler{mailboxes: mailboxes, domains: domains, logger: logger}
}

// Generate 在默认域名下创建邮箱
func (h *PublicHandler) Generate(c *gin.Context) {
	h.generate(c, service.GenerateInput{})
}

// GenerateOn 在指定域名下创建邮箱，"rush" 表示随机轮换域名
func (h *PublicHandler) GenerateOn(c *gin.Context) {
	name := c.Param("domain")
	if name == "rush" {
		h.generate(c, service.GenerateInput{Rush: true})
		return
	}
	h.generate(c, service.GenerateInput{Domain: name})
}

func (h *PublicHandler) generate(c *gin.Context, in service.GenerateInput) {
	in.ClientIP = c.GetString(middleware.ContextKeyClientIP)
	in.Account = middleware.CurrentAccount(c)
	in.Source = service.SourceHTTP

	creds, err := h.mailboxes.Generate(c.Request.Context(), in)
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to generate mailbox", zap.Error(err))
		}
		errorBody(c, status, msg)
		return
	}
	c.JSON(http.StatusCreated, creds)
}

// Inbox 取出收件箱中的新邮件，令牌无效时同样返回空列表
func (h *PublicHandler) Inbox(c *gin.Context) {
	msgs, _ := h.mailboxes.PollInbox(c.Param("token"))
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, inboxResponse{Email: msgs})
}

// CustomInbox 按自定义域名取出邮件，仅限付费账号
func (h *PublicHandler) CustomInbox(c *gin.Context) {
	msgs := h.mailboxes.PollCustomInbox(c.Param("token"), c.Param("domain"))
	if msgs == nil {
		msgs = []domain.Message{}
	}
	c.JSON(http.StatusOK, inboxResponse{Email: msgs})
}

// Stats 返回服务统计
func (h *PublicHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.mailboxes.Stats())
}

// AddPublic 提交公共域名。违禁与重复的提交同样返回 "ok"。
func (h *PublicHandler) AddPublic(c *gin.Context) {
	name := trimLeadingSlash(c.Param("domain"))
	if len(name) == 0 || len(name) > maxPublicDomainLength {
		c.String(http.StatusBadRequest, MsgNoDomain)
		return
	}

	err := h.domains.Submit(c.Request.Context(), name, c.GetString(middleware.ContextKeyClientIP))
	switch {
	case err == nil:
		c.String(http.StatusOK, MsgPublicSubmitted)
	case errors.Is(err, domain.ErrRateLimited):
		c.String(http.StatusTooManyRequests, MsgRateLimited)
	case errors.Is(err, domain.ErrInvalidDomain):
		c.String(http.StatusBadRequest, MsgInvalidDomain)
	default:
		h.logger.Error("failed to submit domain", zap.Error(err))
		c.String(http.StatusInternalServerError, MsgInternalError)
	}
}

func trimLeadingSlash(s string) string {
	if len(s) > 0 && s[0] == '/' {
		return s[1:]
	}
	return s
}
