package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ghostmail/internal/domain"
	"ghostmail/internal/middleware"
)

// AdminHandler 公共域名审核处理器
type AdminHandler struct {
	domains DomainAPI
	logger  *zap.Logger
}

// NewAdminHandler 创建审核处理器
func NewAdminHandler(domains DomainAPI, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{domains: domains, logger: logger}
}

// ListDomains 列出公共域名，可用 ?state= 过滤
func (h *AdminHandler) ListDomains(c *gin.Context) {
	var state domain.DomainState
	if raw := c.Query("state"); raw != "" {
		parsed, ok := domain.ParseDomainState(raw)
		if !ok {
			Error(c, http.StatusBadRequest, MsgInvalidState)
			return
		}
		state = parsed
	}

	domains := h.domains.List(state)
	if domains == nil {
		domains = []domain.Domain{}
	}
	Success(c, gin.H{
		"domains": domains,
		"count":   len(domains),
	})
}

// ApproveDomain 审核通过
func (h *AdminHandler) ApproveDomain(c *gin.Context) {
	h.moderate(c, domain.DomainActive)
}

// BanDomain 封禁域名
func (h *AdminHandler) BanDomain(c *gin.Context) {
	h.moderate(c, domain.DomainBanned)
}

func (h *AdminHandler) moderate(c *gin.Context, state domain.DomainState) {
	name := c.Param("name")
	if err := h.domains.Moderate(name, state); err != nil {
		status, msg := statusFor(err)
		Error(c, status, msg)
		return
	}

	h.logger.Info("domain moderated",
		zap.String("domain", name),
		zap.String("state", string(state)),
		zap.String("moderator", c.GetString(middleware.ContextKeyAccountID)))
	Success(c, gin.H{"name": name, "state": state})
}
