package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ghostmail/internal/auth"
)

// 上下文 key
const (
	ContextKeyAccount   = "account"
	ContextKeyAccountID = "accountID"
)

// 账号相关错误响应
const (
	MsgInvalidAccount = "invalid account details"
	MsgExpiredAccount = "expired account (please add more time)"
	MsgNotLoggedIn    = "not logged in"
	MsgNotModerator   = "moderator access required"
)

// AccountVerifier 账号令牌校验
type AccountVerifier interface {
	Verify(authorization string) (*auth.Account, error)
}

// AccountAuth 付费账号认证中间件
type AccountAuth struct {
	verifier AccountVerifier
	log      *zap.Logger
}

// NewAccountAuth 创建账号认证中间件
func NewAccountAuth(verifier AccountVerifier, log *zap.Logger) *AccountAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &AccountAuth{verifier: verifier, log: log}
}

// OptionalAuth 未携带凭据时按匿名处理；凭据无效返回 400，账号过期返回 402。
func (a *AccountAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		account, err := a.verifier.Verify(c.GetHeader("Authorization"))
		switch {
		case err == nil:
			c.Set(ContextKeyAccount, account)
			c.Set(ContextKeyAccountID, account.ID)
			c.Next()
		case errors.Is(err, auth.ErrNoCredentials):
			c.Next()
		case errors.Is(err, auth.ErrAccountExpired):
			c.JSON(http.StatusPaymentRequired, gin.H{"error": MsgExpiredAccount})
			c.Abort()
		default:
			a.log.Debug("invalid account credentials",
				zap.String("ip", c.GetString(ContextKeyClientIP)),
				zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": MsgInvalidAccount})
			c.Abort()
		}
	}
}

// RequireAccount 必须是有效账号，匿名请求返回 402。需放在 OptionalAuth 之后。
func (a *AccountAuth) RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentAccount(c) == nil {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": MsgNotLoggedIn})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireModerator 要求审核员角色
func (a *AccountAuth) RequireModerator() gin.HandlerFunc {
	return func(c *gin.Context) {
		account := CurrentAccount(c)
		if account == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": MsgNotLoggedIn})
			c.Abort()
			return
		}
		if !account.IsModerator() {
			a.log.Warn("moderation denied", zap.String("account_id", account.ID))
			c.JSON(http.StatusForbidden, gin.H{"error": MsgNotModerator})
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentAccount 返回当前请求的账号，匿名请求返回 nil
func CurrentAccount(c *gin.Context) *auth.Account {
	v, ok := c.Get(ContextKeyAccount)
	if !ok {
		return nil
	}
	account, _ := v.(*auth.Account)
	return account
}
