// Package auth 校验付费账号令牌。
package auth

import (
	"errors"
	"strings"
	"time"

	"ghostmail/internal/auth/jwt"
)

// 账号角色
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
)

var (
	// ErrNoCredentials 请求未携带账号凭据
	ErrNoCredentials = errors.New("no account credentials")
	// ErrInvalidAccount 账号凭据无效
	ErrInvalidAccount = errors.New("invalid account details")
	// ErrAccountExpired 账号有效期已用完
	ErrAccountExpired = errors.New("expired account")
	// ErrAccountsDisabled 未配置账号密钥
	ErrAccountsDisabled = errors.New("accounts are not enabled")
)

// Account 通过校验的账号
type Account struct {
	ID          string
	Role        string
	ActiveUntil time.Time
}

// IsModerator 是否具有审核权限
func (a *Account) IsModerator() bool {
	return a != nil && a.Role == RoleModerator
}

// Verifier 账号令牌校验器
type Verifier struct {
	manager *jwt.Manager
}

// NewVerifier 创建校验器，secret 为空时所有凭据都视为无效
func NewVerifier(secret, issuer string, now func() time.Time) *Verifier {
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{manager: jwt.NewManager(secret, issuer, now)}
}

// Enabled 是否启用账号
func (v *Verifier) Enabled() bool {
	return v.manager != nil
}

// Issue 签发账号令牌
func (v *Verifier) Issue(accountID, role string, activeUntil time.Time) (string, error) {
	if v.manager == nil {
		return "", ErrAccountsDisabled
	}
	return v.manager.Issue(accountID, role, activeUntil)
}

// Verify 解析 Authorization 请求头。没有凭据时返回 ErrNoCredentials。
func (v *Verifier) Verify(authorization string) (*Account, error) {
	authorization = strings.TrimSpace(authorization)
	if authorization == "" {
		return nil, ErrNoCredentials
	}

	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return nil, ErrInvalidAccount
	}
	if v.manager == nil {
		return nil, ErrInvalidAccount
	}

	claims, err := v.manager.ValidateToken(strings.TrimSpace(parts[1]))
	if err != nil {
		if errors.Is(err, jwt.ErrExpiredToken) {
			return nil, ErrAccountExpired
		}
		return nil, ErrInvalidAccount
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return &Account{
		ID:          claims.AccountID,
		Role:        role,
		ActiveUntil: claims.ExpiresAt.Time,
	}, nil
}
