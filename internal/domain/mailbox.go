package domain

import (
	"time"
)

// OwnerKind 邮箱归属类型。
type OwnerKind string

const (
	// OwnerAnonymous 匿名创建的邮箱
	OwnerAnonymous OwnerKind = "anonymous"
	// OwnerAccount 已认证账号创建的邮箱
	OwnerAccount OwnerKind = "account"
)

// Mailbox 表示一个临时邮箱。Token 只在创建时返回给调用方。
type Mailbox struct {
	Address   string    `json:"address"`
	LocalPart string    `json:"localPart"`
	Domain    string    `json:"domain"`
	Token     string    `json:"-"`
	Owner     OwnerKind `json:"owner"`
	AccountID string    `json:"accountId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Messages  []Message `json:"-"`
}

// ExpiredAt 判断邮箱在给定时间是否已过期。
func (m *Mailbox) ExpiredAt(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Credentials 是创建邮箱后返回给客户端的凭据。
type Credentials struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}
