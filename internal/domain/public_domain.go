package domain

import "time"

// DomainState 域名状态
type DomainState string

const (
	// DomainBuiltin 配置内置域名
	DomainBuiltin DomainState = "builtin"
	// DomainRush 轮换域名
	DomainRush DomainState = "rush"
	// DomainPending 待审核的公共域名
	DomainPending DomainState = "pending"
	// DomainActive 审核通过的公共域名
	DomainActive DomainState = "active"
	// DomainBanned 被封禁的公共域名
	DomainBanned DomainState = "banned"
)

// Domain 表示注册表中的一个域名。
type Domain struct {
	Name        string      `json:"name"`
	State       DomainState `json:"state"`
	SubmittedBy string      `json:"submittedBy,omitempty"`
	SubmittedAt time.Time   `json:"submittedAt,omitempty"`
	ModeratedAt *time.Time  `json:"moderatedAt,omitempty"`
}

// Usable 判断该域名当前是否可以用来创建邮箱。
func (d *Domain) Usable() bool {
	switch d.State {
	case DomainBuiltin, DomainRush, DomainActive:
		return true
	default:
		return false
	}
}

// ParseDomainState 解析审核接口传入的状态。
func ParseDomainState(s string) (DomainState, bool) {
	switch DomainState(s) {
	case DomainBuiltin, DomainRush, DomainPending, DomainActive, DomainBanned:
		return DomainState(s), true
	default:
		return "", false
	}
}
