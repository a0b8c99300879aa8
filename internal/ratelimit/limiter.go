// Package ratelimit 提供按动作配置的固定窗口限流。
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Action 被限流的动作
type Action string

const (
	ActionGenerate        Action = "generate"
	ActionGenerateAccount Action = "generate_account"
	ActionGenerateOnion   Action = "generate_onion"
	ActionSubmitDomain    Action = "submit_domain"
)

// OnionKey Tor 流量共用的限流 key
const OnionKey = "onion"

// Policy 单个动作的配额。Limit <= 0 表示不限。
type Policy struct {
	Limit  int64
	Window time.Duration
}

// Counter 计数后端
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter 检查并消耗配额。
type Limiter struct {
	name      string
	counter   Counter
	policies  map[Action]Policy
	logger    *zap.Logger
	onBlocked func(Action)
}

// New 创建限流器，name 用作计数 key 的前缀，用来隔离不同实例。
func New(name string, counter Counter, policies map[Action]Policy, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := make(map[Action]Policy, len(policies))
	for a, pol := range policies {
		p[a] = pol
	}
	return &Limiter{
		name:     name,
		counter:  counter,
		policies: p,
		logger:   logger,
	}
}

// OnBlocked 设置拒绝时的回调，用于指标统计。
func (l *Limiter) OnBlocked(fn func(Action)) {
	l.onBlocked = fn
}

// Check 对 key 的 action 计数一次，超出配额返回 false。
// 计数后端出错时放行。
func (l *Limiter) Check(ctx context.Context, key string, action Action) bool {
	policy, ok := l.policies[action]
	if !ok || policy.Limit <= 0 || policy.Window <= 0 {
		return true
	}

	count, err := l.counter.Increment(ctx, l.name+":"+string(action)+":"+key, policy.Window)
	if err != nil {
		l.logger.Warn("rate limit counter failed, allowing request",
			zap.String("limiter", l.name),
			zap.String("action", string(action)),
			zap.Error(err))
		return true
	}

	if count > policy.Limit {
		l.logger.Debug("rate limit exceeded",
			zap.String("limiter", l.name),
			zap.String("action", string(action)),
			zap.String("key", key),
			zap.Int64("count", count))
		if l.onBlocked != nil {
			l.onBlocked(action)
		}
		return false
	}
	return true
}
