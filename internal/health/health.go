package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探测的外部依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gauge 返回当前邮箱数量
type Gauge interface {
	ConnectedCount() int
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器。redis 为 nil 时不添加 Redis 就绪检查。
func NewHealthChecker(dir Gauge, redis Pinger, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger,
	}

	hc.health.AddLivenessCheck("directory_lock", healthcheck.Timeout(DirectoryLockCheck(dir), time.Second))
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(10000))
	if redis != nil {
		hc.health.AddReadinessCheck("redis", healthcheck.Timeout(RedisCheck(redis), 2*time.Second))
	}
	return hc
}

// Handler 返回健康检查处理器，提供 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// DirectoryLockCheck 检查目录锁没有卡死：能在超时内完成一次计数即视为存活。
// 需配合 healthcheck.Timeout 使用。
func DirectoryLockCheck(dir Gauge) healthcheck.Check {
	return func() error {
		if dir == nil {
			return errors.New("directory not initialized")
		}
		if n := dir.ConnectedCount(); n < 0 {
			return fmt.Errorf("directory reported %d mailboxes", n)
		}
		return nil
	}
}

// RedisCheck Redis 健康检查
func RedisCheck(p Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return p.Ping(ctx)
	}
}
