package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "ghostmail:rl:"

// Counter 基于 Redis 的固定窗口计数器，多个进程共享同一组配额。
type Counter struct {
	client *Client
}

// NewCounter 创建 Redis 计数器
func NewCounter(client *Client) *Counter {
	return &Counter{client: client}
}

// Increment 在一个事务中自增计数，首次写入时设置窗口过期时间。
func (c *Counter) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *goredis.IntCmd
	_, err := c.client.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, keyPrefix+key)
		pipe.ExpireNX(ctx, keyPrefix+key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
