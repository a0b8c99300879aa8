package ratelimit

import (
	"context"
	"sync"
	"time"
)

const pruneInterval = 5 * time.Minute

// windowEntry 固定窗口计数
type windowEntry struct {
	Count     int64
	ExpiresAt time.Time
}

// MemoryCounter 进程内固定窗口计数器，重启后清零。
type MemoryCounter struct {
	mu        sync.Mutex
	entries   map[string]*windowEntry
	nextPrune time.Time
	now       func() time.Time
}

// NewMemoryCounter 创建内存计数器，now 为 nil 时使用 time.Now。
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{
		entries:   make(map[string]*windowEntry),
		nextPrune: now().Add(pruneInterval),
		now:       now,
	}
}

// Increment 增加 key 在当前窗口内的计数并返回新值。
func (c *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	// 每5分钟顺带清理一次过期窗口
	if now.After(c.nextPrune) {
		for k, v := range c.entries {
			if !now.Before(v.ExpiresAt) {
				delete(c.entries, k)
			}
		}
		c.nextPrune = now.Add(pruneInterval)
	}

	entry, ok := c.entries[key]
	if !ok || !now.Before(entry.ExpiresAt) {
		c.entries[key] = &windowEntry{Count: 1, ExpiresAt: now.Add(window)}
		return 1, nil
	}

	entry.Count++
	return entry.Count, nil
}

// Len 返回当前跟踪的 key 数量。
func (c *MemoryCounter) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
