package directory

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostmail/internal/domain"
	"ghostmail/internal/generator"
)

// stubDomains 的 key 为规范名，小写 key 按大小写不敏感匹配
type stubDomains struct {
	usable map[string]bool
	def    string
}

func (s stubDomains) Resolve(name string) (string, bool) {
	if s.usable[name] {
		return name, true
	}
	if lower := strings.ToLower(name); s.usable[lower] {
		return lower, true
	}
	return "", false
}

func (s stubDomains) DefaultDomain() (string, error) {
	if s.def == "" {
		return "", domain.ErrNoDomainsAvailable
	}
	return s.def, nil
}

// fixedGenerator 按顺序返回预设的值，用完后重复最后一个
type fixedGenerator struct {
	mu     sync.Mutex
	locals []string
	tokens []string
	li, ti int
}

func (g *fixedGenerator) NewLocalPart() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.locals[min(g.li, len(g.locals)-1)]
	g.li++
	return v
}

func (g *fixedGenerator) NewToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := g.tokens[min(g.ti, len(g.tokens)-1)]
	g.ti++
	return v
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testDomains = stubDomains{
	usable: map[string]bool{"ghost.mail": true, "rush.dev": true, "Public.Dev": true},
	def:    "ghost.mail",
}

func newTestDirectory(clock *testClock, opts Options) *Directory {
	opts.Now = clock.Now
	return New(opts, testDomains, generator.New(nil))
}

func message(to, subject string) domain.Message {
	return domain.Message{ID: subject, To: to, From: "sender@example.com", Subject: subject, Body: "body"}
}

func TestDirectory_Create(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}

	t.Run("默认域名和匿名 TTL", func(t *testing.T) {
		d := newTestDirectory(clock, Options{AnonymousTTL: time.Hour, AuthenticatedTTL: 10 * time.Hour})
		mb, err := d.Create(CreateInput{})
		require.NoError(t, err)

		assert.Equal(t, "ghost.mail", mb.Domain)
		assert.True(t, strings.HasSuffix(mb.Address, "@ghost.mail"))
		assert.Equal(t, mb.LocalPart+"@ghost.mail", mb.Address)
		assert.NotEmpty(t, mb.Token)
		assert.Equal(t, domain.OwnerAnonymous, mb.Owner)
		assert.Equal(t, time.Hour, mb.ExpiresAt.Sub(mb.CreatedAt))
		assert.Equal(t, 1, d.ConnectedCount())
	})

	t.Run("认证账号 TTL", func(t *testing.T) {
		d := newTestDirectory(clock, Options{AnonymousTTL: time.Hour, AuthenticatedTTL: 10 * time.Hour})
		mb, err := d.Create(CreateInput{Authenticated: true, AccountID: "acct-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.OwnerAccount, mb.Owner)
		assert.Equal(t, "acct-1", mb.AccountID)
		assert.Equal(t, 10*time.Hour, mb.ExpiresAt.Sub(mb.CreatedAt))
	})

	t.Run("指定域名", func(t *testing.T) {
		d := newTestDirectory(clock, Options{})
		mb, err := d.Create(CreateInput{Domain: "Public.Dev"})
		require.NoError(t, err)
		assert.Equal(t, "Public.Dev", mb.Domain)
		assert.True(t, strings.HasSuffix(mb.Address, "@public.dev"))
	})

	t.Run("内置域名保存为规范小写", func(t *testing.T) {
		d := newTestDirectory(clock, Options{})
		mb, err := d.Create(CreateInput{Domain: "GHOST.MAIL"})
		require.NoError(t, err)
		assert.Equal(t, "ghost.mail", mb.Domain)

		require.True(t, d.AddMail(message(mb.Address, "hi")))
		msgs := d.ReadCustom(mb.Token, "ghost.mail")
		assert.Len(t, msgs, 1)
	})

	t.Run("不可用域名", func(t *testing.T) {
		d := newTestDirectory(clock, Options{})
		_, err := d.Create(CreateInput{Domain: "pending.dev"})
		assert.ErrorIs(t, err, domain.ErrInvalidDomain)
		assert.Equal(t, 0, d.ConnectedCount())
	})

	t.Run("没有默认域名", func(t *testing.T) {
		d := New(Options{}, stubDomains{}, generator.New(nil))
		_, err := d.Create(CreateInput{})
		assert.ErrorIs(t, err, domain.ErrNoDomainsAvailable)
	})

	t.Run("冲突时重试", func(t *testing.T) {
		gen := &fixedGenerator{locals: []string{"same", "same", "other"}, tokens: []string{"t1", "t2", "t3"}}
		d := New(Options{Now: clock.Now}, testDomains, gen)

		first, err := d.Create(CreateInput{})
		require.NoError(t, err)
		second, err := d.Create(CreateInput{})
		require.NoError(t, err)

		assert.Equal(t, "same@ghost.mail", first.Address)
		assert.Equal(t, "other@ghost.mail", second.Address)
		assert.Equal(t, "t3", second.Token)
	})

	t.Run("令牌冲突时重试", func(t *testing.T) {
		gen := &fixedGenerator{locals: []string{"a", "b", "c"}, tokens: []string{"tok", "tok", "tok2"}}
		d := New(Options{Now: clock.Now}, testDomains, gen)

		_, err := d.Create(CreateInput{})
		require.NoError(t, err)
		second, err := d.Create(CreateInput{})
		require.NoError(t, err)
		assert.Equal(t, "tok2", second.Token)
	})

	t.Run("重试次数用尽", func(t *testing.T) {
		gen := &fixedGenerator{locals: []string{"same"}, tokens: []string{"t1", "t2"}}
		d := New(Options{Now: clock.Now, MaxAttempts: 3}, testDomains, gen)

		_, err := d.Create(CreateInput{})
		require.NoError(t, err)
		_, err = d.Create(CreateInput{})
		assert.ErrorIs(t, err, domain.ErrAddressSpaceExhausted)
		assert.Equal(t, 1, d.ConnectedCount())
	})

	t.Run("过期未清理的地址可以复用", func(t *testing.T) {
		c := &testClock{now: time.Unix(1700000000, 0)}
		gen := &fixedGenerator{locals: []string{"same"}, tokens: []string{"t1", "t2"}}
		d := New(Options{Now: c.Now, AnonymousTTL: time.Minute}, testDomains, gen)

		_, err := d.Create(CreateInput{})
		require.NoError(t, err)
		c.Advance(time.Minute)

		mb, err := d.Create(CreateInput{})
		require.NoError(t, err)
		assert.Equal(t, "t2", mb.Token)
		assert.Equal(t, 1, d.ConnectedCount())
		_, ok := d.ReadAndClear("t1")
		assert.False(t, ok)
	})

	t.Run("返回值不共享内部状态", func(t *testing.T) {
		d := newTestDirectory(clock, Options{})
		mb, err := d.Create(CreateInput{})
		require.NoError(t, err)
		mb.Messages = append(mb.Messages, message(mb.Address, "x"))

		msgs, ok := d.ReadAndClear(mb.Token)
		require.True(t, ok)
		assert.Empty(t, msgs)
	})
}

func TestDirectory_Isolation(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{})

	a, err := d.Create(CreateInput{})
	require.NoError(t, err)
	b, err := d.Create(CreateInput{})
	require.NoError(t, err)

	assert.True(t, d.AddMail(message(a.Address, "for-a")))

	msgs, ok := d.ReadAndClear(b.Token)
	require.True(t, ok)
	assert.Empty(t, msgs)

	msgs, ok = d.ReadAndClear(a.Token)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "for-a", msgs[0].Subject)
}

func TestDirectory_DrainSemantics(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{})
	mb, err := d.Create(CreateInput{})
	require.NoError(t, err)

	t.Run("按投递顺序返回并清空", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.True(t, d.AddMail(message(mb.Address, fmt.Sprintf("m%d", i))))
		}

		msgs, ok := d.ReadAndClear(mb.Token)
		require.True(t, ok)
		require.Len(t, msgs, 3)
		assert.Equal(t, []string{"m0", "m1", "m2"}, []string{msgs[0].Subject, msgs[1].Subject, msgs[2].Subject})

		msgs, ok = d.ReadAndClear(mb.Token)
		require.True(t, ok)
		assert.NotNil(t, msgs)
		assert.Empty(t, msgs)
	})

	t.Run("收件地址大小写不敏感", func(t *testing.T) {
		require.True(t, d.AddMail(message(strings.ToUpper(mb.Address), "upper")))
		msgs, ok := d.ReadAndClear(mb.Token)
		require.True(t, ok)
		require.Len(t, msgs, 1)
		assert.Equal(t, mb.Address, msgs[0].To)
	})

	t.Run("单邮箱邮件上限丢弃最旧", func(t *testing.T) {
		small := newTestDirectory(clock, Options{MaxMessages: 2})
		box, err := small.Create(CreateInput{})
		require.NoError(t, err)
		for i := 0; i < 4; i++ {
			require.True(t, small.AddMail(message(box.Address, fmt.Sprintf("m%d", i))))
		}
		msgs, _ := small.ReadAndClear(box.Token)
		require.Len(t, msgs, 2)
		assert.Equal(t, "m2", msgs[0].Subject)
		assert.Equal(t, "m3", msgs[1].Subject)
		assert.Equal(t, int64(4), small.ReceivedCount())
	})
}

func TestDirectory_UnknownRecipient(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{})

	assert.False(t, d.AddMail(message("nobody@ghost.mail", "lost")))
	assert.Equal(t, int64(0), d.ReceivedCount())
	assert.Equal(t, 0, d.ConnectedCount())
}

func TestDirectory_Expiry(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{AnonymousTTL: 10 * time.Minute})

	mb, err := d.Create(CreateInput{})
	require.NoError(t, err)
	require.True(t, d.AddMail(message(mb.Address, "before")))

	clock.Advance(10 * time.Minute)

	t.Run("过期后视为不存在", func(t *testing.T) {
		assert.False(t, d.AddMail(message(mb.Address, "after")))
		_, ok := d.ReadAndClear(mb.Token)
		assert.False(t, ok)
		assert.Empty(t, d.ReadCustom(mb.Token, mb.Domain))
	})

	t.Run("过期邮箱不计入数量", func(t *testing.T) {
		assert.Equal(t, 0, d.ConnectedCount())
	})

	t.Run("清理后移除", func(t *testing.T) {
		assert.Equal(t, 1, d.SweepExpired())
		assert.Equal(t, 0, d.ConnectedCount())
		assert.Equal(t, 0, d.SweepExpired())
	})

	t.Run("过期令牌与不存在的令牌结果一致", func(t *testing.T) {
		msgsExpired, okExpired := d.ReadAndClear(mb.Token)
		msgsNever, okNever := d.ReadAndClear("never-existed")
		assert.Equal(t, okNever, okExpired)
		assert.Equal(t, msgsNever, msgsExpired)
	})
}

func TestDirectory_SweepKeepsLive(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{AnonymousTTL: time.Minute, AuthenticatedTTL: time.Hour})

	_, err := d.Create(CreateInput{})
	require.NoError(t, err)
	live, err := d.Create(CreateInput{Authenticated: true})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, d.SweepExpired())

	_, ok := d.ReadAndClear(live.Token)
	assert.True(t, ok)
}

func TestDirectory_ReadCustom(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}

	t.Run("域名完全一致才返回", func(t *testing.T) {
		d := newTestDirectory(clock, Options{})
		mb, err := d.Create(CreateInput{Domain: "Public.Dev"})
		require.NoError(t, err)
		require.True(t, d.AddMail(message(mb.Address, "hi")))

		assert.Empty(t, d.ReadCustom(mb.Token, "public.dev"))
		assert.Empty(t, d.ReadCustom("bad-token", "Public.Dev"))

		msgs := d.ReadCustom(mb.Token, "Public.Dev")
		require.Len(t, msgs, 1)
		assert.Empty(t, d.ReadCustom(mb.Token, "Public.Dev"))
		assert.Equal(t, 1, d.ConnectedCount())
	})

	t.Run("一次性读取后删除", func(t *testing.T) {
		d := newTestDirectory(clock, Options{CustomOneShot: true})
		mb, err := d.Create(CreateInput{Domain: "Public.Dev"})
		require.NoError(t, err)

		assert.Empty(t, d.ReadCustom(mb.Token, "Public.Dev"))
		assert.Equal(t, 0, d.ConnectedCount())
		assert.False(t, d.AddMail(message(mb.Address, "late")))
	})
}

func TestDirectory_ConcurrentCreate(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{})

	const n = 500
	var wg sync.WaitGroup
	results := make(chan *domain.Mailbox, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mb, err := d.Create(CreateInput{})
			if assert.NoError(t, err) {
				results <- mb
			}
		}()
	}
	wg.Wait()
	close(results)

	addresses := make(map[string]struct{})
	tokens := make(map[string]struct{})
	for mb := range results {
		addresses[mb.Address] = struct{}{}
		tokens[mb.Token] = struct{}{}
	}
	assert.Len(t, addresses, n)
	assert.Len(t, tokens, n)
	assert.Equal(t, n, d.ConnectedCount())
}

func TestDirectory_ConcurrentDeliverAndRead(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	d := newTestDirectory(clock, Options{MaxMessages: 10000})
	mb, err := d.Create(CreateInput{})
	require.NoError(t, err)

	const n = 1000
	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d.AddMail(message(mb.Address, fmt.Sprintf("m%d", i)))
		}(i)
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msgs, _ := d.ReadAndClear(mb.Token)
			mu.Lock()
			total += len(msgs)
			mu.Unlock()
		}()
	}
	wg.Wait()

	rest, _ := d.ReadAndClear(mb.Token)
	assert.Equal(t, n, total+len(rest), "every message is read exactly once")
}
