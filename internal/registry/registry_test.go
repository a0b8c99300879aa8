package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostmail/internal/domain"
	"ghostmail/internal/ratelimit"
)

func newTestRegistry(t *testing.T, submitLimit int64, banned ...string) *Registry {
	t.Helper()
	limiter := ratelimit.New("submit", ratelimit.NewMemoryCounter(nil), map[ratelimit.Action]ratelimit.Policy{
		ratelimit.ActionSubmitDomain: {Limit: submitLimit, Window: time.Hour},
	}, nil)
	return New(Options{
		Builtin:     []string{"ghost.mail", "Spook.Mail"},
		Rush:        []string{"rush-a.dev", "rush-b.dev"},
		BannedWords: StaticBannedWords(banned),
		Limiter:     limiter,
	})
}

func TestRegistry_IsUsable(t *testing.T) {
	r := newTestRegistry(t, 0)
	ctx := context.Background()

	t.Run("内置和轮换域名可用", func(t *testing.T) {
		assert.True(t, r.IsUsable("ghost.mail"))
		assert.True(t, r.IsUsable("GHOST.MAIL"))
		assert.True(t, r.IsUsable("spook.mail"))
		assert.True(t, r.IsUsable("rush-a.dev"))
	})

	t.Run("未知和空域名不可用", func(t *testing.T) {
		assert.False(t, r.IsUsable("unknown.dev"))
		assert.False(t, r.IsUsable(""))
	})

	t.Run("待审核域名不可用，审核通过后可用", func(t *testing.T) {
		require.NoError(t, r.Submit(ctx, "Public.Dev", "1.1.1.1"))
		assert.False(t, r.IsUsable("Public.Dev"))

		require.NoError(t, r.Moderate("Public.Dev", domain.DomainActive))
		assert.True(t, r.IsUsable("Public.Dev"))
		assert.False(t, r.IsUsable("public.dev"), "public domains match as submitted")

		require.NoError(t, r.Moderate("Public.Dev", domain.DomainBanned))
		assert.False(t, r.IsUsable("Public.Dev"))
	})
}

func TestRegistry_Resolve(t *testing.T) {
	r := newTestRegistry(t, 0)
	ctx := context.Background()

	t.Run("内置域名返回小写形式", func(t *testing.T) {
		name, ok := r.Resolve("GHOST.MAIL")
		require.True(t, ok)
		assert.Equal(t, "ghost.mail", name)

		name, ok = r.Resolve("Rush-A.Dev")
		require.True(t, ok)
		assert.Equal(t, "rush-a.dev", name)
	})

	t.Run("公共域名保留原样", func(t *testing.T) {
		require.NoError(t, r.Submit(ctx, "Shared.Dev", "1.1.1.1"))
		require.NoError(t, r.Moderate("Shared.Dev", domain.DomainActive))

		name, ok := r.Resolve("Shared.Dev")
		require.True(t, ok)
		assert.Equal(t, "Shared.Dev", name)

		_, ok = r.Resolve("shared.dev")
		assert.False(t, ok)
	})

	t.Run("不可用域名", func(t *testing.T) {
		_, ok := r.Resolve("unknown.dev")
		assert.False(t, ok)
	})
}

func TestRegistry_RandomDomains(t *testing.T) {
	r := newTestRegistry(t, 0)

	t.Run("默认域名来自内置集合", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			d, err := r.DefaultDomain()
			require.NoError(t, err)
			assert.Contains(t, []string{"ghost.mail", "spook.mail"}, d)
		}
	})

	t.Run("轮换域名分布覆盖全部", func(t *testing.T) {
		seen := map[string]int{}
		for i := 0; i < 200; i++ {
			d, err := r.RandomRushDomain()
			require.NoError(t, err)
			seen[d]++
		}
		assert.Len(t, seen, 2)
	})

	t.Run("轮换后旧域名不可用", func(t *testing.T) {
		r.SetRushDomains([]string{"rush-c.dev"})
		assert.False(t, r.IsUsable("rush-a.dev"))
		assert.True(t, r.IsUsable("rush-c.dev"))
		d, err := r.RandomRushDomain()
		require.NoError(t, err)
		assert.Equal(t, "rush-c.dev", d)
	})

	t.Run("空轮换集合", func(t *testing.T) {
		r.SetRushDomains(nil)
		_, err := r.RandomRushDomain()
		assert.ErrorIs(t, err, domain.ErrNoDomainsAvailable)
	})

	t.Run("没有内置域名", func(t *testing.T) {
		empty := New(Options{})
		_, err := empty.DefaultDomain()
		assert.ErrorIs(t, err, domain.ErrNoDomainsAvailable)
	})
}

func TestRegistry_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("格式校验", func(t *testing.T) {
		r := newTestRegistry(t, 0)
		invalid := []string{
			"",
			strings.Repeat("a", 61) + ".com",
			"nodot",
			"double..dot.com",
			"bad domain.com",
			"example.c",
			"exa$mple.com",
			"my_mail.com",
			"-lead.com",
			"trail-.com",
			"example.com/path",
			"example.123",
		}
		for _, name := range invalid {
			assert.ErrorIs(t, r.Submit(ctx, name, "1.1.1.1"), domain.ErrInvalidDomain, name)
		}

		valid := []string{"example.com", "sub.example.co.uk", "my-domain.io", "Mixed-Case.Dev"}
		for _, name := range valid {
			assert.NoError(t, r.Submit(ctx, name, "1.1.1.1"), name)
		}
		assert.Len(t, r.List(domain.DomainPending), len(valid))
	})

	t.Run("记录提交人和时间", func(t *testing.T) {
		now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		r := New(Options{Now: func() time.Time { return now }})
		require.NoError(t, r.Submit(ctx, "example.com", "9.9.9.9"))

		list := r.List("")
		require.Len(t, list, 1)
		assert.Equal(t, "example.com", list[0].Name)
		assert.Equal(t, domain.DomainPending, list[0].State)
		assert.Equal(t, "9.9.9.9", list[0].SubmittedBy)
		assert.Equal(t, now, list[0].SubmittedAt)
	})

	t.Run("违禁词静默接受且不记录", func(t *testing.T) {
		r := newTestRegistry(t, 0, "casino")
		var outcomes []SubmitOutcome
		r.OnSubmit(func(o SubmitOutcome) { outcomes = append(outcomes, o) })

		assert.NoError(t, r.Submit(ctx, "best-CASINO.com", "1.1.1.1"))
		assert.Empty(t, r.List(""))
		assert.Equal(t, []SubmitOutcome{OutcomeBanned}, outcomes)
	})

	t.Run("重复提交不改变状态", func(t *testing.T) {
		r := newTestRegistry(t, 0)
		require.NoError(t, r.Submit(ctx, "example.com", "1.1.1.1"))
		require.NoError(t, r.Moderate("example.com", domain.DomainBanned))

		assert.NoError(t, r.Submit(ctx, "example.com", "2.2.2.2"))
		list := r.List("")
		require.Len(t, list, 1)
		assert.Equal(t, domain.DomainBanned, list[0].State)
		assert.Equal(t, "1.1.1.1", list[0].SubmittedBy)
	})

	t.Run("内置域名不会进入审核队列", func(t *testing.T) {
		r := newTestRegistry(t, 0)
		assert.NoError(t, r.Submit(ctx, "ghost.mail", "1.1.1.1"))
		assert.Empty(t, r.List(""))
	})

	t.Run("提交限流", func(t *testing.T) {
		r := newTestRegistry(t, 2)
		assert.NoError(t, r.Submit(ctx, "a.com", "1.1.1.1"))
		assert.NoError(t, r.Submit(ctx, "b.com", "1.1.1.1"))
		assert.ErrorIs(t, r.Submit(ctx, "c.com", "1.1.1.1"), domain.ErrRateLimited)
		assert.NoError(t, r.Submit(ctx, "c.com", "2.2.2.2"))
	})

	t.Run("长度检查先于限流", func(t *testing.T) {
		r := newTestRegistry(t, 1)
		assert.ErrorIs(t, r.Submit(ctx, strings.Repeat("a", 65), "1.1.1.1"), domain.ErrInvalidDomain)
		assert.NoError(t, r.Submit(ctx, "a.com", "1.1.1.1"))
	})

	t.Run("格式错误也消耗配额", func(t *testing.T) {
		r := newTestRegistry(t, 1)
		assert.ErrorIs(t, r.Submit(ctx, "nodot", "1.1.1.1"), domain.ErrInvalidDomain)
		assert.ErrorIs(t, r.Submit(ctx, "a.com", "1.1.1.1"), domain.ErrRateLimited)
	})
}

func TestRegistry_Moderate(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, 0)
	require.NoError(t, r.Submit(ctx, "example.com", "1.1.1.1"))

	t.Run("未知域名", func(t *testing.T) {
		assert.ErrorIs(t, r.Moderate("missing.com", domain.DomainActive), domain.ErrDomainNotFound)
	})

	t.Run("内置域名不可审核", func(t *testing.T) {
		assert.ErrorIs(t, r.Moderate("ghost.mail", domain.DomainBanned), domain.ErrInvalidTransition)
	})

	t.Run("不能回到待审核", func(t *testing.T) {
		assert.ErrorIs(t, r.Moderate("example.com", domain.DomainPending), domain.ErrInvalidTransition)
		assert.ErrorIs(t, r.Moderate("example.com", domain.DomainBuiltin), domain.ErrInvalidTransition)
	})

	t.Run("通过后再封禁", func(t *testing.T) {
		require.NoError(t, r.Moderate("example.com", domain.DomainActive))
		require.NoError(t, r.Moderate("example.com", domain.DomainActive))
		require.NoError(t, r.Moderate("example.com", domain.DomainBanned))

		list := r.List(domain.DomainBanned)
		require.Len(t, list, 1)
		assert.NotNil(t, list[0].ModeratedAt)
	})
}

func TestRegistry_NormalizeForAuth(t *testing.T) {
	r := newTestRegistry(t, 0)
	assert.Equal(t, "Mail.Example.org", r.NormalizeForAuth("Mail.Example.org"))
}
