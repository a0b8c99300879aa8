// Package registry 维护可用于创建邮箱的域名，以及公共域名的提交与审核。
package registry

import (
	"context"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ghostmail/internal/domain"
	"ghostmail/internal/ratelimit"
)

const maxSubmissionLength = 64

// 顶级域必须是字母。各段的 LDH 规则与 SMTP 收件人校验共用 domain.EmailValidator，
// 保证审核通过的域名一定能收信。
var submissionPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,16}$`)

var hostnames = domain.NewEmailValidator()

// SubmitOutcome 域名提交的内部结果，对外统一返回成功
type SubmitOutcome string

const (
	OutcomeAccepted    SubmitOutcome = "accepted"
	OutcomeDuplicate   SubmitOutcome = "duplicate"
	OutcomeBanned      SubmitOutcome = "banned"
	OutcomeInvalid     SubmitOutcome = "invalid"
	OutcomeRateLimited SubmitOutcome = "rate_limited"
)

// Limiter 域名提交限流
type Limiter interface {
	Check(ctx context.Context, key string, action ratelimit.Action) bool
}

// Options 注册表构造参数
type Options struct {
	Builtin     []string
	Rush        []string
	BannedWords BannedWordSource
	Limiter     Limiter
	Logger      *zap.Logger
	Now         func() time.Time
}

// Registry 域名注册表。内置和轮换域名按小写匹配，公共域名按提交时的原样匹配。
type Registry struct {
	mu      sync.RWMutex
	builtin []string
	rush    []string
	fixed   map[string]domain.DomainState
	public  map[string]*domain.Domain

	banned    BannedWordSource
	limiter   Limiter
	logger    *zap.Logger
	now       func() time.Time
	onOutcome func(SubmitOutcome)
}

// New 创建注册表
func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BannedWords == nil {
		opts.BannedWords = StaticBannedWords(nil)
	}

	r := &Registry{
		public:  make(map[string]*domain.Domain),
		banned:  opts.BannedWords,
		limiter: opts.Limiter,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	r.builtin = lowerAll(opts.Builtin)
	r.rush = lowerAll(opts.Rush)
	r.rebuildFixedLocked()
	return r
}

// OnSubmit 设置提交结果回调，用于指标统计。
func (r *Registry) OnSubmit(fn func(SubmitOutcome)) {
	r.onOutcome = fn
}

// NormalizeForAuth 返回自定义收件箱校验时使用的域名形式。公共域名按提交原样比较，因此不做转换。
func (r *Registry) NormalizeForAuth(name string) string {
	return name
}

// SetRushDomains 替换轮换域名集合
func (r *Registry) SetRushDomains(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rush = lowerAll(names)
	r.rebuildFixedLocked()
	r.logger.Info("rush domains rotated", zap.Strings("domains", r.rush))
}

func (r *Registry) rebuildFixedLocked() {
	r.fixed = make(map[string]domain.DomainState, len(r.builtin)+len(r.rush))
	for _, name := range r.rush {
		r.fixed[name] = domain.DomainRush
	}
	for _, name := range r.builtin {
		r.fixed[name] = domain.DomainBuiltin
	}
}

// IsUsable 判断域名是否可以用于创建邮箱
func (r *Registry) IsUsable(name string) bool {
	_, ok := r.Resolve(name)
	return ok
}

// Resolve 返回可用域名的规范形式：内置和轮换域名为小写，公共域名为提交时的原样。
func (r *Registry) Resolve(name string) (string, bool) {
	if name == "" {
		return "", false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	lower := strings.ToLower(name)
	if _, ok := r.fixed[lower]; ok {
		return lower, true
	}
	if d, ok := r.public[name]; ok && d.Usable() {
		return d.Name, true
	}
	return "", false
}

// DefaultDomain 随机返回一个内置域名
func (r *Registry) DefaultDomain() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pick(r.builtin)
}

// RandomRushDomain 随机返回一个轮换域名
func (r *Registry) RandomRushDomain() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return pick(r.rush)
}

func pick(names []string) (string, error) {
	if len(names) == 0 {
		return "", domain.ErrNoDomainsAvailable
	}
	return names[rand.IntN(len(names))], nil
}

// Submit 提交公共域名等待审核。
//
// 违禁域名和重复提交同样返回 nil，调用方无法区分。
func (r *Registry) Submit(ctx context.Context, name, submitterIP string) error {
	if len(name) == 0 || len(name) > maxSubmissionLength {
		r.observe(OutcomeInvalid)
		return domain.ErrInvalidDomain
	}

	if r.limiter != nil && !r.limiter.Check(ctx, submitterIP, ratelimit.ActionSubmitDomain) {
		r.observe(OutcomeRateLimited)
		return domain.ErrRateLimited
	}

	if strings.Contains(name, "..") || !submissionPattern.MatchString(name) || hostnames.ValidateDomain(name) != nil {
		r.observe(OutcomeInvalid)
		return domain.ErrInvalidDomain
	}

	lower := strings.ToLower(name)
	for _, word := range r.banned.Words() {
		if strings.Contains(lower, word) {
			r.logger.Info("domain submission matched banned word",
				zap.String("domain", name),
				zap.String("ip", submitterIP))
			r.observe(OutcomeBanned)
			return nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fixed[lower]; ok {
		r.observe(OutcomeDuplicate)
		return nil
	}
	if _, ok := r.public[name]; ok {
		r.observe(OutcomeDuplicate)
		return nil
	}

	r.public[name] = &domain.Domain{
		Name:        name,
		State:       domain.DomainPending,
		SubmittedBy: submitterIP,
		SubmittedAt: r.now(),
	}
	r.logger.Info("domain submitted for review", zap.String("domain", name))
	r.observe(OutcomeAccepted)
	return nil
}

func (r *Registry) observe(o SubmitOutcome) {
	if r.onOutcome != nil {
		r.onOutcome(o)
	}
}

// Moderate 修改公共域名状态，只允许在 pending、active、banned 之间流转，且不能回到 pending。
func (r *Registry) Moderate(name string, state domain.DomainState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.fixed[strings.ToLower(name)]; ok {
		return domain.ErrInvalidTransition
	}
	d, ok := r.public[name]
	if !ok {
		return domain.ErrDomainNotFound
	}
	if state != domain.DomainActive && state != domain.DomainBanned {
		return domain.ErrInvalidTransition
	}
	if d.State == state {
		return nil
	}

	now := r.now()
	d.State = state
	d.ModeratedAt = &now
	r.logger.Info("domain moderated", zap.String("domain", name), zap.String("state", string(state)))
	return nil
}

// List 返回公共域名快照，state 为空时返回全部，按提交时间排序。
func (r *Registry) List(state domain.DomainState) []domain.Domain {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Domain, 0, len(r.public))
	for _, d := range r.public {
		if state != "" && d.State != state {
			continue
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
