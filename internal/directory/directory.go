// Package directory 是临时邮箱的内存目录：分配地址与令牌、保存收到的邮件、清理过期邮箱。
package directory

import (
	"sync"
	"sync/atomic"
	"time"

	"ghostmail/internal/domain"
)

// DomainChecker 判断域名是否可用，可用时返回其规范形式
type DomainChecker interface {
	Resolve(name string) (string, bool)
	DefaultDomain() (string, error)
}

// IDGenerator 生成本地部分和令牌
type IDGenerator interface {
	NewToken() string
	NewLocalPart() string
}

// Options 目录参数
type Options struct {
	AnonymousTTL     time.Duration
	AuthenticatedTTL time.Duration
	MaxAttempts      int
	MaxMessages      int
	CustomOneShot    bool
	Now              func() time.Time
}

// CreateInput 创建邮箱参数，Domain 为空时使用默认内置域名
type CreateInput struct {
	Domain        string
	Authenticated bool
	AccountID     string
}

// Directory 用一把读写锁保护令牌索引、地址索引和每个邮箱的邮件列表。
type Directory struct {
	mu        sync.RWMutex
	byToken   map[string]*domain.Mailbox
	byAddress map[string]*domain.Mailbox

	domains  DomainChecker
	gen      IDGenerator
	opts     Options
	received atomic.Int64
}

// New 创建邮箱目录
func New(opts Options, domains DomainChecker, gen IDGenerator) *Directory {
	if opts.AnonymousTTL <= 0 {
		opts.AnonymousTTL = time.Hour
	}
	if opts.AuthenticatedTTL <= 0 {
		opts.AuthenticatedTTL = 10 * time.Hour
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 8
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Directory{
		byToken:   make(map[string]*domain.Mailbox),
		byAddress: make(map[string]*domain.Mailbox),
		domains:   domains,
		gen:       gen,
		opts:      opts,
	}
}

// Create 分配一个新邮箱。返回值带有令牌，这是令牌唯一一次对外暴露。
func (d *Directory) Create(in CreateInput) (*domain.Mailbox, error) {
	name := in.Domain
	if name == "" {
		def, err := d.domains.DefaultDomain()
		if err != nil {
			return nil, err
		}
		name = def
	} else {
		canonical, ok := d.domains.Resolve(name)
		if !ok {
			return nil, domain.ErrInvalidDomain
		}
		name = canonical
	}

	owner, ttl := domain.OwnerAnonymous, d.opts.AnonymousTTL
	if in.Authenticated {
		owner, ttl = domain.OwnerAccount, d.opts.AuthenticatedTTL
	}

	for attempt := 0; attempt < d.opts.MaxAttempts; attempt++ {
		localPart := d.gen.NewLocalPart()
		token := d.gen.NewToken()
		address := domain.NormalizeAddress(localPart + "@" + name)

		if mb, ok := d.insert(address, token, func(now time.Time) *domain.Mailbox {
			return &domain.Mailbox{
				Address:   address,
				LocalPart: localPart,
				Domain:    name,
				Token:     token,
				Owner:     owner,
				AccountID: in.AccountID,
				CreatedAt: now,
				ExpiresAt: now.Add(ttl),
			}
		}); ok {
			out := *mb
			out.Messages = nil
			return &out, nil
		}
	}
	return nil, domain.ErrAddressSpaceExhausted
}

// insert 在写锁内检查地址和令牌是否被占用，未占用时写入。过期未清理的占用者直接移除。
func (d *Directory) insert(address, token string, build func(now time.Time) *domain.Mailbox) (*domain.Mailbox, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.opts.Now()
	if mb, ok := d.byAddress[address]; ok {
		if !mb.ExpiredAt(now) {
			return nil, false
		}
		d.deleteLocked(mb)
	}
	if mb, ok := d.byToken[token]; ok {
		if !mb.ExpiredAt(now) {
			return nil, false
		}
		d.deleteLocked(mb)
	}

	mb := build(now)
	d.byToken[token] = mb
	d.byAddress[address] = mb
	return mb, true
}

// AddMail 把邮件放入收件人对应的邮箱。收件人不存在或已过期时静默丢弃并返回 false。
func (d *Directory) AddMail(msg domain.Message) bool {
	msg.To = domain.NormalizeAddress(msg.To)

	d.mu.Lock()
	defer d.mu.Unlock()

	mb, ok := d.byAddress[msg.To]
	if !ok || mb.ExpiredAt(d.opts.Now()) {
		return false
	}

	mb.Messages = append(mb.Messages, msg)
	if over := len(mb.Messages) - d.opts.MaxMessages; over > 0 {
		// 超出上限时丢弃最旧的邮件
		n := copy(mb.Messages, mb.Messages[over:])
		clear(mb.Messages[n:])
		mb.Messages = mb.Messages[:n]
	}
	d.received.Add(1)
	return true
}

// ReadAndClear 取出并清空邮箱内的全部邮件。令牌不存在或已过期返回 false。
func (d *Directory) ReadAndClear(token string) ([]domain.Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	mb, ok := d.byToken[token]
	if !ok || mb.ExpiredAt(d.opts.Now()) {
		return nil, false
	}
	return drainLocked(mb), true
}

// ReadCustom 只在邮箱域名与 domainName 完全一致时取出并清空邮件，否则返回空列表。
func (d *Directory) ReadCustom(token, domainName string) []domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()

	mb, ok := d.byToken[token]
	if !ok || mb.ExpiredAt(d.opts.Now()) || mb.Domain != domainName {
		return []domain.Message{}
	}

	msgs := drainLocked(mb)
	if d.opts.CustomOneShot {
		d.deleteLocked(mb)
	}
	return msgs
}

func drainLocked(mb *domain.Mailbox) []domain.Message {
	msgs := mb.Messages
	mb.Messages = nil
	if msgs == nil {
		return []domain.Message{}
	}
	return msgs
}

// ConnectedCount 当前未过期的邮箱数量
func (d *Directory) ConnectedCount() int {
	now := d.opts.Now()

	d.mu.RLock()
	defer d.mu.RUnlock()

	n := 0
	for _, mb := range d.byToken {
		if !mb.ExpiredAt(now) {
			n++
		}
	}
	return n
}

// ReceivedCount 启动以来成功投递的邮件数
func (d *Directory) ReceivedCount() int64 {
	return d.received.Load()
}

// SweepExpired 删除全部过期邮箱并返回删除数量。
// 先在读锁下找出候选，再逐个在写锁下复查后删除。
func (d *Directory) SweepExpired() int {
	now := d.opts.Now()

	d.mu.RLock()
	var expired []string
	for token, mb := range d.byToken {
		if mb.ExpiredAt(now) {
			expired = append(expired, token)
		}
	}
	d.mu.RUnlock()

	removed := 0
	for _, token := range expired {
		d.mu.Lock()
		if mb, ok := d.byToken[token]; ok && mb.ExpiredAt(now) {
			d.deleteLocked(mb)
			removed++
		}
		d.mu.Unlock()
	}
	return removed
}

func (d *Directory) deleteLocked(mb *domain.Mailbox) {
	if cur, ok := d.byToken[mb.Token]; ok && cur == mb {
		delete(d.byToken, mb.Token)
	}
	if cur, ok := d.byAddress[mb.Address]; ok && cur == mb {
		delete(d.byAddress, mb.Address)
	}
}
