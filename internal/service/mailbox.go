package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ghostmail/internal/auth"
	"ghostmail/internal/directory"
	"ghostmail/internal/domain"
	"ghostmail/internal/monitoring"
	"ghostmail/internal/ratelimit"
)

// Directory 邮箱目录
type Directory interface {
	Create(in directory.CreateInput) (*domain.Mailbox, error)
	AddMail(msg domain.Message) bool
	ReadAndClear(token string) ([]domain.Message, bool)
	ReadCustom(token, domainName string) []domain.Message
	ConnectedCount() int
	ReceivedCount() int64
}

// RushSource 提供轮换域名和自定义收件箱的域名比较形式
type RushSource interface {
	RandomRushDomain() (string, error)
	NormalizeForAuth(name string) string
}

// Limiter 生成邮箱限流
type Limiter interface {
	Check(ctx context.Context, key string, action ratelimit.Action) bool
}

// Source 请求来源，用于指标区分
type Source string

const (
	SourceHTTP  Source = "http"
	SourceOnion Source = "onion"
)

// GenerateInput 创建邮箱请求
type GenerateInput struct {
	Domain   string        // 指定域名，留空使用默认域名
	Rush     bool          // 使用随机轮换域名
	ClientIP string        // 匿名请求的限流 key
	Account  *auth.Account // 已认证账号，可为空
	Source   Source
}

// Stats 服务统计
type Stats struct {
	LiveMailboxes    int   `json:"clients_connected"`
	MessagesReceived int64 `json:"emails_received"`
}

// MailboxService 封装邮箱创建、收件与查询。
type MailboxService struct {
	dir     Directory
	rush    RushSource
	limiter Limiter
	metrics *monitoring.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewMailboxService 创建邮箱业务服务。
func NewMailboxService(dir Directory, rush RushSource, limiter Limiter, metrics *monitoring.Metrics, logger *zap.Logger) *MailboxService {
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MailboxService{
		dir:     dir,
		rush:    rush,
		limiter: limiter,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate 创建新的临时邮箱并返回地址和令牌。
//
// 已认证请求只按账号限流；Tor 请求共用一个 key；其余按客户端 IP。
func (s *MailboxService) Generate(ctx context.Context, in GenerateInput) (*domain.Credentials, error) {
	key, action := in.ClientIP, ratelimit.ActionGenerate
	switch {
	case in.Account != nil:
		key, action = in.Account.ID, ratelimit.ActionGenerateAccount
	case in.Source == SourceOnion:
		key, action = ratelimit.OnionKey, ratelimit.ActionGenerateOnion
	}
	if !s.limiter.Check(ctx, key, action) {
		s.metrics.RecordCreateFailure("rate_limited")
		return nil, domain.ErrRateLimited
	}

	name := in.Domain
	if in.Rush {
		if s.rush == nil {
			s.metrics.RecordCreateFailure("no_domains")
			return nil, domain.ErrNoDomainsAvailable
		}
		rush, err := s.rush.RandomRushDomain()
		if err != nil {
			s.metrics.RecordCreateFailure("no_domains")
			return nil, err
		}
		name = rush
	}

	input := directory.CreateInput{Domain: name}
	if in.Account != nil {
		input.Authenticated = true
		input.AccountID = in.Account.ID
	}

	mb, err := s.dir.Create(input)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAddressSpaceExhausted):
			s.logger.Error("mailbox address space exhausted",
				zap.String("domain", name), zap.Error(err))
			s.metrics.RecordCreateFailure("exhausted")
		case errors.Is(err, domain.ErrInvalidDomain):
			s.metrics.RecordCreateFailure("invalid_domain")
		case errors.Is(err, domain.ErrNoDomainsAvailable):
			s.logger.Error("no builtin domains configured")
			s.metrics.RecordCreateFailure("no_domains")
		}
		return nil, err
	}

	s.metrics.RecordMailboxCreated(string(mb.Owner), sourceLabel(in.Source))
	s.metrics.UpdateMailboxesLive(s.dir.ConnectedCount())
	s.logger.Debug("mailbox created",
		zap.String("address", mb.Address),
		zap.String("owner", string(mb.Owner)),
		zap.Time("expiresAt", mb.ExpiresAt))

	return &domain.Credentials{Address: mb.Address, Token: mb.Token}, nil
}

func sourceLabel(s Source) string {
	if s == "" {
		return string(SourceHTTP)
	}
	return string(s)
}

// PollInbox 取出自上次查询以来收到的邮件，令牌无效时第二个返回值为 false。
func (s *MailboxService) PollInbox(token string) ([]domain.Message, bool) {
	msgs, ok := s.dir.ReadAndClear(token)
	if ok {
		s.metrics.RecordMessagesRead(len(msgs))
	}
	return msgs, ok
}

// PollCustomInbox 按令牌和自定义域名取出邮件，不匹配时返回空列表。
func (s *MailboxService) PollCustomInbox(token, domainName string) []domain.Message {
	if s.rush != nil {
		domainName = s.rush.NormalizeForAuth(domainName)
	}
	msgs := s.dir.ReadCustom(token, domainName)
	s.metrics.RecordMessagesRead(len(msgs))
	return msgs
}

// Stats 返回当前邮箱数和已收邮件数。
func (s *MailboxService) Stats() Stats {
	return Stats{
		LiveMailboxes:    s.dir.ConnectedCount(),
		MessagesReceived: s.dir.ReceivedCount(),
	}
}

// Deliver 把一封入站邮件交给目录，收件人不存在时静默丢弃。
func (s *MailboxService) Deliver(msg domain.Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now().UTC()
	}

	if !s.dir.AddMail(msg) {
		s.metrics.RecordMessageDropped("unknown_recipient")
		s.logger.Debug("dropping message for unknown recipient", zap.String("to", msg.To))
		return
	}
	s.metrics.RecordMessageReceived()
}
