package smtp

import (
	"bytes"
	"io"
	"strings"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/jhillyerd/enmime/v2"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"ghostmail/internal/domain"
	"ghostmail/internal/monitoring"
)

// Deliverer 接收解析后的邮件
type Deliverer interface {
	Deliver(msg domain.Message)
}

// Options SMTP 后端参数
type Options struct {
	MaxMessageBytes int64
	MaxRecipients   int
	SanitizeHTML    bool
	Limiter         *ConnectionLimiter // 为空时不限制连接
	Metrics         *monitoring.Metrics
	Logger          *zap.Logger
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收邮件，不做中继。任何语法合法的收件人都会被接受，
// 收件人是否存在只在投递时判断，对外不暴露邮箱是否存在。
type Backend struct {
	deliverer Deliverer
	opts      Options
	policy    *bluemonday.Policy
	validator *domain.EmailValidator
	logger    *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(deliverer Deliverer, opts Options) *Backend {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 10 << 20
	}
	b := &Backend{
		deliverer: deliverer,
		opts:      opts,
		validator: domain.NewEmailValidator(),
		logger:    opts.Logger,
	}
	if opts.SanitizeHTML {
		b.policy = bluemonday.UGCPolicy()
	}
	return b
}

// NewSession 创建新的 SMTP 会话，超出连接限制时返回 421。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.opts.Limiter != nil && !b.opts.Limiter.Acquire() {
		b.logger.Warn("smtp connection rejected", zap.String("remote", remoteAddr(c)))
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	b.opts.Metrics.RecordSMTPSession()
	return &session{backend: b, remote: remoteAddr(c)}, nil
}

func remoteAddr(c *gosmtp.Conn) string {
	if c == nil || c.Conn() == nil {
		return ""
	}
	return c.Conn().RemoteAddr().String()
}

type session struct {
	backend     *Backend
	remote      string
	fromAddress string
	recipients  []string
	released    bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令，只校验地址语法与收件人数量。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	if err := s.backend.validator.ValidateEmail(addr); err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if n := s.backend.opts.MaxRecipients; n > 0 && len(s.recipients) >= n {
		return &gosmtp.SMTPError{
			Code:         452,
			EnhancedCode: gosmtp.EnhancedCode{4, 5, 3},
			Message:      "too many recipients",
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 读取邮件内容并按收件人逐一投递。
func (s *session) Data(r io.Reader) error {
	limit := s.backend.opts.MaxMessageBytes
	raw, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > limit {
		s.backend.opts.Metrics.RecordMessageDropped("too_large")
		return &gosmtp.SMTPError{
			Code:         552,
			EnhancedCode: gosmtp.EnhancedCode{5, 3, 4},
			Message:      "message too large",
		}
	}

	msg := s.backend.parse(raw, s.fromAddress)
	for _, rcpt := range s.recipients {
		m := msg
		m.To = rcpt
		s.backend.deliverer.Deliver(m)
	}

	s.backend.logger.Debug("smtp message accepted",
		zap.String("remote", s.remote),
		zap.String("from", s.fromAddress),
		zap.Int("recipients", len(s.recipients)),
		zap.Int("bytes", len(raw)))
	return nil
}

// parse 解析 MIME 邮件，解析失败时把原文当作纯文本正文。
func (b *Backend) parse(raw []byte, envelopeFrom string) domain.Message {
	msg := domain.Message{From: envelopeFrom}

	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		b.logger.Debug("failed to parse message, storing raw body", zap.Error(err))
		msg.Body = string(raw)
		return msg
	}

	msg.Subject = env.GetHeader("Subject")
	if list, err := env.AddressList("From"); err == nil && len(list) > 0 {
		msg.From = list[0].String()
	} else if from := env.GetHeader("From"); from != "" {
		msg.From = from
	}
	msg.Body = env.Text
	msg.HTML = env.HTML
	if b.policy != nil && msg.HTML != "" {
		msg.HTML = b.policy.Sanitize(msg.HTML)
	}
	return msg
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，归还连接许可。
func (s *session) Logout() error {
	if !s.released && s.backend.opts.Limiter != nil {
		s.backend.opts.Limiter.Release()
	}
	s.released = true
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	addr = strings.Trim(addr, "<>")
	return domain.NormalizeAddress(addr)
}
