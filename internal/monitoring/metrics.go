package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标，注册在独立的 Registry 上
type Metrics struct {
	registry *prometheus.Registry

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 邮箱指标
	MailboxesCreated *prometheus.CounterVec
	MailboxesExpired prometheus.Counter
	MailboxesLive    prometheus.Gauge
	CreateFailures   *prometheus.CounterVec

	// 邮件指标
	MessagesReceived prometheus.Counter
	MessagesDropped  *prometheus.CounterVec
	MessagesRead     prometheus.Counter

	// 限流与域名
	RateLimitBlocks   *prometheus.CounterVec
	DomainSubmissions *prometheus.CounterVec

	// SMTP
	SMTPSessions prometheus.Counter

	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostmail_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ghostmail_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		MailboxesCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostmail_mailboxes_created_total",
				Help: "Total number of mailboxes created",
			},
			[]string{"owner", "source"},
		),
		MailboxesExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "ghostmail_mailboxes_expired_total",
			Help: "Total number of mailboxes removed by the sweeper",
		}),
		MailboxesLive: f.NewGauge(prometheus.GaugeOpts{
			Name: "ghostmail_mailboxes_live",
			Help: "Number of mailboxes currently in the directory",
		}),
		CreateFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostmail_mailbox_create_failures_total",
				Help: "Mailbox creation failures by reason",
			},
			[]string{"reason"},
		),

		MessagesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "ghostmail_messages_received_total",
			Help: "Total number of messages stored in a mailbox",
		}),
		MessagesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostmail_messages_dropped_total",
				Help: "Inbound messages that were discarded",
			},
			[]string{"reason"},
		),
		MessagesRead: f.NewCounter(prometheus.CounterOpts{
			Name: "ghostmail_messages_read_total",
			Help: "Total number of messages returned to clients",
		}),

		RateLimitBlocks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostmail_rate_limit_blocks_total",
				Help: "Requests denied by a rate limiter",
			},
			[]string{"action"},
		),
		DomainSubmissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ghostmail_domain_submissions_total",
				Help: "Public domain submissions by outcome",
			},
			[]string{"outcome"},
		),

		SMTPSessions: f.NewCounter(prometheus.CounterOpts{
			Name: "ghostmail_smtp_sessions_total",
			Help: "Total number of SMTP sessions",
		}),

		PanicsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ghostmail_panics_total",
			Help: "Total number of recovered panics",
		}),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMailboxCreated 记录邮箱创建
func (m *Metrics) RecordMailboxCreated(owner, source string) {
	m.MailboxesCreated.WithLabelValues(owner, source).Inc()
}

// RecordCreateFailure 记录邮箱创建失败
func (m *Metrics) RecordCreateFailure(reason string) {
	m.CreateFailures.WithLabelValues(reason).Inc()
}

// RecordSweep 记录一轮清理结果
func (m *Metrics) RecordSweep(removed, live int) {
	m.MailboxesExpired.Add(float64(removed))
	m.MailboxesLive.Set(float64(live))
}

// UpdateMailboxesLive 更新当前邮箱数
func (m *Metrics) UpdateMailboxesLive(count int) {
	m.MailboxesLive.Set(float64(count))
}

// RecordMessageReceived 记录邮件投递成功
func (m *Metrics) RecordMessageReceived() {
	m.MessagesReceived.Inc()
}

// RecordMessageDropped 记录被丢弃的邮件
func (m *Metrics) RecordMessageDropped(reason string) {
	m.MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordMessagesRead 记录返回给客户端的邮件数
func (m *Metrics) RecordMessagesRead(n int) {
	m.MessagesRead.Add(float64(n))
}

// RecordRateLimitBlock 记录限流拒绝
func (m *Metrics) RecordRateLimitBlock(action string) {
	m.RateLimitBlocks.WithLabelValues(action).Inc()
}

// RecordDomainSubmission 记录域名提交结果
func (m *Metrics) RecordDomainSubmission(outcome string) {
	m.DomainSubmissions.WithLabelValues(outcome).Inc()
}

// RecordSMTPSession 记录 SMTP 会话
func (m *Metrics) RecordSMTPSession() {
	m.SMTPSessions.Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// Registry 返回底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler 返回 /metrics 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
