package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host           string `validate:"required"`              // 监听地址，默认 "0.0.0.0"
	Port           int    `validate:"min=1,max=65535"`       // 监听端口，默认 8080
	ClientIPHeader string                                    // 读取客户端 IP 的请求头，留空时使用连接地址
	DocsURL        string `validate:"omitempty,url"`         // 未知路径重定向到的文档地址
}

// OnionConfig 定义 Tor 隐藏服务前端配置
type OnionConfig struct {
	BindAddr string                                    // 监听地址，留空表示不启用
	Hostname string `validate:"required_with=BindAddr"` // .onion 主机名，用于生成跳转地址
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	BindAddr        string        `validate:"required"` // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain          string        `validate:"required"` // SMTP 服务器域名，用于 HELO/EHLO 响应
	MaxMessageBytes int64         `validate:"min=1024"` // 单封邮件最大字节数
	MaxRecipients   int           `validate:"min=1"`    // 单封邮件最大收件人数
	MaxConns        int           `validate:"min=1"`    // 最大并发连接数
	ConnRate        float64       `validate:"gte=0"`    // 每秒允许新建连接数，0 表示不限
	ConnBurst       int           `validate:"min=1"`    // 新建连接突发量
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	SanitizeHTML    bool                                // 是否清洗 HTML 正文
}

// MailboxConfig 定义邮箱目录的核心业务配置
type MailboxConfig struct {
	BuiltinDomains   []string      `validate:"min=1,dive,required"` // 内置域名
	RushDomains      []string      `validate:"dive,required"`       // 轮换域名
	AnonymousTTL     time.Duration `validate:"gt=0"`                // 匿名邮箱生存时间
	AuthenticatedTTL time.Duration `validate:"gt=0"`                // 认证账号邮箱生存时间
	MaxMessages      int           `validate:"min=1"`               // 单个邮箱最多保留的邮件数
	MaxAttempts      int           `validate:"min=1"`               // 生成地址时的最大重试次数
	SweepInterval    time.Duration `validate:"gt=0"`                // 过期清理间隔
	CustomOneShot    bool                                           // 自定义域名收件箱读取后立即删除
}

// DomainsConfig 定义公共域名审核相关配置
type DomainsConfig struct {
	BannedWordsFile string                          // 违禁词文件路径，留空表示不过滤
	ReloadInterval  time.Duration `validate:"gt=0"` // 违禁词重新加载间隔
}

// RateLimitConfig 定义限流配额，Limit 为 0 表示不限
type RateLimitConfig struct {
	Backend            string        `validate:"oneof=memory redis"`
	Window             time.Duration `validate:"gt=0"` // 邮箱生成的统计窗口
	GeneratePerIP      int64         `validate:"gte=0"`
	GeneratePerAccount int64         `validate:"gte=0"`
	GenerateOnion      int64         `validate:"gte=0"`
	SubmitPerIP        int64         `validate:"gte=0"`
	SubmitWindow       time.Duration `validate:"gt=0"` // 域名提交的统计窗口
}

// AuthConfig 定义账号令牌校验配置，Secret 为空时不启用账号
type AuthConfig struct {
	Secret string `validate:"omitempty,min=32"`
	Issuer string `validate:"required"`
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string `validate:"oneof=debug info warn error"` // 日志级别
	Development bool                                            // 开发模式: 启用彩色输出和详细堆栈信息
	File        string                                          // 日志文件路径，留空只输出到标准输出
	MaxSizeMB   int    `validate:"min=1"`
	MaxBackups  int    `validate:"gte=0"`
	MaxAgeDays  int    `validate:"gte=0"`
}

// RedisConfig 定义 Redis 配置，仅在限流后端为 redis 时使用
type RedisConfig struct {
	Address  string `validate:"required"` // Redis 服务地址，格式 "host:port"
	Password string                       // Redis 认证密码，留空表示无密码
	DB       int    `validate:"gte=0"`    // Redis 数据库编号
}

// Config 是系统配置的根结构体
type Config struct {
	Server    ServerConfig
	Onion     OnionConfig
	SMTP      SMTPConfig
	Mailbox   MailboxConfig
	Domains   DomainsConfig
	RateLimit RateLimitConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Log       LogConfig
	Redis     RedisConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: GHOSTMAIL_，例如 GHOSTMAIL_SERVER_PORT、GHOSTMAIL_MAILBOX_BUILTIN_DOMAINS
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("ghostmail")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			ClientIPHeader: v.GetString("server.client_ip_header"),
			DocsURL:        v.GetString("server.docs_url"),
		},
		Onion: OnionConfig{
			BindAddr: v.GetString("onion.bind_addr"),
			Hostname: v.GetString("onion.hostname"),
		},
		SMTP: SMTPConfig{
			BindAddr:        v.GetString("smtp.bind_addr"),
			Domain:          v.GetString("smtp.domain"),
			MaxMessageBytes: v.GetInt64("smtp.max_message_bytes"),
			MaxRecipients:   v.GetInt("smtp.max_recipients"),
			MaxConns:        v.GetInt("smtp.max_conns"),
			ConnRate:        v.GetFloat64("smtp.conn_rate"),
			ConnBurst:       v.GetInt("smtp.conn_burst"),
			SanitizeHTML:    v.GetBool("smtp.sanitize_html"),
		},
		Mailbox: MailboxConfig{
			BuiltinDomains: parseDomains(v.GetString("mailbox.builtin_domains")),
			RushDomains:    parseDomains(v.GetString("mailbox.rush_domains")),
			MaxMessages:    v.GetInt("mailbox.max_messages"),
			MaxAttempts:    v.GetInt("mailbox.max_attempts"),
			CustomOneShot:  v.GetBool("mailbox.custom_one_shot"),
		},
		Domains: DomainsConfig{
			BannedWordsFile: v.GetString("domains.banned_words_file"),
		},
		RateLimit: RateLimitConfig{
			Backend:            strings.ToLower(v.GetString("rate_limit.backend")),
			GeneratePerIP:      v.GetInt64("rate_limit.generate_per_ip"),
			GeneratePerAccount: v.GetInt64("rate_limit.generate_per_account"),
			GenerateOnion:      v.GetInt64("rate_limit.generate_onion"),
			SubmitPerIP:        v.GetInt64("rate_limit.submit_per_ip"),
		},
		Auth: AuthConfig{
			Secret: v.GetString("auth.secret"),
			Issuer: v.GetString("auth.issuer"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(v.GetString("cors.allowed_origins")),
		},
		Log: LogConfig{
			Level:       strings.ToLower(v.GetString("log.level")),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSizeMB:   v.GetInt("log.max_size_mb"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAgeDays:  v.GetInt("log.max_age_days"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"smtp.read_timeout", &cfg.SMTP.ReadTimeout},
		{"smtp.write_timeout", &cfg.SMTP.WriteTimeout},
		{"mailbox.anonymous_ttl", &cfg.Mailbox.AnonymousTTL},
		{"mailbox.authenticated_ttl", &cfg.Mailbox.AuthenticatedTTL},
		{"mailbox.sweep_interval", &cfg.Mailbox.SweepInterval},
		{"domains.reload_interval", &cfg.Domains.ReloadInterval},
		{"rate_limit.window", &cfg.RateLimit.Window},
		{"rate_limit.submit_window", &cfg.RateLimit.SubmitWindow},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.client_ip_header", "CF-Connecting-IP")
	v.SetDefault("server.docs_url", "https://github.com/ghostmail/ghostmail#api")
	v.SetDefault("onion.bind_addr", "")
	v.SetDefault("onion.hostname", "")
	v.SetDefault("smtp.bind_addr", ":25")
	v.SetDefault("smtp.domain", "ghost.mail")
	v.SetDefault("smtp.max_message_bytes", 10*1024*1024)
	v.SetDefault("smtp.max_recipients", 50)
	v.SetDefault("smtp.max_conns", 500)
	v.SetDefault("smtp.conn_rate", 50)
	v.SetDefault("smtp.conn_burst", 100)
	v.SetDefault("smtp.read_timeout", "60s")
	v.SetDefault("smtp.write_timeout", "60s")
	v.SetDefault("smtp.sanitize_html", true)
	v.SetDefault("mailbox.builtin_domains", "ghost.mail")
	v.SetDefault("mailbox.rush_domains", "")
	v.SetDefault("mailbox.anonymous_ttl", "1h")
	v.SetDefault("mailbox.authenticated_ttl", "10h")
	v.SetDefault("mailbox.max_messages", 100)
	v.SetDefault("mailbox.max_attempts", 8)
	v.SetDefault("mailbox.sweep_interval", "1m")
	v.SetDefault("mailbox.custom_one_shot", false)
	v.SetDefault("domains.banned_words_file", "")
	v.SetDefault("domains.reload_interval", "5m")
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("rate_limit.generate_per_ip", 10)
	v.SetDefault("rate_limit.generate_per_account", 100)
	v.SetDefault("rate_limit.generate_onion", 60)
	v.SetDefault("rate_limit.submit_per_ip", 5)
	v.SetDefault("rate_limit.submit_window", "1h")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "ghostmail")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
}

// Validate 按结构体标签校验配置
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：
//  1. 当前目录的 .env
//  2. 父目录的 .env
//
// 文件不存在时静默忽略，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
