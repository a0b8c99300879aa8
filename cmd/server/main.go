package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ghostmail/internal/auth"
	"ghostmail/internal/config"
	"ghostmail/internal/directory"
	"ghostmail/internal/generator"
	"ghostmail/internal/health"
	"ghostmail/internal/logger"
	"ghostmail/internal/monitoring"
	"ghostmail/internal/ratelimit"
	"ghostmail/internal/registry"
	"ghostmail/internal/service"
	"ghostmail/internal/smtp"
	redisstore "ghostmail/internal/storage/redis"
	httptransport "ghostmail/internal/transport/http"
	"ghostmail/internal/transport/onion"
)

// main 启动同时包含 HTTP API、Tor 前端与 SMTP 的综合服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	log, err := logger.New(logger.FromConfig(cfg.Log))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting ghostmail server",
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
		zap.Strings("builtin_domains", cfg.Mailbox.BuiltinDomains),
		zap.Int("rush_domains", len(cfg.Mailbox.RushDomains)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics()

	// 限流计数器
	var (
		counter     ratelimit.Counter
		redisClient *redisstore.Client
	)
	switch cfg.RateLimit.Backend {
	case "redis":
		redisClient, err = redisstore.New(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		counter = redisstore.NewCounter(redisClient)
		log.Info("using redis rate limit counter", zap.String("address", cfg.Redis.Address))
	default:
		counter = ratelimit.NewMemoryCounter(time.Now)
		log.Info("using in-memory rate limit counter")
	}

	// 邮箱生成与域名提交各用一个限流器，共享同一计数后端
	recordBlock := func(a ratelimit.Action) { metrics.RecordRateLimitBlock(string(a)) }
	generateLimiter := ratelimit.New("generate", counter, generatePolicies(cfg.RateLimit), log)
	generateLimiter.OnBlocked(recordBlock)
	submitLimiter := ratelimit.New("submit", counter, submitPolicies(cfg.RateLimit), log)
	submitLimiter.OnBlocked(recordBlock)

	// 违禁词
	var banned registry.BannedWordSource = registry.StaticBannedWords(nil)
	var bannedFile *registry.FileBannedWords
	if cfg.Domains.BannedWordsFile != "" {
		bannedFile = registry.NewFileBannedWords(cfg.Domains.BannedWordsFile, log)
		if err := bannedFile.Reload(); err != nil {
			log.Error("failed to load banned words, continuing without filter",
				zap.String("path", cfg.Domains.BannedWordsFile), zap.Error(err))
		}
		banned = bannedFile
	}

	reg := registry.New(registry.Options{
		Builtin:     cfg.Mailbox.BuiltinDomains,
		Rush:        cfg.Mailbox.RushDomains,
		BannedWords: banned,
		Limiter:     submitLimiter,
		Logger:      log,
	})
	reg.OnSubmit(func(o registry.SubmitOutcome) { metrics.RecordDomainSubmission(string(o)) })

	dir := directory.New(directory.Options{
		AnonymousTTL:     cfg.Mailbox.AnonymousTTL,
		AuthenticatedTTL: cfg.Mailbox.AuthenticatedTTL,
		MaxAttempts:      cfg.Mailbox.MaxAttempts,
		MaxMessages:      cfg.Mailbox.MaxMessages,
		CustomOneShot:    cfg.Mailbox.CustomOneShot,
	}, reg, generator.New(nil))

	sweeper := directory.NewSweeper(dir, cfg.Mailbox.SweepInterval, log)
	sweeper.OnSweep(metrics.RecordSweep)

	mailboxService := service.NewMailboxService(dir, reg, generateLimiter, metrics, log)
	domainService := service.NewDomainService(reg, log)

	verifier := auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer, time.Now)
	if !verifier.Enabled() {
		log.Warn("auth secret not configured, paid accounts are disabled")
	}

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	healthChecker := health.NewHealthChecker(dir, redisPinger, log)

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Server:   cfg.Server,
		CORS:     cfg.CORS,
		Mailbox:  mailboxService,
		Domains:  domainService,
		Accounts: verifier,
		Metrics:  metrics,
		Health:   healthChecker.Handler(),
		Logger:   log,
	})

	httpAddr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var onionServer *http.Server
	if cfg.Onion.BindAddr != "" {
		onionHandler := onion.NewHandler(mailboxService, cfg.Onion.Hostname, log)
		onionServer = &http.Server{
			Addr:              cfg.Onion.BindAddr,
			Handler:           onion.NewRouter(onionHandler, metrics, log),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}

	smtpBackend := smtp.NewBackend(mailboxService, smtp.Options{
		MaxMessageBytes: cfg.SMTP.MaxMessageBytes,
		MaxRecipients:   cfg.SMTP.MaxRecipients,
		SanitizeHTML:    cfg.SMTP.SanitizeHTML,
		Limiter:         smtp.NewConnectionLimiter(cfg.SMTP.MaxConns, cfg.SMTP.ConnRate, cfg.SMTP.ConnBurst),
		Metrics:         metrics,
		Logger:          log,
	})
	smtpServer := gosmtp.NewServer(smtpBackend)
	smtpServer.Addr = cfg.SMTP.BindAddr
	smtpServer.Domain = cfg.SMTP.Domain
	smtpServer.ReadTimeout = cfg.SMTP.ReadTimeout
	smtpServer.WriteTimeout = cfg.SMTP.WriteTimeout
	smtpServer.MaxMessageBytes = cfg.SMTP.MaxMessageBytes
	smtpServer.MaxRecipients = cfg.SMTP.MaxRecipients

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// Tor 前端 goroutine
	if onionServer != nil {
		group.Go(func() error {
			log.Info("starting onion server",
				zap.String("address", cfg.Onion.BindAddr),
				zap.String("hostname", cfg.Onion.Hostname),
			)
			if err := onionServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("onion server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// SMTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting SMTP server",
			zap.String("address", cfg.SMTP.BindAddr),
			zap.String("domain", cfg.SMTP.Domain),
		)
		if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
			log.Error("SMTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// 过期邮箱清理 goroutine
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	// 违禁词重新加载 goroutine
	if bannedFile != nil {
		group.Go(func() error {
			log.Info("starting banned words reload task", zap.Duration("interval", cfg.Domains.ReloadInterval))
			bannedFile.Run(groupCtx, cfg.Domains.ReloadInterval)
			return nil
		})
	}

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if onionServer != nil {
			if err := onionServer.Shutdown(shutdownCtx); err != nil {
				log.Error("onion server shutdown error", zap.Error(err))
			}
		}
		if err := smtpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("SMTP server shutdown warning", zap.Error(err))
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// generatePolicies 邮箱生成的限流策略
func generatePolicies(cfg config.RateLimitConfig) map[ratelimit.Action]ratelimit.Policy {
	return map[ratelimit.Action]ratelimit.Policy{
		ratelimit.ActionGenerate:        {Limit: cfg.GeneratePerIP, Window: cfg.Window},
		ratelimit.ActionGenerateAccount: {Limit: cfg.GeneratePerAccount, Window: cfg.Window},
		ratelimit.ActionGenerateOnion:   {Limit: cfg.GenerateOnion, Window: cfg.Window},
	}
}

// submitPolicies 公共域名提交的限流策略
func submitPolicies(cfg config.RateLimitConfig) map[ratelimit.Action]ratelimit.Policy {
	return map[ratelimit.Action]ratelimit.Policy{
		ratelimit.ActionSubmitDomain: {Limit: cfg.SubmitPerIP, Window: cfg.SubmitWindow},
	}
}
