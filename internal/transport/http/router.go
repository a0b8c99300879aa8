package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ghostmail/internal/config"
	"ghostmail/internal/middleware"
	"ghostmail/internal/monitoring"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Server   config.ServerConfig
	CORS     config.CORSConfig
	Mailbox  MailboxAPI
	Domains  DomainAPI
	Accounts middleware.AccountVerifier
	Metrics  *monitoring.Metrics
	Health   http.Handler // 提供 /live 与 /ready，可为空
	Logger   *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewMetrics()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(monitor.HTTPMetrics())
	router.Use(middleware.SecurityHeaders())
	router.Use(gincors.New(corsConfig(deps.CORS)))

	public := NewPublicHandler(deps.Mailbox, deps.Domains, deps.Logger)
	admin := NewAdminHandler(deps.Domains, deps.Logger)
	accounts := middleware.NewAccountAuth(deps.Accounts, deps.Logger)

	if deps.Health != nil {
		health := gin.WrapH(http.StripPrefix("/health", deps.Health))
		router.GET("/health", func(c *gin.Context) {
			c.Request.URL.Path = "/health/live"
			health(c)
		})
		router.GET("/health/live", health)
		router.GET("/health/ready", health)
	}
	router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))

	api := router.Group("/", middleware.ClientIP(deps.Server.ClientIPHeader))
	{
		api.GET("/generate", accounts.OptionalAuth(), public.Generate)
		api.GET("/generate/:domain", accounts.OptionalAuth(), public.GenerateOn)
		api.GET("/addpublic/*domain", public.AddPublic)
		api.GET("/auth/:token", public.Inbox)
		api.GET("/custom/:token/:domain", accounts.OptionalAuth(), accounts.RequireAccount(), public.CustomInbox)
		api.GET("/stats", public.Stats)

		moderation := api.Group("/admin/domains", accounts.OptionalAuth(), accounts.RequireModerator())
		{
			moderation.GET("", admin.ListDomains)
			moderation.POST("/:name/approve", admin.ApproveDomain)
			moderation.POST("/:name/ban", admin.BanDomain)
		}
	}

	docsURL := deps.Server.DocsURL
	router.NoRoute(func(c *gin.Context) {
		if docsURL == "" {
			c.Status(http.StatusNotFound)
			return
		}
		c.Redirect(http.StatusFound, docsURL)
	})

	return router
}

func corsConfig(cfg config.CORSConfig) gincors.Config {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 允许所有来源时不能携带凭证
	for _, origin := range c.AllowOrigins {
		if origin == "*" {
			c.AllowCredentials = false
			c.AllowAllOrigins = true
			c.AllowOrigins = nil
			break
		}
	}
	return c
}
