package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/devletter/newsletterd/internal/config"
	"github.com/devletter/newsletterd/internal/genai"
	"github.com/devletter/newsletterd/internal/http/middleware"
	"github.com/devletter/newsletterd/internal/mailer"
	"github.com/devletter/newsletterd/internal/metrics"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/service/newsletter"
	"github.com/jmoiron/sqlx"
	echo "github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var nowFunc = time.Now

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	issuesRepo := repository.NewIssuesRepository(mysqlDB)
	subscribersRepo := repository.NewSubscribersRepository(mysqlDB)
	deliveriesRepo := repository.NewDeliveriesRepository(mysqlDB)

	// repos (ClickHouse, optional)
	var logRepo repository.DeliveryLogRepository
	if clickhouseDB != nil {
		logRepo = repository.NewDeliveryLogRepository(clickhouseDB)
	}

	// collaborators
	var mailClient mailer.BatchClient
	if cfg.Resend.APIKey != "" {
		mailClient = mailer.NewResend(cfg.Resend.APIKey, cfg.Resend.Timeout)
	}
	var aiClient genai.Client
	if cfg.Gemini.APIKey != "" {
		aiClient = genai.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries)
	}

	// pipeline
	runner := &newsletter.Runner{
		Issues:   issuesRepo,
		IssueSvc: newsletter.NewIssueService(issuesRepo, aiClient, cfg.Gemini.Timeout),
		Resolver: &newsletter.Resolver{
			Subscribers: subscribersRepo,
			Deliveries:  deliveriesRepo,
			Issues:      issuesRepo,
		},
		Sender: &newsletter.Sender{
			Deliveries:  deliveriesRepo,
			Subscribers: subscribersRepo,
			Issues:      issuesRepo,
			Mail:        mailClient,
			DeliveryLog: logRepo,
			BaseURL:     cfg.Delivery.BaseURL,
			SenderEmail: cfg.Delivery.SenderEmail,
			BatchSize:   cfg.Delivery.BatchSize,
			MaxAttempts: cfg.Delivery.MaxAttempts,
		},
		CycleStart:         cfg.Cron.CycleStartDate(),
		BacklogWindowDays:  cfg.Cron.BacklogWindowDays,
		BacklogConcurrency: cfg.Cron.BacklogConcurrency,
	}

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})
	secretMW := middleware.SecretMiddleware(cfg.Cron.Secret)

	// routes
	v1 := e.Group("/v1")
	v1.POST("/subscribe", subscribeHandler(subscribersRepo), rlMW)
	v1.GET("/unsubscribe", unsubscribeHandler(subscribersRepo), rlMW)
	v1.POST("/cron/newsletter", runCronHandler(runner), secretMW)
	v1.GET("/reports/issues", issueStatsHandler(issuesRepo), secretMW)
	if logRepo != nil {
		v1.GET("/reports/deliveries", listDeliveryLogHandler(logRepo), secretMW)
	}

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
