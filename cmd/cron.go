package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devletter/newsletterd/internal/config"
	"github.com/devletter/newsletterd/internal/db"
	"github.com/devletter/newsletterd/internal/genai"
	"github.com/devletter/newsletterd/internal/logger"
	"github.com/devletter/newsletterd/internal/mailer"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/service/newsletter"
	"github.com/jmoiron/sqlx"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCronCmd returns the parent "cron" command.
func newCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Run the daily newsletter pipeline",
	}
	cmd.AddCommand(newCronRunCmd())
	cmd.AddCommand(cronStartCmd)

	return cmd
}

// newCronRunCmd fires one pipeline pass and prints the summary as JSON.
func newCronRunCmd() *cobra.Command {
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one pipeline pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level)

			runner, cleanup, err := buildRunner(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var date time.Time
			if dateFlag != "" {
				date, err = time.ParseInLocation("2006-01-02", dateFlag, time.Local)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
			}

			summary, err := runner.Run(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("cron run: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}
	cmd.Flags().StringVar(&dateFlag, "date", "", "override run date (YYYY-MM-DD, default: today)")

	return cmd
}

// cronStartCmd runs the pipeline on the configured schedule until signalled.
var cronStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the pipeline on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger.Init(cfg.Log.Level)

		runner, cleanup, err := buildRunner(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		c := cron.New()
		_, err = c.AddFunc(cfg.Cron.Spec, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()

			summary, err := runner.Run(ctx, time.Time{})
			if err != nil {
				logger.Log.Error("scheduled run failed", zap.Error(err))
				return
			}
			logger.Log.Info("scheduled run finished",
				zap.String("issue_id", summary.Issue.ID),
				zap.String("category", summary.Issue.Category.String()),
				zap.Int("sent", summary.Send.Sent),
			)
		})
		if err != nil {
			return fmt.Errorf("cron spec %q: %w", cfg.Cron.Spec, err)
		}

		c.Start()
		logger.Log.Info("cron scheduler started", zap.String("spec", cfg.Cron.Spec))

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Log.Info("signal received, stopping scheduler", zap.String("signal", sig.String()))

		// wait for an in-flight run to finish
		<-c.Stop().Done()
		return nil
	},
}

// buildRunner wires the pipeline the same way the HTTP server does, minus
// the server itself.
func buildRunner(cfg config.Config) (*newsletter.Runner, func(), error) {
	mysqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
		PingTimeout:     cfg.MySQL.PingTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connect: %w", err)
	}

	var chDB *sqlx.DB
	if cfg.ClickHouse.DSN != "" {
		chDB, err = db.NewClickHouseConnection(db.ClickHouseOpts{
			DSN:             cfg.ClickHouse.DSN,
			MaxOpenConns:    cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns:    cfg.ClickHouse.MaxIdleConns,
			ConnMaxLifetime: cfg.ClickHouse.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ClickHouse.ConnMaxIdleTime,
			PingTimeout:     cfg.ClickHouse.PingTimeout,
		})
		if err != nil {
			mysqlDB.Close()
			return nil, nil, fmt.Errorf("clickhouse connect: %w", err)
		}
	}

	cleanup := func() {
		_ = mysqlDB.Close()
		if chDB != nil {
			_ = chDB.Close()
		}
	}

	issuesRepo := repository.NewIssuesRepository(mysqlDB)
	subscribersRepo := repository.NewSubscribersRepository(mysqlDB)
	deliveriesRepo := repository.NewDeliveriesRepository(mysqlDB)

	var logRepo repository.DeliveryLogRepository
	if chDB != nil {
		logRepo = repository.NewDeliveryLogRepository(chDB)
	}

	var mailClient mailer.BatchClient
	if cfg.Resend.APIKey != "" {
		mailClient = mailer.NewResend(cfg.Resend.APIKey, cfg.Resend.Timeout)
	}
	var aiClient genai.Client
	if cfg.Gemini.APIKey != "" {
		aiClient = genai.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries)
	}

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

	return runner, cleanup, nil
}
