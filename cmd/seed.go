package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/devletter/newsletterd/internal/config"
	"github.com/devletter/newsletterd/internal/db"
	"github.com/devletter/newsletterd/internal/model"
	"github.com/devletter/newsletterd/internal/repository"
	"github.com/devletter/newsletterd/internal/util"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscribers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo subscribers...")

		if err := seedSubscribers(cmd.Context(), repository.NewSubscribersRepository(sqlDB)); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedSubscribers upserts deterministic demo subscribers (idempotent on
// email; an existing row keeps its unsubscribe token).
func seedSubscribers(ctx context.Context, subscribers repository.SubscribersRepository) error {
	demo := []model.Subscriber{
		{
			Email:     "backend.fan@example.com",
			Interests: model.Interests{model.CategoryBackend.Label(), model.CategoryDatabase.Label()},
		},
		{
			Email:     "fullstack@example.com",
			Interests: model.Interests{model.CategoryFrontend.Label(), model.CategoryBackend.Label(), model.CategoryNetwork.Label()},
		},
		{
			Email:     "java.dev@example.com",
			Interests: model.Interests{model.CategoryJava.Label(), model.CategorySpring.Label()},
		},
		{
			Email:     "platform@example.com",
			Interests: model.Interests{model.CategoryDevOps.Label(), model.CategoryNetwork.Label()},
		},
		{
			Email:     "ml.curious@example.com",
			Interests: model.Interests{model.CategoryAIML.Label()},
		},
	}

	for _, sub := range demo {
		sub.ID = util.New()
		sub.UnsubscribeToken = util.New()
		if err := subscribers.Upsert(ctx, sub); err != nil {
			return fmt.Errorf("upsert subscriber %q: %w", sub.Email, err)
		}
	}
	return nil
}
