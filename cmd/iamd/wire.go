package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	goIAM "github.com/MrEthical07/goIAM"
	"github.com/MrEthical07/goIAM/account"
	"github.com/MrEthical07/goIAM/events/kafka"
	"github.com/MrEthical07/goIAM/internal/logging"
	"github.com/MrEthical07/goIAM/mailer"
	"github.com/MrEthical07/goIAM/store/memory"
	"github.com/MrEthical07/goIAM/store/mongo"
	"github.com/MrEthical07/goIAM/store/postgres"
	"github.com/MrEthical07/goIAM/store/sqlite"
)

// openStore opens the configured account store and runs its migrations.
// The returned func releases the connection.
func openStore(ctx context.Context, cfg StoreConfig, logger *slog.Logger) (account.Store, func(), error) {
	noop := func() {}

	switch cfg.Driver {
	case storeMemory:
		logger.Warn("using in-memory account store; accounts are lost on restart")
		return memory.New(), noop, nil

	case storePostgres:
		db, err := postgres.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, noop, err
			}
		}
		return postgres.New(db), func() { _ = db.Close() }, nil

	case storeSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		if cfg.Migrate {
			if err := sqlite.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, noop, err
			}
		}
		return sqlite.New(db), func() { _ = db.Close() }, nil

	case storeMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := mongo.New(connectCtx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				logger.Warn("mongo disconnect failed", logging.Err(err))
			}
		}, nil
	}

	return nil, noop, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func buildMailer(cfg *Config, logger *slog.Logger) (goIAM.Mailer, error) {
	if cfg.Mail.Driver == mailSMTP {
		return mailer.NewSMTP(cfg.smtpConfig(), logger)
	}
	return mailer.NewWriter(os.Stdout), nil
}

// buildPublisher returns nil when no brokers are configured.
func buildPublisher(cfg KafkaConfig, logger *slog.Logger) (*kafka.Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	return kafka.NewPublisher(kafka.Config{
		Brokers:  cfg.Brokers,
		ClientID: cfg.ClientID,
		Topics: kafka.Topics{
			Audit: cfg.AuditTopic,
			Reuse: cfg.ReuseTopic,
		},
	}, logger)
}
