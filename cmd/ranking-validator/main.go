// Command ranking-validator audits the stored rankings and exits 1 when the
// score distribution is abnormal, too many anomalies are found, or the run fails.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/internal/config"
	"github.com/nitesh/bizrank/internal/logger"
	"github.com/nitesh/bizrank/internal/store"
	"github.com/nitesh/bizrank/internal/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		logrus.Errorf("config: %v", err)
		return 1
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		logrus.Errorf("logger: %v", err)
		return 1
	}
	log := logger.For("validator")

	db, err := sql.Open("postgres", cfg.PostgresURL())
	if err != nil {
		log.WithError(err).Error("db open")
		return 1
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.WithError(err).Error("db ping")
		return 1
	}

	report, err := validator.New(store.NewPgStore(db), validator.KnownBusinesses, log).Run(ctx)
	if err != nil {
		log.WithError(err).Error("validation failed")
		return 1
	}
	if err := report.Render(os.Stdout); err != nil {
		log.WithError(err).Error("render report")
		return 1
	}
	if report.Failed() {
		return 1
	}
	return 0
}
