package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nitesh/bizrank/internal/analyzer"
	"github.com/nitesh/bizrank/internal/api"
	"github.com/nitesh/bizrank/internal/config"
	"github.com/nitesh/bizrank/internal/llm"
	"github.com/nitesh/bizrank/internal/lock"
	"github.com/nitesh/bizrank/internal/logger"
	"github.com/nitesh/bizrank/internal/queue"
	"github.com/nitesh/bizrank/internal/rankcache"
	"github.com/nitesh/bizrank/internal/ranking"
	"github.com/nitesh/bizrank/internal/scheduler"
	"github.com/nitesh/bizrank/internal/scoring"
	"github.com/nitesh/bizrank/internal/service"
	"github.com/nitesh/bizrank/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		logrus.Fatalf("logger: %v", err)
	}
	log := logger.For("server")

	db, err := sql.Open("postgres", cfg.PostgresURL())
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	// simple ping + wait (db might be starting in docker)
	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		log.WithError(err).Warnf("waiting for db: attempt %d", i+1)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		log.Fatalf("could not connect to db: %v", err)
	}
	if err := store.RunMigrations(db); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.WithError(err).Warn("redis ping failed")
	}
	cancelPing()

	repo := store.NewPgStore(db)

	llmClient := llm.NewClient(cfg.LLMURL, cfg.LLMModel, llm.Options{
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	}, &http.Client{Timeout: cfg.LLMTimeout}, logger.For("llm"))

	reviewAnalyzer := analyzer.New(llmClient, repo, cfg.AnalyzerDelay, logger.For("analyzer"))
	engine := scoring.NewEngine(repo, lock.NewRedisLocker(rdb, logger.For("lock")), cfg.ScoringLockTTL, logger.For("scoring"))

	tasks := queue.NewRedisQueue(rdb, "")
	worker := queue.NewWorker(tasks, cfg.QueuePollInterval, logger.For("worker"))
	hot := rankcache.New(rdb)

	processor := ranking.NewProcessor(repo, engine, tasks, hot, ranking.Delays{
		Stagger:      cfg.StaggerDelay,
		Aspect:       cfg.AspectDelay,
		BadgeRefresh: cfg.BadgeRefreshDelay,
	}, logger.For("ranking"))
	processor.Register(worker)

	svc := service.NewService(repo, tasks, reviewAnalyzer, engine, processor, hot, service.Options{
		AnalyzeLimit: cfg.AnalyzerBatchLimit,
		AnalyzeDelay: cfg.AnalyzerDelay,
	}, logger.For("service"))
	svc.RegisterHandlers(worker)

	sched, err := scheduler.New(processor, scheduler.Specs{
		Cleanup:      cfg.CleanupSchedule,
		SystemUpdate: cfg.SystemUpdateSchedule,
		BadgeRefresh: cfg.BadgeRefreshSchedule,
	}, logger.For("scheduler"))
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty; admin routes will reject every request")
	}

	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = logger.L().Writer()
	gin.DefaultErrorWriter = logger.L().WriterLevel(logrus.ErrorLevel)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger.For("http")))
	api.RegisterRoutes(router, api.NewHandler(svc, cfg.AdminToken))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(workerDone)
	}()
	sched.Start()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Infof("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	sched.Stop()
	<-workerDone
}
