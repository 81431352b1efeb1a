package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"storescraper/internal/config"
	"storescraper/internal/core/engine"
	"storescraper/internal/core/job"
	"storescraper/internal/core/runlog"
	"storescraper/internal/core/scheduler"
	"storescraper/internal/logger"
	"storescraper/internal/notify"
	rds "storescraper/internal/platform/redis"
	tasks "storescraper/internal/platform/tasks"
	"storescraper/internal/progress"
	"storescraper/internal/scrapers"
	"storescraper/internal/server"
	"storescraper/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[storescraper] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	loc, err := time.LoadLocation(cfg.ScheduleTimezone)
	if err != nil {
		log.Fatalf("invalid SCHEDULE_TIMEZONE %q: %v", cfg.ScheduleTimezone, err)
	}

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Asynq client and server
	taskClient := tasks.New(redisSvc)
	defer taskClient.Close()
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{cfg.TaskQueue: 1},
	})

	// Core services
	jobSvc := job.NewService(redisSvc)
	logSvc := runlog.NewService(redisSvc)
	mailer := notify.NewMailer(cfg)
	broadcaster := progress.NewBroadcaster()

	marker := scrapers.NewRedisMarker(redisSvc)
	registry := scrapers.Registry{
		job.ScraperShopify: {
			Unit:        scrapers.NewShopifyUnit(cfg.ShopifyStoreURL, marker),
			DisplayName: scrapers.Breadcrumb,
		},
		job.ScraperStorefront: {
			Unit:        scrapers.NewStorefrontUnit(cfg.StorefrontBaseURL, marker),
			DisplayName: scrapers.Breadcrumb,
		},
	}

	nextRun := func(st job.ScheduleType, at string, now time.Time) (time.Time, error) {
		return scheduler.ComputeNextRun(st, at, now, loc)
	}
	eng := engine.New(jobSvc, logSvc, mailer, taskClient, registry, broadcaster, nextRun, engine.Config{
		RunDeadline:       cfg.RunDeadline,
		HeartbeatInterval: cfg.HeartbeatInterval,
		ChunkSize:         cfg.CategoryChunkSize,
		Queue:             cfg.TaskQueue,
	})

	sched := scheduler.New(jobSvc, eng, loc)

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeExecute, eng.HandleExecuteTask)

	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	sched.LoadAndStart(context.Background())

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Store Scraper Cron",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	deps := server.Dependencies{
		Jobs:   job.NewHandler(jobSvc, logSvc, sched, eng),
		Events: progress.NewHandler(broadcaster),
		Redis:  redisSvc,
	}
	healthHandler := server.RegisterRoutes(app, deps)

	// Mark application as ready after all services are initialized
	go func() {
		time.Sleep(2 * time.Second)
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		sched.Stop()
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
