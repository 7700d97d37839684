package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"news-collector/internal/middleware/logger"
	"news-collector/internal/news_collector/api"
	"news-collector/internal/news_collector/extract"
	"news-collector/internal/news_collector/fetcher"
	"news-collector/internal/news_collector/model"
	"news-collector/internal/news_collector/notify"
	"news-collector/internal/news_collector/processor"
	"news-collector/internal/news_collector/report"
	"news-collector/internal/news_collector/scheduler"
	"news-collector/internal/news_collector/store"
	"news-collector/pkg/mongodb"
)

func main() {
	_ = godotenv.Load() // .env 不存在时静默跳过

	log, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	log.Info("starting news collector service")

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := mongodb.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	db := store.MustMongo(
		ctx,
		cfg.Mongo.Host,
		cfg.Mongo.DBName,
		cfg.Mongo.Username,
		cfg.Mongo.Password,
		cfg.Mongo.AuthSource,
	)

	fetchClient := &http.Client{Timeout: model.DefaultFetchTimeoutSec * time.Second}
	fetch := fetcher.New(fetchClient, log)
	proc := processor.New(db, extract.NewRegistry(), log)
	reports := report.New(db, log)

	var notifier notify.Notifier = &notify.LogNotifier{Log: log}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.Multi{
			&notify.LogNotifier{Log: log},
			notify.NewWebhook(cfg.Notify.WebhookURL, log),
		}
	}

	svc := scheduler.New(log, db, db, fetch, proc, reports, notifier, &http.Client{})
	if err := svc.LoadTenants(ctx); err != nil {
		panic(err)
	}
	defer svc.Shutdown()

	srv := &api.Server{Scheduler: svc, Content: db, Log: log}
	r := srv.Router()
	_ = r.SetTrustedProxies(nil)
	log.Info("news collector service is running", zap.String("address", cfg.HTTP.Listen))
	if err := r.Run(cfg.HTTP.Listen); err != nil {
		log.Fatal("http server exited", zap.Error(err))
	}
}
