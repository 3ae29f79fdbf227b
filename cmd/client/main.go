package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/wrongjunior/storybridge/internal/config"
	"github.com/wrongjunior/storybridge/internal/repository"
	"github.com/wrongjunior/storybridge/internal/service"
	"github.com/wrongjunior/storybridge/internal/story"
	transportClient "github.com/wrongjunior/storybridge/internal/transport/client"
	"log/slog"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Открытие подключения к БД для стенограммы.
	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	repo := repository.NewSQLiteRepository(db)
	if err := repo.Init(); err != nil {
		logger.Error("Failed to initialize repository", "error", err)
		os.Exit(1)
	}

	// Бизнес-логика клиента и сюжетный слой.
	clientService := service.NewClientService(repo, logger)
	sub, err := clientService.Subscribe()
	if err != nil {
		logger.Error("Failed to subscribe story layer", "error", err)
		os.Exit(1)
	}

	// Транспортный слой клиента (WebSocket-соединение и HTTP-снимок).
	ct := transportClient.NewClientTransport(cfg.ClientServerURL, snapshotURL(cfg), clientService, logger)
	director := story.NewDirector(sub, ct, ct, story.DefaultRules(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		ct.Listen(ctx)
	}()
	storyDone := make(chan struct{})
	go func() {
		defer close(storyDone)
		if err := director.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Story director error", "error", err)
		}
	}()

	// Graceful shutdown: по сигналу или когда сервер закрыл канал событий.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case <-stop:
	case <-storyDone:
	}
	logger.Info("Shutting down client...")
	cancel()
	<-listenDone
	<-storyDone
	logger.Info("Client stopped")
}

// snapshotURL выводит адрес снимка из URL WebSocket: ws://host/ws -> http://host/snapshot.
func snapshotURL(cfg *config.Config) string {
	base := cfg.ClientServerURL
	base = strings.Replace(base, "wss://", "https://", 1)
	base = strings.Replace(base, "ws://", "http://", 1)
	base = strings.TrimSuffix(base, cfg.WSPath)
	return strings.TrimSuffix(base, "/") + cfg.SnapshotPath
}
