package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wrongjunior/storybridge/internal/config"
	"github.com/wrongjunior/storybridge/internal/service"
	"github.com/wrongjunior/storybridge/internal/story"
	transportServer "github.com/wrongjunior/storybridge/internal/transport/server"
	"log/slog"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to configuration file")
	network := flag.Bool("network", false, "Bring the network up right after start")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// Игровой слой и оба канала.
	bridge := service.NewBridge(service.BridgeOptions{
		Events:       cfg.EventOptions(),
		Commands:     cfg.CommandOptions(),
		TickInterval: time.Duration(cfg.TickInterval),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := bridge.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Tick loop error", "error", err)
		}
	}()

	// Сюжетный слой внутри процесса (иначе он подключается по WebSocket).
	if cfg.LocalStory {
		sub, err := bridge.Subscribe()
		if err != nil {
			logger.Error("Failed to subscribe story layer", "error", err)
			os.Exit(1)
		}
		director := story.NewDirector(sub, bridge, bridge, story.DefaultRules(), logger)
		go func() {
			if err := director.Run(ctx); err != nil && err != context.Canceled {
				logger.Error("Story director error", "error", err)
			}
		}()
	}

	router := transportServer.SetupRouter(bridge, logger, cfg.WSPath, cfg.SnapshotPath)
	httpServer := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: router,
	}

	// Запуск HTTP-сервера.
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.ServerAddr, "ws", cfg.WSPath, "snapshot", cfg.SnapshotPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	if err := bridge.Menu().Start(); err != nil {
		logger.Error("Menu start failed", "error", err)
	}
	if *network {
		if err := bridge.Menu().SetNetwork(true); err != nil {
			logger.Error("Network start failed", "error", err)
		}
	}

	// Обработка graceful shutdown.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down server...")
	// Сначала закрываем каналы: подписчики получают штатное закрытие WebSocket.
	bridge.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
