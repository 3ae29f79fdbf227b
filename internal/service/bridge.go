package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wrongjunior/storybridge/internal/channel"
	"github.com/wrongjunior/storybridge/internal/domain"
	"github.com/wrongjunior/storybridge/internal/game"
)

// BridgeOptions - настройки координатора.
type BridgeOptions struct {
	Events       channel.EventOptions
	Commands     channel.Options
	TickInterval time.Duration
}

// Bridge координирует игровой и сюжетный слои: владеет обоими каналами и игровым Menu,
// задаёт ритм тиков и завершает работу закрытием каналов.
type Bridge struct {
	events   *channel.EventChannel
	commands *channel.CommandChannel
	menu     *game.Menu
	interval time.Duration
	logger   *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewBridge создаёт координатор с игровым слоем в начальном состоянии.
func NewBridge(opts BridgeOptions, logger *slog.Logger) *Bridge {
	events := channel.NewEventChannel(opts.Events, logger)
	commands := channel.NewCommandChannel(opts.Commands, logger)
	interval := opts.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		events:   events,
		commands: commands,
		menu:     game.NewMenu(events, commands, logger),
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events возвращает канал событий (игра -> сюжет).
func (b *Bridge) Events() *channel.EventChannel { return b.events }

// Commands возвращает канал команд (сюжет -> игра).
func (b *Bridge) Commands() *channel.CommandChannel { return b.commands }

// Menu возвращает игровой слой, которым управляет слой представления.
func (b *Bridge) Menu() *game.Menu { return b.menu }

// Subscribe регистрирует нового потребителя событий.
func (b *Bridge) Subscribe() (*channel.Subscription, error) {
	return b.events.Subscribe()
}

// Unsubscribe удаляет потребителя событий.
func (b *Bridge) Unsubscribe(sub *channel.Subscription) {
	b.events.Unsubscribe(sub)
}

// Request передаёт команду игровому слою. Эффект виден только после ближайшего тика.
func (b *Bridge) Request(cmd domain.Command) error {
	return b.commands.Request(cmd)
}

// Current возвращает копию текущей правды игры.
func (b *Bridge) Current() domain.Snapshot {
	return b.menu.Current()
}

// Step выполняет один кооперативный тик игрового слоя.
func (b *Bridge) Step() (game.TickReport, error) {
	report, err := b.menu.Tick()
	if err != nil {
		return report, err
	}
	if report.Applied > 0 {
		b.logger.Debug("Tick applied commands", "applied", report.Applied, "changed", report.Changed, "version", report.Snapshot.Version)
	}
	return report, nil
}

// Run выполняет тики с заданным периодом до отмены ctx, вызова Shutdown или закрытия канала команд.
func (b *Bridge) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	b.logger.Info("Bridge tick loop started", "interval", b.interval)
	for {
		select {
		case <-ticker.C:
			if _, err := b.Step(); err != nil {
				if errors.Is(err, domain.ErrChannelClosed) {
					b.logger.Info("Bridge tick loop stopped: command channel closed")
					return nil
				}
				return err
			}
		case <-ctx.Done():
			b.logger.Info("Bridge tick loop stopped")
			return ctx.Err()
		case <-b.ctx.Done():
			b.logger.Info("Bridge tick loop stopped")
			return nil
		}
	}
}

// Shutdown закрывает оба канала; пиры увидят domain.ErrChannelClosed. Повторный вызов безопасен.
func (b *Bridge) Shutdown() {
	b.stopOnce.Do(func() {
		b.cancel()
		b.events.Close()
		b.commands.Close()
		b.logger.Info("Bridge shutdown")
	})
}
