// Package story - сюжетный слой со стороны контракта: опрашивает события, читает снимки
// и запрашивает побочные эффекты командами. Собственного игрового состояния не хранит.
package story

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wrongjunior/storybridge/internal/domain"
)

// EventSource - входящая сторона канала событий (channel.Subscription или очередь удалённого клиента).
type EventSource interface {
	Next() (domain.Event, bool, error)
	Wait() <-chan struct{}
}

// SnapshotProvider отдаёт копию текущей правды игры.
type SnapshotProvider interface {
	Current() domain.Snapshot
}

// Requester - исходящая сторона канала команд.
type Requester interface {
	Request(cmd domain.Command) error
}

// Director оценивает правила на каждом полученном событии.
type Director struct {
	events   EventSource
	snapshot SnapshotProvider
	commands Requester
	rules    []Rule
	logger   *slog.Logger
}

// NewDirector создаёт сюжетный слой с заданным набором правил.
func NewDirector(events EventSource, snapshot SnapshotProvider, commands Requester, rules []Rule, logger *slog.Logger) *Director {
	return &Director{
		events:   events,
		snapshot: snapshot,
		commands: commands,
		rules:    rules,
		logger:   logger,
	}
}

// Step обрабатывает все ожидающие события и возвращает их число.
// Закрытый канал событий возвращается как domain.ErrChannelClosed - сигнал к завершению.
func (d *Director) Step() (int, error) {
	handled := 0
	for {
		event, ok, err := d.events.Next()
		if err != nil {
			return handled, err
		}
		if !ok {
			return handled, nil
		}
		handled++
		if err := d.handle(event); err != nil {
			return handled, err
		}
	}
}

func (d *Director) handle(event domain.Event) error {
	// снимок читается заново на каждое событие и не переживает его обработку
	snap := d.snapshot.Current()
	d.logger.Debug("Story received event", "id", event.ID, "kind", event.Kind, "version", snap.Version)
	for _, rule := range d.rules {
		if !rule.matches(event, snap) || rule.Then == nil {
			continue
		}
		for _, cmd := range rule.Then(snap) {
			if err := d.commands.Request(cmd); err != nil {
				return err
			}
			d.logger.Info("Story requested command", "rule", rule.Name, "command", cmd.String())
		}
	}
	return nil
}

// Run обрабатывает события по мере поступления до закрытия канала или отмены ctx.
// Закрытие канала - штатное завершение, ошибкой не считается.
func (d *Director) Run(ctx context.Context) error {
	for {
		if _, err := d.Step(); err != nil {
			if errors.Is(err, domain.ErrChannelClosed) {
				d.logger.Info("Story director stopped: channel closed")
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			d.logger.Info("Story director stopped")
			return ctx.Err()
		case <-d.events.Wait():
		}
	}
}
