package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/wrongjunior/storybridge/internal/channel"
	"github.com/wrongjunior/storybridge/internal/domain"
	"github.com/wrongjunior/storybridge/internal/repository"
)

// dedupWindow - сколько помнится id события. Повторная доставка случается при
// переподключении, то есть спустя секунды, а не минуты.
const dedupWindow = 10 * time.Minute

// ClientService - бизнес-логика удалённого сюжетного клиента: фильтрация дубликатов,
// запись стенограммы и передача событий в локальную очередь сюжета.
type ClientService struct {
	repo        repository.TranscriptRepository
	logger      *slog.Logger
	mu          sync.Mutex
	receivedIDs map[string]time.Time
	lastPrune   time.Time
	now         func() time.Time
	events      *channel.EventChannel
}

// NewClientService создаёт клиентский сервис.
func NewClientService(repo repository.TranscriptRepository, logger *slog.Logger) *ClientService {
	return &ClientService{
		repo:        repo,
		logger:      logger,
		receivedIDs: make(map[string]time.Time),
		now:         time.Now,
		events:      channel.NewEventChannel(channel.EventOptions{}, logger),
	}
}

// Subscribe возвращает локальную очередь событий для сюжетного слоя клиента.
func (cs *ClientService) Subscribe() (*channel.Subscription, error) {
	return cs.events.Subscribe()
}

// ProcessEvent обрабатывает событие, фильтруя дубликаты (переподключение может повторить доставку).
func (cs *ClientService) ProcessEvent(event domain.Event) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	now := cs.now()
	cs.pruneLocked(now)
	if _, exists := cs.receivedIDs[event.ID]; exists {
		cs.logger.Info("Duplicate event filtered", "id", event.ID)
		return
	}
	cs.receivedIDs[event.ID] = eventStamp(event, now)
	cs.logger.Info("Processing event", "id", event.ID, "kind", event.Kind)
	if err := cs.repo.SaveEvent(event); err != nil {
		cs.logger.Error("Error saving event", "error", err)
	}
	if err := cs.events.Emit(event); err != nil {
		cs.logger.Warn("Story queue closed, event dropped", "id", event.ID)
	}
}

// pruneLocked забывает id старше dedupWindow. Проход делается не чаще раза в окно.
func (cs *ClientService) pruneLocked(now time.Time) {
	if now.Sub(cs.lastPrune) < dedupWindow {
		return
	}
	cs.lastPrune = now
	horizon := now.Add(-dedupWindow)
	for id, stamp := range cs.receivedIDs {
		if stamp.Before(horizon) {
			delete(cs.receivedIDs, id)
		}
	}
}

// eventStamp - время из ULID события; для id не в формате ULID - время получения.
func eventStamp(event domain.Event, received time.Time) time.Time {
	id, err := ulid.ParseStrict(event.ID)
	if err != nil {
		return received
	}
	return ulid.Time(id.Time())
}

// RecordCommand записывает отправленную команду в стенограмму.
func (cs *ClientService) RecordCommand(cmd domain.Command) {
	if err := cs.repo.SaveCommand(cmd); err != nil {
		cs.logger.Error("Error saving command", "error", err)
	}
}

// Close закрывает локальную очередь: сюжетный слой клиента увидит domain.ErrChannelClosed.
func (cs *ClientService) Close() {
	cs.events.Close()
}
