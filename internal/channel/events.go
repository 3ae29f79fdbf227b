package channel

import (
	"log/slog"
	"sync"

	"github.com/wrongjunior/storybridge/internal/domain"
)

// EventOptions настраивает канал событий.
type EventOptions struct {
	Queue Options
	// LatestOnly - виды событий, для которых в очереди подписчика хранится только последнее.
	LatestOnly []domain.EventKind
}

// EventChannel доставляет события от игрового слоя всем подписчикам сюжетного слоя.
// Каждый подписчик получает собственную FIFO-очередь.
type EventChannel struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	opts   Options
	latest map[domain.EventKind]bool
	closed bool
	logger *slog.Logger
}

// Subscription - очередь событий одного потребителя.
type Subscription struct {
	q *queue[domain.Event]
}

// NewEventChannel создаёт канал событий.
func NewEventChannel(opts EventOptions, logger *slog.Logger) *EventChannel {
	latest := make(map[domain.EventKind]bool, len(opts.LatestOnly))
	for _, k := range opts.LatestOnly {
		latest[k] = true
	}
	return &EventChannel{
		subs:   make(map[*Subscription]struct{}),
		opts:   opts.Queue,
		latest: latest,
		logger: logger,
	}
}

// Subscribe регистрирует потребителя. Он получит все события, испущенные после регистрации.
func (c *EventChannel) Subscribe() (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, domain.ErrChannelClosed
	}
	var coalesce func(pending, incoming domain.Event) bool
	if len(c.latest) > 0 {
		coalesce = func(pending, incoming domain.Event) bool {
			return pending.Kind == incoming.Kind && c.latest[incoming.Kind]
		}
	}
	sub := &Subscription{q: newQueue(c.opts, coalesce)}
	c.subs[sub] = struct{}{}
	c.logger.Debug("Event subscriber registered", "subscribers", len(c.subs))
	return sub, nil
}

// Unsubscribe удаляет потребителя и закрывает его очередь.
func (c *EventChannel) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[sub]; ok {
		delete(c.subs, sub)
		sub.q.close()
		c.logger.Debug("Event subscriber removed", "subscribers", len(c.subs))
	}
}

// Emit рассылает событие всем текущим подписчикам. Не блокирует.
// Эмиссия сериализована, поэтому все подписчики видят один и тот же порядок.
func (c *EventChannel) Emit(event domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrChannelClosed
	}
	for sub := range c.subs {
		dropped, err := sub.q.push(event)
		if err != nil {
			// очередь подписчика закрыта вне Unsubscribe
			delete(c.subs, sub)
			continue
		}
		if dropped {
			c.logger.Warn("Event queue overflow", "kind", event.Kind, "policy", c.opts.Overflow)
		}
	}
	c.logger.Debug("Event emitted", "id", event.ID, "kind", event.Kind, "subscribers", len(c.subs))
	return nil
}

// Close закрывает канал и все очереди подписчиков. Повторный вызов безопасен.
func (c *EventChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for sub := range c.subs {
		sub.q.close()
	}
	c.subs = make(map[*Subscription]struct{})
	c.logger.Info("Event channel closed")
}

// Closed сообщает, закрыт ли канал.
func (c *EventChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Subscribers возвращает число зарегистрированных потребителей.
func (c *EventChannel) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Next возвращает следующее недоставленное событие. ok == false - событий нет.
// После закрытия канала и выдачи остатка возвращает domain.ErrChannelClosed.
func (s *Subscription) Next() (domain.Event, bool, error) {
	return s.q.pop()
}

// Pending забирает все ожидающие события по порядку.
func (s *Subscription) Pending() ([]domain.Event, error) {
	return s.q.popAll()
}

// Wait возвращает канал, который получает сигнал при появлении событий и закрывается при закрытии очереди.
func (s *Subscription) Wait() <-chan struct{} {
	return s.q.wait()
}

// Stats возвращает счётчики очереди подписчика.
func (s *Subscription) Stats() Stats {
	return s.q.snapshotStats()
}
