// Package channel реализует два однонаправленных канала между игровым и сюжетным слоями:
// события (игра -> сюжет) и команды (сюжет -> игра). Ни одна операция не блокирует.
package channel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/wrongjunior/storybridge/internal/domain"
)

// Overflow - политика ограниченной очереди при переполнении.
type Overflow int

const (
	// DropOldest вытесняет самый старый ожидающий элемент.
	DropOldest Overflow = iota
	// DropNewest отбрасывает входящий элемент.
	DropNewest
)

// ParseOverflow разбирает имя политики из конфигурации ("drop_oldest", "drop_newest").
// Пустая строка - DropOldest.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_oldest":
		return DropOldest, nil
	case "drop_newest":
		return DropNewest, nil
	default:
		return DropOldest, fmt.Errorf("unknown overflow policy %q", s)
	}
}

func (o Overflow) String() string {
	if o == DropNewest {
		return "drop_newest"
	}
	return "drop_oldest"
}

// Options задаёт границы очереди. Capacity == 0 - очередь без ограничений.
type Options struct {
	Capacity int
	Overflow Overflow
}

// Stats - счётчики очереди. Отброшенные элементы видны только здесь, а не как ошибки.
type Stats struct {
	Pending   int
	Enqueued  uint64
	Delivered uint64
	Dropped   uint64
	Coalesced uint64
}

// queue - FIFO под мьютексом с неблокирующими push/pop.
type queue[T any] struct {
	mu       sync.Mutex
	items    []T
	opts     Options
	coalesce func(pending, incoming T) bool
	closed   bool
	ready    chan struct{}
	stats    Stats
}

func newQueue[T any](opts Options, coalesce func(pending, incoming T) bool) *queue[T] {
	return &queue[T]{
		opts:     opts,
		coalesce: coalesce,
		ready:    make(chan struct{}, 1),
	}
}

// push добавляет элемент. Возвращает признак того, что что-то было отброшено.
func (q *queue[T]) push(item T) (dropped bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, domain.ErrChannelClosed
	}

	if q.coalesce != nil {
		for i := range q.items {
			if q.coalesce(q.items[i], item) {
				q.items = append(q.items[:i], q.items[i+1:]...)
				q.stats.Coalesced++
				break
			}
		}
	}

	if q.opts.Capacity > 0 && len(q.items) >= q.opts.Capacity {
		q.stats.Dropped++
		dropped = true
		if q.opts.Overflow == DropNewest {
			return dropped, nil
		}
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
	}

	q.items = append(q.items, item)
	q.stats.Enqueued++
	q.signal()
	return dropped, nil
}

// pop возвращает следующий элемент. После закрытия недоставленный остаток
// ещё выдаётся, затем - ErrChannelClosed.
func (q *queue[T]) pop() (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if len(q.items) == 0 {
		if q.closed {
			return zero, false, domain.ErrChannelClosed
		}
		return zero, false, nil
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.stats.Delivered++
	if len(q.items) > 0 {
		q.signal()
	}
	return item, true, nil
}

// popAll забирает всё, что накопилось, в порядке добавления.
func (q *queue[T]) popAll() ([]T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		if q.closed {
			return nil, domain.ErrChannelClosed
		}
		return []T{}, nil
	}
	out := q.items
	q.items = nil
	q.stats.Delivered += uint64(len(out))
	return out, nil
}

// signal будит ожидающего потребителя; вызывается под q.mu.
func (q *queue[T]) signal() {
	if q.closed {
		return
	}
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// wait возвращает канал готовности. После закрытия очереди он закрыт навсегда.
func (q *queue[T]) wait() <-chan struct{} {
	return q.ready
}

func (q *queue[T]) close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.closed = true
	close(q.ready)
	return true
}

func (q *queue[T]) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *queue[T]) snapshotStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Pending = len(q.items)
	return s
}
