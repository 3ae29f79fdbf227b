package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind - внутренний числовой идентификатор "момента", о котором игровой слой сообщает сюжетному.
type EventKind uint8

const (
	EventUnknown EventKind = iota
	// EventStarted - игровой/меню слой активен и готов к оценке сюжета.
	EventStarted
	// EventNetworkToggled - сетевое состояние изменилось; новое значение читается из Snapshot.
	EventNetworkToggled
)

// Маппинг для конвертации JSON -> Domain
var eventStringToKind = map[string]EventKind{
	"STARTED":         EventStarted,
	"NETWORK_TOGGLED": EventNetworkToggled,
}

// Маппинг для логов Domain -> String
var eventKindToString = map[EventKind]string{
	EventStarted:        "STARTED",
	EventNetworkToggled: "NETWORK_TOGGLED",
}

// ParseEventKind конвертирует строку из JSON в EventKind (без учёта регистра).
func ParseEventKind(s string) EventKind {
	if val, ok := eventStringToKind[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return val
	}
	return EventUnknown
}

// String реализует интерфейс Stringer.
func (k EventKind) String() string {
	if val, ok := eventKindToString[k]; ok {
		return val
	}
	return "UNKNOWN"
}

// Event представляет момент, произошедший в игровом слое.
// ID и Timestamp - метаданные доставки, а не состояние игры: текущая правда всегда читается из Snapshot.
type Event struct {
	ID        string
	Kind      EventKind
	Timestamp time.Time
}

// NewEvent создаёт событие заданного вида с новым ULID.
func NewEvent(kind EventKind) Event {
	return Event{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
	}
}

// Started - сокращение для NewEvent(EventStarted).
func Started() Event { return NewEvent(EventStarted) }

// NetworkToggled - сокращение для NewEvent(EventNetworkToggled).
func NetworkToggled() Event { return NewEvent(EventNetworkToggled) }

type eventJSON struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON кодирует вид события его каноническим именем.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventJSON{ID: e.ID, Kind: e.Kind.String(), Timestamp: e.Timestamp})
}

// UnmarshalJSON декодирует событие; неизвестный вид - ошибка.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind := ParseEventKind(raw.Kind)
	if kind == EventUnknown {
		return fmt.Errorf("%w: event kind %q", ErrMalformed, raw.Kind)
	}
	e.ID = raw.ID
	e.Kind = kind
	e.Timestamp = raw.Timestamp
	return nil
}
