package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// CommandKind - внутренний числовой идентификатор запроса сюжетного слоя к игровому.
type CommandKind uint8

const (
	CommandUnknown CommandKind = iota
	CommandSetFriendInLobby
	CommandSetFriendReady
	CommandForceDisconnect
)

// Маппинг для конвертации JSON -> Domain
var commandStringToKind = map[string]CommandKind{
	"SET_FRIEND_IN_LOBBY": CommandSetFriendInLobby,
	"SET_FRIEND_READY":    CommandSetFriendReady,
	"FORCE_DISCONNECT":    CommandForceDisconnect,
}

// Маппинг для логов Domain -> String
var commandKindToString = map[CommandKind]string{
	CommandSetFriendInLobby: "SET_FRIEND_IN_LOBBY",
	CommandSetFriendReady:   "SET_FRIEND_READY",
	CommandForceDisconnect:  "FORCE_DISCONNECT",
}

// ParseCommandKind конвертирует строку из JSON в CommandKind (без учёта регистра).
func ParseCommandKind(s string) CommandKind {
	if val, ok := commandStringToKind[strings.ToUpper(strings.TrimSpace(s))]; ok {
		return val
	}
	return CommandUnknown
}

// String реализует интерфейс Stringer.
func (k CommandKind) String() string {
	if val, ok := commandKindToString[k]; ok {
		return val
	}
	return "UNKNOWN"
}

// HasValue сообщает, несёт ли команда данного вида булево значение.
func (k CommandKind) HasValue() bool {
	return k == CommandSetFriendInLobby || k == CommandSetFriendReady
}

// Command - запрос сюжетного слоя на побочный эффект в игровом слое.
// Это запрос, а не состояние: эффект виден только в следующем Snapshot.
type Command struct {
	ID    string
	Kind  CommandKind
	Value bool // для ForceDisconnect всегда false
}

func newCommand(kind CommandKind, value bool) Command {
	return Command{ID: ulid.Make().String(), Kind: kind, Value: value}
}

// SetFriendInLobby просит отметить друга как присутствующего в лобби.
func SetFriendInLobby(v bool) Command { return newCommand(CommandSetFriendInLobby, v) }

// SetFriendReady просит отметить друга как готового.
func SetFriendReady(v bool) Command { return newCommand(CommandSetFriendReady, v) }

// ForceDisconnect просит принудительно разорвать сетевое соединение.
func ForceDisconnect() Command { return newCommand(CommandForceDisconnect, false) }

// String возвращает читаемое представление для логов.
func (c Command) String() string {
	if c.Kind.HasValue() {
		return fmt.Sprintf("%s(%t)", c.Kind, c.Value)
	}
	return c.Kind.String()
}

type commandJSON struct {
	ID    string `json:"id,omitempty"`
	Kind  string `json:"kind"`
	Value *bool  `json:"value,omitempty"`
}

// MarshalJSON кодирует команду; поле value присутствует только у видов со значением.
func (c Command) MarshalJSON() ([]byte, error) {
	raw := commandJSON{ID: c.ID, Kind: c.Kind.String()}
	if c.Kind.HasValue() {
		v := c.Value
		raw.Value = &v
	}
	return json.Marshal(raw)
}

// UnmarshalJSON декодирует команду. Неизвестный вид или отсутствующее значение - ошибка.
// Если id не передан, присваивается новый ULID.
func (c *Command) UnmarshalJSON(data []byte) error {
	var raw commandJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind := ParseCommandKind(raw.Kind)
	if kind == CommandUnknown {
		return fmt.Errorf("%w: command kind %q", ErrMalformed, raw.Kind)
	}
	if kind.HasValue() && raw.Value == nil {
		return fmt.Errorf("%w: command %s requires a value", ErrMalformed, kind)
	}
	c.ID = raw.ID
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	c.Kind = kind
	c.Value = false
	if raw.Value != nil && kind.HasValue() {
		c.Value = *raw.Value
	}
	return nil
}

// Stamp - время создания команды, извлечённое из её ULID.
func (c Command) Stamp() (time.Time, bool) {
	id, err := ulid.ParseStrict(c.ID)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(id.Time()), true
}
