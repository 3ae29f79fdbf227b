package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType - тип конверта на WebSocket-соединении.
type MessageType string

const (
	MessageEvent    MessageType = "event"
	MessageCommand  MessageType = "command"
	MessageSnapshot MessageType = "snapshot"
)

// Message - JSON-конверт, которым обмениваются игровой сервер и удалённый сюжетный клиент.
type Message struct {
	Type     MessageType `json:"type"`
	Event    *Event      `json:"event,omitempty"`
	Command  *Command    `json:"command,omitempty"`
	Snapshot *Snapshot   `json:"snapshot,omitempty"`
}

// EventMessage оборачивает событие в конверт.
func EventMessage(e Event) Message { return Message{Type: MessageEvent, Event: &e} }

// CommandMessage оборачивает команду в конверт.
func CommandMessage(c Command) Message { return Message{Type: MessageCommand, Command: &c} }

// DecodeMessage разбирает конверт и проверяет, что полезная нагрузка соответствует типу.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch msg.Type {
	case MessageEvent:
		if msg.Event == nil {
			return Message{}, fmt.Errorf("%w: event message without event", ErrMalformed)
		}
	case MessageCommand:
		if msg.Command == nil {
			return Message{}, fmt.Errorf("%w: command message without command", ErrMalformed)
		}
	case MessageSnapshot:
		if msg.Snapshot == nil {
			return Message{}, fmt.Errorf("%w: snapshot message without snapshot", ErrMalformed)
		}
	default:
		return Message{}, fmt.Errorf("%w: message type %q", ErrMalformed, msg.Type)
	}
	return msg, nil
}
