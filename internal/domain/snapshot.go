package domain

import "time"

// Snapshot - неизменяемый срез авторитетного состояния игры на момент времени.
// Передаётся по значению: сюжетный слой получает копию и не может изменить состояние игры.
// Started и TakenAt - метаданные, в версионируемую правду они не входят.
type Snapshot struct {
	Version       uint64    `json:"version"`
	Started       bool      `json:"started"`
	Connected     bool      `json:"connected"`
	SessionID     string    `json:"session_id,omitempty"`
	FriendInLobby bool      `json:"friend_in_lobby"`
	FriendReady   bool      `json:"friend_ready"`
	TakenAt       time.Time `json:"taken_at"`
}

// DefaultSnapshot - "игра не идёт, ничего не известно": лобби пусто, соединения нет.
func DefaultSnapshot() Snapshot {
	return Snapshot{}
}

// Clone возвращает независимую копию.
func (s Snapshot) Clone() Snapshot {
	return s
}

// IsDefault сообщает, совпадает ли снимок с начальным состоянием (без учёта Started и TakenAt).
func (s Snapshot) IsDefault() bool {
	s.Started = false
	s.TakenAt = time.Time{}
	return s == Snapshot{}
}
