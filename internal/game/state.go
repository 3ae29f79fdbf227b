package game

import (
	"time"

	"github.com/google/uuid"
	"github.com/wrongjunior/storybridge/internal/domain"
)

// State - авторитетное состояние игрового слоя. Изменяется только игровым слоем;
// наружу выходят лишь копии в виде domain.Snapshot.
type State struct {
	version       uint64
	started       bool
	connected     bool
	sessionID     string
	friendInLobby bool
	friendReady   bool
}

// NewState возвращает состояние "игры нет, ничего не известно".
func NewState() *State {
	return &State{}
}

// Apply применяет одну команду и сообщает, изменилась ли правда игры.
// Команды без эффекта (повтор значения, запросы без соединения, неизвестный вид) - успешные no-op.
func (s *State) Apply(cmd domain.Command) bool {
	switch cmd.Kind {
	case domain.CommandSetFriendInLobby:
		if !s.connected || s.friendInLobby == cmd.Value {
			return false
		}
		s.friendInLobby = cmd.Value
	case domain.CommandSetFriendReady:
		if !s.connected || s.friendReady == cmd.Value {
			return false
		}
		s.friendReady = cmd.Value
	case domain.CommandForceDisconnect:
		return s.disconnect()
	default:
		return false
	}
	s.version++
	return true
}

// MarkStarted отмечает, что меню активно. Это признак жизненного цикла хоста,
// а не правда игры: версия не растёт, снимок остаётся начальным.
func (s *State) MarkStarted() bool {
	if s.started {
		return false
	}
	s.started = true
	return true
}

// SetConnected открывает новую сетевую сессию или завершает текущую.
func (s *State) SetConnected(on bool) bool {
	if !on {
		return s.disconnect()
	}
	if s.connected {
		return false
	}
	s.connected = true
	s.sessionID = uuid.NewString()
	s.version++
	return true
}

// disconnect завершает сессию: отметки друга принадлежат сессии и сбрасываются вместе с ней.
func (s *State) disconnect() bool {
	if !s.connected {
		return false
	}
	s.connected = false
	s.sessionID = ""
	s.friendInLobby = false
	s.friendReady = false
	s.version++
	return true
}

// Connected сообщает, установлена ли сессия.
func (s *State) Connected() bool {
	return s.connected
}

// Snapshot снимает копию текущей правды.
func (s *State) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Version:       s.version,
		Started:       s.started,
		Connected:     s.connected,
		SessionID:     s.sessionID,
		FriendInLobby: s.friendInLobby,
		FriendReady:   s.friendReady,
		TakenAt:       time.Now().UTC(),
	}
}
