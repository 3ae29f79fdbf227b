// Package game - игровой/меню слой со стороны контракта: владеет авторитетным состоянием,
// испускает события, раз в тик применяет команды и отдаёт снимки.
package game

import (
	"log/slog"
	"sync"

	"github.com/wrongjunior/storybridge/internal/domain"
)

// SnapshotProvider отдаёт копию текущей правды игры. Никогда не завершается ошибкой.
type SnapshotProvider interface {
	Current() domain.Snapshot
}

// EventEmitter - исходящая сторона канала событий.
type EventEmitter interface {
	Emit(event domain.Event) error
}

// CommandSource - входящая сторона канала команд.
type CommandSource interface {
	Drain() ([]domain.Command, error)
}

var _ SnapshotProvider = (*Menu)(nil)

// TickReport - итог одного тика игрового слоя.
type TickReport struct {
	Applied  int
	Changed  int
	Snapshot domain.Snapshot
}

// Menu - хост игрового слоя.
type Menu struct {
	// tickMu держится от Drain до применения последней команды: пачки конкурентных тиков не перемешиваются.
	tickMu   sync.Mutex
	mu       sync.RWMutex
	state    *State
	events   EventEmitter
	commands CommandSource
	logger   *slog.Logger
}

// NewMenu создаёт игровой слой с начальным состоянием.
func NewMenu(events EventEmitter, commands CommandSource, logger *slog.Logger) *Menu {
	return &Menu{
		state:    NewState(),
		events:   events,
		commands: commands,
		logger:   logger,
	}
}

// Start отмечает меню активным и испускает Started. Повторный вызов ничего не испускает.
func (m *Menu) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.MarkStarted() {
		return nil
	}
	m.logger.Info("Menu started")
	return m.emitLocked(domain.Started())
}

// SetNetwork включает или выключает сеть; при фактическом изменении испускает NetworkToggled.
// Состояние обновляется до эмиссии, поэтому снимок, прочитанный после события, уже актуален.
func (m *Menu) SetNetwork(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setNetworkLocked(on)
}

// ToggleNetwork переключает сеть.
func (m *Menu) ToggleNetwork() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setNetworkLocked(!m.state.Connected())
}

func (m *Menu) setNetworkLocked(on bool) error {
	if !m.state.SetConnected(on) {
		return nil
	}
	m.logger.Info("Network toggled", "connected", on)
	return m.emitLocked(domain.NetworkToggled())
}

// Tick забирает все накопившиеся команды и применяет их по порядку.
// Закрытый канал команд возвращается как domain.ErrChannelClosed.
func (m *Menu) Tick() (TickReport, error) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	cmds, err := m.commands.Drain()
	if err != nil {
		return TickReport{Snapshot: m.Current()}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	report := TickReport{}
	for _, cmd := range cmds {
		report.Applied++
		if m.applyLocked(cmd) {
			report.Changed++
		}
	}
	report.Snapshot = m.state.Snapshot()
	return report, nil
}

// Apply применяет одну команду вне тика.
func (m *Menu) Apply(cmd domain.Command) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(cmd)
}

func (m *Menu) applyLocked(cmd domain.Command) bool {
	wasConnected := m.state.Connected()
	changed := m.state.Apply(cmd)
	if !changed {
		m.logger.Debug("Command had no effect", "id", cmd.ID, "command", cmd.String(), "connected", wasConnected)
		return false
	}
	m.logger.Info("Command applied", "id", cmd.ID, "command", cmd.String())
	if cmd.Kind == domain.CommandForceDisconnect && wasConnected {
		// разрыв сети - такой же момент, как и ручное переключение; ошибку уже записал emitLocked
		_ = m.emitLocked(domain.NetworkToggled())
	}
	return true
}

func (m *Menu) emitLocked(event domain.Event) error {
	if m.events == nil {
		return nil
	}
	if err := m.events.Emit(event); err != nil {
		m.logger.Warn("Event not emitted", "kind", event.Kind, "error", err)
		return err
	}
	return nil
}

// Current возвращает копию текущего состояния. Если состояния нет - снимок по умолчанию.
func (m *Menu) Current() domain.Snapshot {
	if m == nil {
		return domain.DefaultSnapshot()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state == nil {
		return domain.DefaultSnapshot()
	}
	return m.state.Snapshot()
}
