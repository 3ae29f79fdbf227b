package repository

import (
	"database/sql"
	"time"

	"github.com/wrongjunior/storybridge/internal/domain"
)

// TranscriptRepository определяет интерфейс стенограммы сюжетного клиента.
// Стенограмма - диагностическая запись: из неё не восстанавливается состояние и не повторяются доставки.
type TranscriptRepository interface {
	Init() error
	SaveEvent(event domain.Event) error
	SaveCommand(cmd domain.Command) error
}

// SQLiteRepository реализует стенограмму на базе SQLite.
type SQLiteRepository struct {
	DB *sql.DB
}

// NewSQLiteRepository создаёт новый экземпляр репозитория.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{DB: db}
}

// Init создаёт таблицы стенограммы, если их ещё нет.
func (repo *SQLiteRepository) Init() error {
	query := `
        CREATE TABLE IF NOT EXISTS events (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            timestamp DATETIME
        );
        CREATE TABLE IF NOT EXISTS commands (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            value INTEGER,
            requested_at DATETIME
        );
    `
	_, err := repo.DB.Exec(query)
	return err
}

// SaveEvent сохраняет событие, если такого события ещё нет.
func (repo *SQLiteRepository) SaveEvent(event domain.Event) error {
	query := `INSERT OR IGNORE INTO events (id, kind, timestamp) VALUES (?, ?, ?);`
	_, err := repo.DB.Exec(query, event.ID, event.Kind.String(), event.Timestamp)
	return err
}

// SaveCommand сохраняет отправленную команду. Для команд без значения value - NULL.
func (repo *SQLiteRepository) SaveCommand(cmd domain.Command) error {
	var value sql.NullBool
	if cmd.Kind.HasValue() {
		value = sql.NullBool{Bool: cmd.Value, Valid: true}
	}
	requestedAt, ok := cmd.Stamp()
	if !ok {
		requestedAt = time.Now().UTC()
	}
	query := `INSERT OR IGNORE INTO commands (id, kind, value, requested_at) VALUES (?, ?, ?, ?);`
	_, err := repo.DB.Exec(query, cmd.ID, cmd.Kind.String(), value, requestedAt)
	return err
}

// CountEvents возвращает число записанных событий заданного вида; EventUnknown - всех.
func (repo *SQLiteRepository) CountEvents(kind domain.EventKind) (int, error) {
	var count int
	var err error
	if kind == domain.EventUnknown {
		err = repo.DB.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&count)
	} else {
		err = repo.DB.QueryRow(`SELECT COUNT(*) FROM events WHERE kind = ?`, kind.String()).Scan(&count)
	}
	return count, err
}

// CountCommands возвращает число записанных команд.
func (repo *SQLiteRepository) CountCommands() (int, error) {
	var count int
	err := repo.DB.QueryRow(`SELECT COUNT(*) FROM commands`).Scan(&count)
	return count, err
}
