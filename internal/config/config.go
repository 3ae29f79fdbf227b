package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/wrongjunior/storybridge/internal/channel"
	"github.com/wrongjunior/storybridge/internal/domain"
)

// ErrInvalidConfig - конфигурация не прошла проверку.
var ErrInvalidConfig = errors.New("invalid config")

// Duration - time.Duration, который в JSON записывается строкой ("100ms").
type Duration time.Duration

// UnmarshalJSON принимает строку длительности или число наносекунд.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON записывает длительность строкой.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalText нужен для переопределения через переменные окружения.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// QueueConfig - границы очереди канала.
type QueueConfig struct {
	// 0 - без ограничений
	Capacity int `json:"capacity" env:"CAPACITY"`
	// drop_oldest | drop_newest
	Overflow string `json:"overflow" env:"OVERFLOW"`
	// только для событий: виды, которые хранятся в очереди в одном экземпляре
	LatestOnly []string `json:"latest_only" env:"LATEST_ONLY"`
}

// Config содержит настройки игрового сервера и удалённого сюжетного клиента.
type Config struct {
	ServerAddr      string      `json:"server_addr" env:"SERVER_ADDR"`             // адрес HTTP-сервера (например, ":8080")
	WSPath          string      `json:"ws_path" env:"WS_PATH"`                     // путь WebSocket (например, "/ws")
	SnapshotPath    string      `json:"snapshot_path" env:"SNAPSHOT_PATH"`         // путь для чтения снимка (например, "/snapshot")
	DBPath          string      `json:"db_path" env:"DB_PATH"`                     // путь к SQLite БД стенограммы клиента
	LogLevel        string      `json:"log_level" env:"LOG_LEVEL"`                 // уровень логирования (например, "INFO")
	ClientServerURL string      `json:"client_server_url" env:"CLIENT_SERVER_URL"` // URL для подключения клиента (например, "ws://localhost:8080/ws")
	TickInterval    Duration    `json:"tick_interval" env:"TICK_INTERVAL"`         // период тика игрового слоя
	LocalStory      bool        `json:"local_story" env:"LOCAL_STORY"`             // запускать сюжетный слой внутри сервера
	EventQueue      QueueConfig `json:"event_queue" envPrefix:"EVENT_QUEUE_"`
	CommandQueue    QueueConfig `json:"command_queue" envPrefix:"COMMAND_QUEUE_"`
}

// Default возвращает рабочие значения по умолчанию: очереди без ограничений.
func Default() *Config {
	return &Config{
		ServerAddr:      ":8080",
		WSPath:          "/ws",
		SnapshotPath:    "/snapshot",
		DBPath:          "client.db",
		LogLevel:        "INFO",
		ClientServerURL: "ws://localhost:8080/ws",
		TickInterval:    Duration(100 * time.Millisecond),
	}
}

// LoadConfig загружает конфигурацию из JSON-файла поверх значений по умолчанию,
// затем применяет переменные окружения STORYBRIDGE_*. Пустой путь - только значения по умолчанию и окружение.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		decoder := json.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "STORYBRIDGE_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет границы очередей и период тика.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick_interval must be positive", ErrInvalidConfig)
	}
	for name, q := range map[string]QueueConfig{"event_queue": c.EventQueue, "command_queue": c.CommandQueue} {
		if q.Capacity < 0 {
			return fmt.Errorf("%w: %s.capacity must not be negative", ErrInvalidConfig, name)
		}
		if _, err := channel.ParseOverflow(q.Overflow); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
		}
	}
	for _, k := range c.EventQueue.LatestOnly {
		if domain.ParseEventKind(k) == domain.EventUnknown {
			return fmt.Errorf("%w: event_queue.latest_only: unknown event kind %q", ErrInvalidConfig, k)
		}
	}
	if len(c.CommandQueue.LatestOnly) > 0 {
		return fmt.Errorf("%w: command_queue.latest_only is not supported", ErrInvalidConfig)
	}
	return nil
}

// EventOptions переводит конфигурацию в настройки канала событий. Вызывать после Validate.
func (c *Config) EventOptions() channel.EventOptions {
	overflow, _ := channel.ParseOverflow(c.EventQueue.Overflow)
	opts := channel.EventOptions{
		Queue: channel.Options{Capacity: c.EventQueue.Capacity, Overflow: overflow},
	}
	for _, k := range c.EventQueue.LatestOnly {
		opts.LatestOnly = append(opts.LatestOnly, domain.ParseEventKind(k))
	}
	return opts
}

// CommandOptions переводит конфигурацию в настройки канала команд. Вызывать после Validate.
func (c *Config) CommandOptions() channel.Options {
	overflow, _ := channel.ParseOverflow(c.CommandQueue.Overflow)
	return channel.Options{Capacity: c.CommandQueue.Capacity, Overflow: overflow}
}

// SlogLevel разбирает log_level; неизвестное значение - INFO.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
