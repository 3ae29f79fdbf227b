package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/wrongjunior/storybridge/internal/channel"
	"github.com/wrongjunior/storybridge/internal/domain"
	"github.com/wrongjunior/storybridge/internal/service"
	"log/slog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	readLimit  = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Разрешаем подключения с любых источников (слой представления работает локально)
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler реализует HTTP-обработчик для WebSocket: каждое соединение - подписчик событий
// и источник команд для игрового слоя.
type Handler struct {
	Bridge *service.Bridge
	Logger *slog.Logger
}

// NewHandler создаёт новый обработчик.
func NewHandler(b *service.Bridge, logger *slog.Logger) *Handler {
	return &Handler{
		Bridge: b,
		Logger: logger,
	}
}

// ServeHTTP выполняет апгрейд соединения и регистрирует подписчика.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("WebSocket upgrade error", "error", err)
		return
	}
	sub, err := h.Bridge.Subscribe()
	if err != nil {
		h.Logger.Warn("Subscription rejected", "error", err)
		closeWith(conn, websocket.CloseGoingAway, "channel closed")
		conn.Close()
		return
	}
	h.Logger.Info("Story client connected", "remote", r.RemoteAddr)

	// Создаём контекст для управления жизненным циклом соединения.
	ctx, cancel := context.WithCancel(r.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(ctx, conn, sub)
	}()
	h.readPump(conn)
	cancel()
	<-done
	h.Bridge.Unsubscribe(sub)
	h.Logger.Info("Story client disconnected", "remote", r.RemoteAddr)
}

// readPump читает команды клиента и передаёт их игровому слою.
func (h *Handler) readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.Logger.Error("readPump error", "error", err)
			}
			return
		}
		msg, err := domain.DecodeMessage(data)
		if err != nil {
			h.Logger.Warn("Malformed message ignored", "error", err)
			continue
		}
		if msg.Type != domain.MessageCommand {
			h.Logger.Warn("Unexpected message type ignored", "type", msg.Type)
			continue
		}
		if err := h.Bridge.Request(*msg.Command); err != nil {
			if errors.Is(err, domain.ErrChannelClosed) {
				h.Logger.Info("Command channel closed, dropping connection")
				return
			}
			h.Logger.Error("Request failed", "error", err)
		}
	}
}

// writePump пересылает события подписчика клиенту и периодически отправляет ping.
// Единственный писатель в соединение.
func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sub *channel.Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		if !h.flush(conn, sub) {
			return
		}
		select {
		case <-sub.Wait():
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.Logger.Error("Ping error", "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// flush отправляет все ожидающие события. false - соединение нужно закрыть.
func (h *Handler) flush(conn *websocket.Conn, sub *channel.Subscription) bool {
	for {
		event, ok, err := sub.Next()
		if err != nil {
			// канал закрыт: сообщаем клиенту о штатном завершении
			closeWith(conn, websocket.CloseGoingAway, "channel closed")
			return false
		}
		if !ok {
			return true
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(domain.EventMessage(event)); err != nil {
			h.Logger.Error("Error writing JSON", "error", err)
			return false
		}
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}

// SnapshotHandler отдаёт текущий снимок игры в JSON.
func SnapshotHandler(b *service.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(b.Current())
	}
}

// NetworkHandler переключает сеть игрового слоя: POST с {"on": true|false} задаёт состояние,
// пустое тело - переключает. Отвечает снимком после изменения.
func NetworkHandler(b *service.Bridge) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			On *bool `json:"on"`
		}
		// io.EOF - пустое тело, в том числе chunked без Content-Length
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		var err error
		if req.On != nil {
			err = b.Menu().SetNetwork(*req.On)
		} else {
			err = b.Menu().ToggleNetwork()
		}
		if err != nil && !errors.Is(err, domain.ErrChannelClosed) {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(b.Current())
	}
}

// SetupRouter настраивает маршруты через chi и возвращает http.Handler.
func SetupRouter(b *service.Bridge, logger *slog.Logger, wsPath, snapshotPath string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	handler := NewHandler(b, logger)
	r.Get(wsPath, handler.ServeHTTP)
	r.Get(snapshotPath, SnapshotHandler(b))
	r.Post("/network", NetworkHandler(b))
	return r
}
