package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wrongjunior/storybridge/internal/channel"
	"github.com/wrongjunior/storybridge/internal/domain"
	"github.com/wrongjunior/storybridge/internal/service"
	"log/slog"
)

const (
	writeWait       = 10 * time.Second
	flushInterval   = 50 * time.Millisecond
	snapshotTimeout = 2 * time.Second
	maxBackoff      = 30 * time.Second
)

// ClientTransport реализует транспортный слой сюжетного клиента: подключение, получение событий,
// отправку команд и переподключение.
type ClientTransport struct {
	ServerURL     string
	SnapshotURL   string
	Logger        *slog.Logger
	ClientService *service.ClientService

	mu      sync.Mutex
	conn    *websocket.Conn
	outbox  *channel.CommandChannel
	unsent  []domain.Command
	httpc   *http.Client
	backoff time.Duration
}

// NewClientTransport создаёт новый экземпляр транспорта клиента.
func NewClientTransport(serverURL, snapshotURL string, cs *service.ClientService, logger *slog.Logger) *ClientTransport {
	return &ClientTransport{
		ServerURL:     serverURL,
		SnapshotURL:   snapshotURL,
		ClientService: cs,
		Logger:        logger,
		outbox:        channel.NewCommandChannel(channel.Options{}, logger),
		httpc:         &http.Client{Timeout: snapshotTimeout},
		backoff:       time.Second,
	}
}

// connect устанавливает WebSocket-соединение с сервером.
func (ct *ClientTransport) connect(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(ct.ServerURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ct.mu.Lock()
	ct.conn = conn
	ct.mu.Unlock()
	ct.Logger.Info("Connected to server", "url", ct.ServerURL)
	return conn, nil
}

// Listen запускает цикл получения событий с автоматическим переподключением.
// Завершается при отмене ctx или когда сервер закрыл канал событий.
func (ct *ClientTransport) Listen(ctx context.Context) {
	defer ct.shutdown()
	go ct.flushLoop(ctx)

	backoff := ct.backoff
	for {
		conn, err := ct.connect(ctx)
		if err != nil {
			ct.Logger.Error("Connection attempt failed", "error", err)
			select {
			case <-ctx.Done():
				ct.Logger.Info("Client transport shutting down")
				return
			case <-time.After(backoff):
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = ct.backoff

		closed := ct.readLoop(ctx, conn)
		ct.dropConn(conn)
		if closed {
			ct.Logger.Info("Server closed event channel")
			return
		}
		if ctx.Err() != nil {
			ct.Logger.Info("Client transport shutting down")
			return
		}
	}
}

// readLoop читает события до ошибки. true - сервер штатно закрыл канал.
func (ct *ClientTransport) readLoop(ctx context.Context, conn *websocket.Conn) bool {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return true
			}
			if ctx.Err() == nil {
				ct.Logger.Error("Read error", "error", err)
			}
			return false
		}
		msg, err := domain.DecodeMessage(data)
		if err != nil {
			ct.Logger.Error("JSON unmarshal error", "error", err)
			continue
		}
		if msg.Type == domain.MessageEvent {
			ct.ClientService.ProcessEvent(*msg.Event)
		}
	}
}

func (ct *ClientTransport) dropConn(conn *websocket.Conn) {
	ct.mu.Lock()
	if ct.conn == conn {
		ct.conn = nil
	}
	ct.mu.Unlock()
	conn.Close()
}

// Request ставит команду в исходящую очередь. Отправка происходит в flushLoop,
// команды, не ушедшие из-за разрыва, отправляются после переподключения.
func (ct *ClientTransport) Request(cmd domain.Command) error {
	return ct.outbox.Request(cmd)
}

func (ct *ClientTransport) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ct.outbox.Wait():
		case <-ticker.C:
		}
		if err := ct.flush(); errors.Is(err, domain.ErrChannelClosed) {
			return
		}
	}
}

// flush отправляет ожидающие команды по порядку. После закрытия исходящей очереди
// возвращает domain.ErrChannelClosed.
func (ct *ClientTransport) flush() error {
	cmds, drainErr := ct.outbox.Drain()

	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.unsent = append(ct.unsent, cmds...)
	if ct.conn != nil {
		for len(ct.unsent) > 0 {
			cmd := ct.unsent[0]
			ct.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ct.conn.WriteJSON(domain.CommandMessage(cmd)); err != nil {
				ct.Logger.Error("Command send failed", "command", cmd.String(), "error", err)
				break
			}
			ct.unsent = ct.unsent[1:]
			ct.ClientService.RecordCommand(cmd)
		}
	}
	if drainErr != nil && len(ct.unsent) > 0 {
		ct.Logger.Warn("Commands not sent before shutdown", "count", len(ct.unsent))
	}
	return drainErr
}

// Pending возвращает число команд, ожидающих отправки.
func (ct *ClientTransport) Pending() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.unsent) + ct.outbox.Stats().Pending
}

// Current запрашивает текущий снимок у игрового сервера. Никогда не завершается ошибкой:
// если сервер недоступен, возвращается снимок по умолчанию.
func (ct *ClientTransport) Current() domain.Snapshot {
	resp, err := ct.httpc.Get(ct.SnapshotURL)
	if err != nil {
		ct.Logger.Warn("Snapshot unavailable", "error", err)
		return domain.DefaultSnapshot()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		ct.Logger.Warn("Snapshot unavailable", "status", resp.StatusCode)
		return domain.DefaultSnapshot()
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		ct.Logger.Warn("Snapshot decode error", "error", err)
		return domain.DefaultSnapshot()
	}
	return snap
}

// shutdown закрывает исходящую очередь и локальную очередь событий сюжета.
func (ct *ClientTransport) shutdown() {
	ct.outbox.Close()
	ct.ClientService.Close()
}
