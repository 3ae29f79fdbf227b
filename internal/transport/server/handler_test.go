package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wrongjunior/storybridge/internal/domain"
	"github.com/wrongjunior/storybridge/internal/service"
)

func newTestServer(t *testing.T) (*service.Bridge, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := service.NewBridge(service.BridgeOptions{}, logger)
	srv := httptest.NewServer(SetupRouter(b, logger, "/ws", "/snapshot"))
	t.Cleanup(func() {
		b.Shutdown()
		srv.Close()
	})
	return b, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("Таймаут ожидания")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEventsStreamedToWebSocketClient(t *testing.T) {
	b, srv := newTestServer(t)
	conn := dial(t, srv)
	waitFor(t, func() bool { return b.Events().Subscribers() == 1 })

	if err := b.Menu().Start(); err != nil {
		t.Fatal(err)
	}
	if err := b.Menu().ToggleNetwork(); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for _, want := range []domain.EventKind{domain.EventStarted, domain.EventNetworkToggled} {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatal(err)
		}
		msg, err := domain.DecodeMessage(data)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Type != domain.MessageEvent || msg.Event.Kind != want {
			t.Errorf("Ожидалось событие %s, получено %s", want, data)
		}
	}
}

func TestCommandsFromWebSocketReachGameLayer(t *testing.T) {
	b, srv := newTestServer(t)
	_ = b.Menu().SetNetwork(true)
	conn := dial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"command","command":{"kind":"JUMP"}}`)); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(domain.CommandMessage(domain.SetFriendInLobby(true))); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return b.Commands().Stats().Pending == 1 })
	if _, err := b.Step(); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(srv.URL + "/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if !snap.Connected || !snap.FriendInLobby {
		t.Errorf("Снимок должен отражать команду: %+v", snap)
	}
}

func TestShutdownClosesWebSocket(t *testing.T) {
	b, srv := newTestServer(t)
	conn := dial(t, srv)
	waitFor(t, func() bool { return b.Events().Subscribers() == 1 })

	b.Shutdown()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("Ожидалось закрытие CloseGoingAway, получено %v", err)
	}
}

func TestNetworkHandlerSetsAndToggles(t *testing.T) {
	b, srv := newTestServer(t)
	sub, _ := b.Subscribe()

	resp, err := http.Post(srv.URL+"/network", "application/json", strings.NewReader(`{"on":true}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !b.Current().Connected {
		t.Fatal("Сеть должна быть включена")
	}

	resp, err = http.Post(srv.URL+"/network", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if b.Current().Connected {
		t.Error("Пустое тело должно переключать сеть")
	}

	evs, _ := sub.Pending()
	if len(evs) != 2 {
		t.Errorf("Ожидалось 2 NETWORK_TOGGLED, получено %d", len(evs))
	}

	resp, err = http.Post(srv.URL+"/network", "application/json", strings.NewReader(`{`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Ожидался 400, получен %d", resp.StatusCode)
	}
}

func TestNetworkHandlerChunkedEmptyBodyToggles(t *testing.T) {
	b := service.NewBridge(service.BridgeOptions{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(b.Shutdown)

	req := httptest.NewRequest(http.MethodPost, "/network", strings.NewReader(""))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	NetworkHandler(b).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", rec.Code)
	}
	var snap domain.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if !snap.Connected || !b.Current().Connected {
		t.Errorf("Тело неизвестной длины без данных должно переключать сеть: %+v", snap)
	}
}
