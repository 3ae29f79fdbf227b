package channel

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wrongjunior/storybridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventsDeliveredInOrderWithoutLossOrDuplication(t *testing.T) {
	ch := NewEventChannel(EventOptions{}, testLogger())
	sub, err := ch.Subscribe()
	if err != nil {
		t.Fatal(err)
	}

	var emitted []domain.Event
	for i := 0; i < 50; i++ {
		e := domain.Started()
		if i%2 == 1 {
			e = domain.NetworkToggled()
		}
		emitted = append(emitted, e)
		if err := ch.Emit(e); err != nil {
			t.Fatal(err)
		}
	}

	for i, want := range emitted {
		got, ok, err := sub.Next()
		if err != nil || !ok {
			t.Fatalf("событие %d: ok=%v err=%v", i, ok, err)
		}
		if got.ID != want.ID {
			t.Fatalf("событие %d: ожидался %s, получен %s", i, want.ID, got.ID)
		}
	}
	if _, ok, err := sub.Next(); ok || err != nil {
		t.Fatalf("Ожидалась пустая очередь, ok=%v err=%v", ok, err)
	}
}

func TestEventsFanOutOnlyToSubscribersAtEmission(t *testing.T) {
	ch := NewEventChannel(EventOptions{}, testLogger())
	early, _ := ch.Subscribe()
	if err := ch.Emit(domain.Started()); err != nil {
		t.Fatal(err)
	}
	late, _ := ch.Subscribe()
	if err := ch.Emit(domain.NetworkToggled()); err != nil {
		t.Fatal(err)
	}

	evs, err := early.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 || evs[0].Kind != domain.EventStarted || evs[1].Kind != domain.EventNetworkToggled {
		t.Errorf("Ранний подписчик получил %v", evs)
	}
	evs, _ = late.Pending()
	if len(evs) != 1 || evs[0].Kind != domain.EventNetworkToggled {
		t.Errorf("Поздний подписчик получил %v", evs)
	}
}

func TestLatestOnlyKindReplacesPending(t *testing.T) {
	ch := NewEventChannel(EventOptions{LatestOnly: []domain.EventKind{domain.EventNetworkToggled}}, testLogger())
	sub, _ := ch.Subscribe()

	first := domain.NetworkToggled()
	started := domain.Started()
	last := domain.NetworkToggled()
	for _, e := range []domain.Event{first, started, last} {
		if err := ch.Emit(e); err != nil {
			t.Fatal(err)
		}
	}

	evs, _ := sub.Pending()
	if len(evs) != 2 {
		t.Fatalf("Ожидалось 2 события, получено %d", len(evs))
	}
	if evs[0].ID != started.ID || evs[1].ID != last.ID {
		t.Errorf("Неверный порядок после схлопывания: %v", evs)
	}
	if st := sub.Stats(); st.Coalesced != 1 {
		t.Errorf("Ожидалось Coalesced=1, получено %d", st.Coalesced)
	}
}

func TestBoundedQueueDropOldest(t *testing.T) {
	cmds := NewCommandChannel(Options{Capacity: 2, Overflow: DropOldest}, testLogger())
	a, b, c := domain.SetFriendInLobby(true), domain.SetFriendReady(true), domain.ForceDisconnect()
	for _, cmd := range []domain.Command{a, b, c} {
		if err := cmds.Request(cmd); err != nil {
			t.Fatal(err)
		}
	}
	got, err := cmds.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != c.ID {
		t.Errorf("Ожидались [b c], получено %v", got)
	}
	if st := cmds.Stats(); st.Dropped != 1 || st.Pending != 0 {
		t.Errorf("Неверная статистика: %+v", st)
	}
}

func TestBoundedQueueDropNewest(t *testing.T) {
	cmds := NewCommandChannel(Options{Capacity: 1, Overflow: DropNewest}, testLogger())
	a := domain.SetFriendInLobby(true)
	_ = cmds.Request(a)
	if err := cmds.Request(domain.ForceDisconnect()); err != nil {
		t.Fatalf("Переполнение не должно быть ошибкой: %v", err)
	}
	got, _ := cmds.Drain()
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("Ожидалась только первая команда, получено %v", got)
	}
}

func TestCommandsDrainedInRequestOrder(t *testing.T) {
	cmds := NewCommandChannel(Options{}, testLogger())
	if got, err := cmds.Drain(); err != nil || len(got) != 0 {
		t.Fatalf("Пустой Drain: %v %v", got, err)
	}

	want := []domain.Command{
		domain.SetFriendInLobby(true),
		domain.SetFriendReady(true),
		domain.ForceDisconnect(),
		domain.SetFriendReady(false),
	}
	for _, c := range want {
		if err := cmds.Request(c); err != nil {
			t.Fatal(err)
		}
	}
	got, err := cmds.Drain()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("Ожидалось %d команд, получено %d", len(want), len(got))
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("позиция %d: ожидалась %s, получена %s", i, want[i], got[i])
		}
	}
	if again, _ := cmds.Drain(); len(again) != 0 {
		t.Errorf("Повторный Drain вернул %v", again)
	}
}

func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	cmds := NewCommandChannel(Options{}, testLogger())
	const producers, perProducer = 8, 200

	ids := make([][]string, producers)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c := domain.SetFriendReady(i%2 == 0)
				ids[p] = append(ids[p], c.ID)
				if err := cmds.Request(c); err != nil {
					t.Error(err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	got, _ := cmds.Drain()
	if len(got) != producers*perProducer {
		t.Fatalf("Ожидалось %d команд, получено %d", producers*perProducer, len(got))
	}
	pos := make(map[string]int, len(got))
	for i, c := range got {
		if _, dup := pos[c.ID]; dup {
			t.Fatalf("Дубликат команды %s", c.ID)
		}
		pos[c.ID] = i
	}
	for p := range ids {
		for i := 1; i < len(ids[p]); i++ {
			if pos[ids[p][i-1]] > pos[ids[p][i]] {
				t.Fatalf("Нарушен порядок производителя %d", p)
			}
		}
	}
}

func TestClosedChannelsReportChannelClosed(t *testing.T) {
	events := NewEventChannel(EventOptions{}, testLogger())
	sub, _ := events.Subscribe()
	pending := domain.Started()
	_ = events.Emit(pending)
	events.Close()
	events.Close()

	if err := events.Emit(domain.NetworkToggled()); !errors.Is(err, domain.ErrChannelClosed) {
		t.Errorf("Emit после закрытия: %v", err)
	}
	if _, err := events.Subscribe(); !errors.Is(err, domain.ErrChannelClosed) {
		t.Errorf("Subscribe после закрытия: %v", err)
	}
	// остаток выдаётся, затем - закрыто
	if got, ok, err := sub.Next(); !ok || err != nil || got.ID != pending.ID {
		t.Fatalf("Ожидался остаток %s, получено %v %v %v", pending.ID, got, ok, err)
	}
	if _, ok, err := sub.Next(); ok || !errors.Is(err, domain.ErrChannelClosed) {
		t.Errorf("Next после закрытия: ok=%v err=%v", ok, err)
	}

	cmds := NewCommandChannel(Options{}, testLogger())
	cmds.Close()
	if err := cmds.Request(domain.ForceDisconnect()); !errors.Is(err, domain.ErrChannelClosed) {
		t.Errorf("Request после закрытия: %v", err)
	}
	if _, err := cmds.Drain(); !errors.Is(err, domain.ErrChannelClosed) {
		t.Errorf("Drain после закрытия: %v", err)
	}
}

func TestWaitSignalsAndClosesWithoutHang(t *testing.T) {
	events := NewEventChannel(EventOptions{}, testLogger())
	sub, _ := events.Subscribe()

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = events.Emit(domain.Started())
	}()
	select {
	case <-sub.Wait():
	case <-time.After(2 * time.Second):
		t.Fatal("Таймаут ожидания события")
	}
	if _, ok, _ := sub.Next(); !ok {
		t.Fatal("Сигнал без события")
	}

	events.Close()
	select {
	case _, open := <-sub.Wait():
		if open {
			t.Error("Ожидалось закрытие канала готовности")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait завис после закрытия")
	}
}

func TestUnsubscribeClosesSubscription(t *testing.T) {
	events := NewEventChannel(EventOptions{}, testLogger())
	sub, _ := events.Subscribe()
	events.Unsubscribe(sub)
	if events.Subscribers() != 0 {
		t.Errorf("Ожидалось 0 подписчиков")
	}
	if err := events.Emit(domain.Started()); err != nil {
		t.Fatalf("Канал должен оставаться открытым: %v", err)
	}
	if _, _, err := sub.Next(); !errors.Is(err, domain.ErrChannelClosed) {
		t.Errorf("Ожидалась ErrChannelClosed, получено %v", err)
	}
}

func TestParseOverflow(t *testing.T) {
	if o, err := ParseOverflow("DROP_NEWEST"); err != nil || o != DropNewest {
		t.Errorf("drop_newest: %v %v", o, err)
	}
	if o, err := ParseOverflow(""); err != nil || o != DropOldest {
		t.Errorf("пусто: %v %v", o, err)
	}
	if _, err := ParseOverflow("block"); err == nil {
		t.Error("Ожидалась ошибка для неизвестной политики")
	}
}
