package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/listingwatch/internal/metrics"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/tracker"
)

// コンパイル時チェック
var (
	_ tracker.Notifier = (*Dispatcher)(nil)
	_ Recorder         = (*metrics.Collector)(nil)
	_ Sink             = (*LogSink)(nil)
	_ Sink             = (*TelegramSink)(nil)
)

// --- モック ---

type mockSink struct {
	mu       sync.Mutex
	name     string
	received []Message
	sendFunc func(msg Message) error
}

func (m *mockSink) Name() string { return m.name }

func (m *mockSink) Send(_ context.Context, msg Message) error {
	m.mu.Lock()
	m.received = append(m.received, msg)
	m.mu.Unlock()
	if m.sendFunc != nil {
		return m.sendFunc(msg)
	}
	return nil
}

func (m *mockSink) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.received...)
}

type mockRecorder struct {
	mu      sync.Mutex
	results map[string]int
	dropped int
}

func (m *mockRecorder) RecordNotification(sink string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]int{}
	}
	key := sink + ":ok"
	if !ok {
		key = sink + ":error"
	}
	m.results[key]++
}

func (m *mockRecorder) RecordNotificationDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

type mockBot struct {
	sent    []tgbotapi.Chattable
	sendErr error
}

func (m *mockBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.sent = append(m.sent, c)
	return tgbotapi.Message{}, m.sendErr
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// --- メッセージ整形 ---

func TestNewItemsMessage_Single(t *testing.T) {
	msg := NewItemsMessage("Куртки", []*model.Item{{
		Title:         "Куртка зимняя",
		Price:         "4 500 ₽",
		PublishedText: "2 часа назад",
		URL:           "https://market.example/kurtka_101",
	}})

	if msg.Title != "Новое объявление: Куртки" {
		t.Errorf("Title = %q", msg.Title)
	}
	if msg.Body != "Куртка зимняя | Цена: 4 500 ₽ | Дата: 2 часа назад" {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.URL != "https://market.example/kurtka_101" {
		t.Errorf("URL = %q", msg.URL)
	}
}

func TestNewItemsMessage_SingleWithoutFields(t *testing.T) {
	msg := NewItemsMessage("x", []*model.Item{{URL: "https://market.example/a_1"}})
	if msg.Body != "Найдено новое объявление" {
		t.Errorf("Body = %q", msg.Body)
	}
}

func TestNewItemsMessage_Multiple(t *testing.T) {
	items := []*model.Item{
		{Title: "Очень длинное название куртки для проверки обрезки", Price: "1 000 ₽"},
		{Title: "Вторая"},
		{Title: "Третья"},
	}
	msg := NewItemsMessage("Куртки", items)

	if msg.Title != "Новых объявлений: 3" {
		t.Errorf("Title = %q", msg.Title)
	}
	want := "По запросу: Куртки\nПример: Очень длинное название куртки  - 1 000 ₽\n..."
	if msg.Body != want {
		t.Errorf("Body = %q, want %q", msg.Body, want)
	}
	if msg.URL != "" {
		t.Errorf("URL = %q, want empty", msg.URL)
	}
}

func TestErrorMessage_Truncates(t *testing.T) {
	long := strings.Repeat("ж", 150)
	msg := ErrorMessage("Куртки", long)

	if msg.Title != "Ошибка в запросе: Куртки" {
		t.Errorf("Title = %q", msg.Title)
	}
	if n := len([]rune(msg.Body)); n != 100 {
		t.Errorf("body length = %d, want 100", n)
	}
	if ErrorMessage("", "x").Title != "Ошибка Listingwatch" {
		t.Error("title without search name should be generic")
	}
}

// --- 送信先 ---

func TestLogSink_Send(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(newTestLogger(&buf))

	if err := sink.Send(context.Background(), ErrorMessage("a", "blocked")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"kind":"error"`) {
		t.Errorf("unexpected log output: %s", out)
	}
}

func TestTelegramSink_Send(t *testing.T) {
	bot := &mockBot{}
	sink := &TelegramSink{bot: bot, chatID: 42}

	msg := NewItemsMessage("Куртки", []*model.Item{{Title: "Куртка", URL: "https://market.example/k_1"}})
	if err := sink.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(bot.sent))
	}
	m, ok := bot.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T, want MessageConfig", bot.sent[0])
	}
	if m.ChatID != 42 {
		t.Errorf("ChatID = %d, want 42", m.ChatID)
	}
	if !strings.Contains(m.Text, "https://market.example/k_1") {
		t.Errorf("Text = %q, want URL", m.Text)
	}
}

func TestTelegramSink_SendError(t *testing.T) {
	sink := &TelegramSink{bot: &mockBot{sendErr: errors.New("forbidden")}, chatID: 1}
	if err := sink.Send(context.Background(), ErrorMessage("a", "b")); err == nil {
		t.Fatal("error should be returned")
	}
}

// --- Dispatcher ---

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	var buf bytes.Buffer
	a := &mockSink{name: "a"}
	b := &mockSink{name: "b", sendFunc: func(Message) error { return errors.New("down") }}
	rec := &mockRecorder{}

	d := NewDispatcher(4, newTestLogger(&buf), rec, a, b)
	d.Start()
	d.NotifyNewItems(context.Background(), "s", []*model.Item{{Title: "x"}})
	d.NotifyError(context.Background(), "s", "blocked")
	d.Close()

	if got := len(a.messages()); got != 2 {
		t.Errorf("sink a received = %d, want 2", got)
	}
	if got := len(b.messages()); got != 2 {
		t.Errorf("sink b received = %d, want 2", got)
	}
	if rec.results["a:ok"] != 2 || rec.results["b:error"] != 2 {
		t.Errorf("results = %v", rec.results)
	}
	if !strings.Contains(buf.String(), "down") {
		t.Error("sink error should be logged")
	}
}

func TestDispatcher_SkipsEmptyItems(t *testing.T) {
	var buf bytes.Buffer
	a := &mockSink{name: "a"}
	d := NewDispatcher(1, newTestLogger(&buf), nil, a)
	d.Start()
	d.NotifyNewItems(context.Background(), "s", nil)
	d.Close()

	if got := len(a.messages()); got != 0 {
		t.Errorf("received = %d, want 0", got)
	}
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{}
	d := NewDispatcher(1, newTestLogger(&buf), rec, &mockSink{name: "a"})

	// 未起動のためキューは消費されない
	d.NotifyError(context.Background(), "s", "1")
	d.NotifyError(context.Background(), "s", "2")

	if rec.dropped != 1 {
		t.Errorf("dropped = %d, want 1", rec.dropped)
	}
	d.Close()
}

func TestDispatcher_NotifyAfterCloseDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{}
	d := NewDispatcher(1, newTestLogger(&buf), rec)
	d.Start()
	d.Close()
	d.Close()

	d.NotifyError(context.Background(), "s", "late")
	if rec.dropped != 1 {
		t.Errorf("dropped = %d, want 1", rec.dropped)
	}
}

func TestDispatcher_ConcurrentNotifyAndClose(t *testing.T) {
	var buf bytes.Buffer
	rec := &mockRecorder{}
	a := &mockSink{name: "a"}
	d := NewDispatcher(8, newTestLogger(&buf), rec, a)
	d.Start()

	const senders, perSender = 8, 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for range perSender {
				d.NotifyError(context.Background(), "s", "blocked")
			}
		}()
	}
	close(start)
	d.Close()
	wg.Wait()

	rec.mu.Lock()
	dropped := rec.dropped
	rec.mu.Unlock()
	// 受け付けた通知はすべて配送され、それ以外は破棄として数えられる
	if got := len(a.messages()) + dropped; got != senders*perSender {
		t.Errorf("delivered+dropped = %d, want %d", got, senders*perSender)
	}
}
