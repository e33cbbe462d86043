package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
)

// Recorder は通知の送信結果を記録する。
type Recorder interface {
	RecordNotification(sink string, ok bool)
	RecordNotificationDropped()
}

// sendTimeout は1送信先あたりの送信上限。
const sendTimeout = 15 * time.Second

// Dispatcher は通知をキューに積み、バックグラウンドで全送信先へ配送する。
// キューが満杯の場合は通知を破棄し、呼び出し元をブロックしない。
type Dispatcher struct {
	queue   chan Message
	sinks   []Sink
	logger  *slog.Logger
	metrics Recorder

	// mu はclosedの確認とキューへの送信を、Closeによるクローズと排他にする
	mu        sync.Mutex
	closed    bool
	startOnce sync.Once
	done      chan struct{}
}

// NewDispatcher はDispatcherを生成する。queueSizeが0以下の場合は64を使用する。
// metricsはnilでもよい。
func NewDispatcher(queueSize int, logger *slog.Logger, metrics Recorder, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queue:   make(chan Message, queueSize),
		sinks:   sinks,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Start は配送goroutineを起動する。2回目以降の呼び出しは何もしない。
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Close は新規の受付を止め、キューに残った通知を配送し終えるまで待つ。
// Start前に呼ばれた場合は残りの通知を破棄する。
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	// Start前の場合は配送goroutineを起動せずに終了扱いにする
	d.startOnce.Do(func() { close(d.done) })
	<-d.done
}

// NotifyNewItems は新着掲載の通知をキューに積む。
func (d *Dispatcher) NotifyNewItems(_ context.Context, searchName string, items []*model.Item) {
	if len(items) == 0 {
		return
	}
	d.enqueue(NewItemsMessage(searchName, items))
}

// NotifyError はエラー通知をキューに積む。
func (d *Dispatcher) NotifyError(_ context.Context, searchName, message string) {
	d.enqueue(ErrorMessage(searchName, message))
}

func (d *Dispatcher) enqueue(msg Message) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.dropped(msg, "通知の受付を終了しているため通知を破棄しました")
		return
	}
	select {
	case d.queue <- msg:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		d.dropped(msg, "通知キューが満杯のため通知を破棄しました")
	}
}

func (d *Dispatcher) dropped(msg Message, reason string) {
	d.logger.Warn(reason,
		slog.String("kind", string(msg.Kind)),
		slog.String("title", msg.Title),
	)
	if d.metrics != nil {
		d.metrics.RecordNotificationDropped()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := sink.Send(ctx, msg)
		cancel()

		if err != nil {
			d.logger.Error("通知の送信に失敗しました",
				slog.String("sink", sink.Name()),
				slog.String("kind", string(msg.Kind)),
				slog.String("error", err.Error()),
			)
		}
		if d.metrics != nil {
			d.metrics.RecordNotification(sink.Name(), err == nil)
		}
	}
}
