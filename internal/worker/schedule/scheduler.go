// Package schedule はアクティブな検索を定期的にチェックするスケジューラを提供する。
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/tracker"
)

// State はスケジューラの状態。
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// SearchLister はアクティブな検索の一覧を提供する。
type SearchLister interface {
	ListActive(ctx context.Context) ([]*model.Search, error)
}

// Checker は読み込み済みの検索を1回チェックする。
type Checker interface {
	CheckLoaded(ctx context.Context, search *model.Search) *tracker.CheckResult
}

// Config はスケジューラの設定。
type Config struct {
	// Interval はtick間隔。
	Interval time.Duration
	// MinInterval は検索ごとの最小チェック間隔。0の場合はIntervalを使用する。
	MinInterval time.Duration
}

// ErrStopRequested は停止要求によりサイクルが中断されたことを示す。
var ErrStopRequested = errors.New("scheduler stop requested")

// Scheduler はtickごとにアクティブな検索を順番にチェックする。
// 同時に実行されるチェックは常に1つ。
type Scheduler struct {
	searches SearchLister
	checker  Checker
	logger   *slog.Logger
	cfg      Config
	backoff  *backoffTable
	now      func() time.Time

	mu    sync.Mutex
	state State
	stop  chan struct{}
	done  chan struct{}
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// Intervalが0以下の場合はデフォルト値30分を使用する。
func NewScheduler(searches SearchLister, checker Checker, logger *slog.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = cfg.Interval
	}
	return &Scheduler{
		searches: searches,
		checker:  checker,
		logger:   logger,
		cfg:      cfg,
		backoff:  newBackoffTable(cfg.Interval),
		now:      time.Now,
		state:    StateStopped,
	}
}

// State は現在の状態を返す。
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start はバックグラウンドでtickループを開始する。
// 既に実行中（または停止処理中）の場合は何もせずfalseを返す。
// ctxがキャンセルされるとループは終了し、状態はStoppedに戻る。
func (s *Scheduler) Start(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return false
	}
	s.state = StateRunning
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.stop, s.done)
	return true
}

// Stop はループの停止を要求し、実行中のチェックの完了を待つ。
// 実行中のチェックはキャンセルしない。停止済みの場合は何もしない。
func (s *Scheduler) Stop() {
	<-s.RequestStop()
}

// RequestStop はループの停止を要求し、完了を待たずに終了通知チャネルを返す。
// 呼び出し後の状態はStoppingまたはStoppedになる。
func (s *Scheduler) RequestStop() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateStopped:
		done := make(chan struct{})
		close(done)
		return done
	case StateRunning:
		s.state = StateStopping
		close(s.stop)
	}
	return s.done
}

// Wait はループの終了を待つ。
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("チェックスケジューラを開始しました",
		slog.Duration("interval", s.cfg.Interval),
		slog.Duration("min_interval", s.cfg.MinInterval),
	)

	// 起動直後に1回実行
	s.runCycle(ctx, stop)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("チェックスケジューラを停止しました", slog.String("reason", "context canceled"))
			return
		case <-stop:
			s.logger.Info("チェックスケジューラを停止しました", slog.String("reason", "stop requested"))
			return
		case <-ticker.C:
			s.runCycle(ctx, stop)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, stop <-chan struct{}) {
	if err := s.runOnce(ctx, stop); err != nil && !errors.Is(err, ErrStopRequested) && !errors.Is(err, context.Canceled) {
		s.logger.Error("チェックサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce はアクティブな検索を1回ずつ順番にチェックする。
// 最小間隔を満たさない検索とバックオフ中の検索はスキップする。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runOnce(ctx, nil)
}

func (s *Scheduler) runOnce(ctx context.Context, stop <-chan struct{}) error {
	start := s.now()

	searches, err := s.searches.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("アクティブな検索の取得に失敗: %w", err)
	}

	if len(searches) == 0 {
		s.logger.Info("チェック対象の検索はありません")
		return nil
	}

	s.logger.Info("チェックサイクルを開始します",
		slog.Int("search_count", len(searches)),
	)

	var checked, skipped, inserted int
	for _, search := range searches {
		// 停止要求とキャンセルは検索の境界でのみ確認する
		select {
		case <-stop:
			return ErrStopRequested
		default:
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if reason, ok := s.skipReason(search); ok {
			s.logger.Debug("検索をスキップします",
				slog.String("search_id", search.ID),
				slog.String("reason", reason),
			)
			skipped++
			continue
		}

		result := s.check(ctx, search)
		checked++
		inserted += len(result.NewItems)

		if delay, n := s.backoff.apply(search.ID, result.Outcome, s.now()); delay > 0 {
			s.logger.Warn("ブロックされたため検索を一時停止します",
				slog.String("search_id", search.ID),
				slog.Int("consecutive_blocks", n),
				slog.Duration("backoff", delay),
			)
		}
	}

	s.logger.Info("チェックサイクルが完了しました",
		slog.Int("checked", checked),
		slog.Int("skipped", skipped),
		slog.Int("inserted", inserted),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return nil
}

// skipReason は今回のtickでチェックしない理由を返す。
func (s *Scheduler) skipReason(search *model.Search) (string, bool) {
	now := s.now()
	if until, paused := s.backoff.pausedUntil(search.ID, now); paused {
		return "backoff until " + until.UTC().Format(time.RFC3339), true
	}
	// tick境界のずれでチェック済みの検索が1tick飛ばされないよう、10%の余裕を持たせる
	if elapsed, ok := search.CheckedSince(now); ok && elapsed+s.cfg.MinInterval/10 < s.cfg.MinInterval {
		return "min interval", true
	}
	return "", false
}

// check は1件のチェックを実行し、パニックを捕捉する。
func (s *Scheduler) check(ctx context.Context, search *model.Search) (result *tracker.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("検索のチェック中にパニックが発生しました",
				slog.String("search_id", search.ID),
				slog.Any("panic", r),
			)
			result = &tracker.CheckResult{SearchID: search.ID, Outcome: tracker.OutcomeError}
		}
	}()

	result = s.checker.CheckLoaded(ctx, search)
	if result == nil {
		result = &tracker.CheckResult{SearchID: search.ID, Outcome: tracker.OutcomeError}
	}
	return result
}
