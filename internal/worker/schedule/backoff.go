package schedule

import (
	"sync"
	"time"

	"github.com/hitoshi/listingwatch/internal/tracker"
)

// maxBackoff はブロック時バックオフの最大遅延（12時間）。
const maxBackoff = 12 * time.Hour

// CalculateBackoff は連続ブロック回数に基づいて指数バックオフ遅延を計算する。
// 初回はtick間隔、2倍ずつ増加、最大12時間。consecutiveが0以下の場合は0を返す。
func CalculateBackoff(tick time.Duration, consecutive int) time.Duration {
	if consecutive <= 0 || tick <= 0 {
		return 0
	}
	delay := tick
	for i := 1; i < consecutive; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// backoffState は検索ごとの連続ブロック回数と再開時刻。
type backoffState struct {
	consecutive int
	until       time.Time
}

// backoffTable はブロックされた検索の一時停止をメモリ上で管理する。
// プロセス再起動でリセットされる。
type backoffTable struct {
	mu      sync.Mutex
	tick    time.Duration
	entries map[string]*backoffState
}

func newBackoffTable(tick time.Duration) *backoffTable {
	return &backoffTable{tick: tick, entries: make(map[string]*backoffState)}
}

// pausedUntil は一時停止中であれば再開時刻を返す。
func (b *backoffTable) pausedUntil(searchID string, now time.Time) (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[searchID]
	if !ok || !now.Before(e.until) {
		return time.Time{}, false
	}
	return e.until, true
}

// apply はチェック結果に応じて状態を更新する。
// ブロックで延長し、成功または結果0件でリセットする。タイムアウト等は変更しない。
func (b *backoffTable) apply(searchID string, outcome tracker.Outcome, now time.Time) (time.Duration, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch outcome {
	case tracker.OutcomeBlocked:
		e, ok := b.entries[searchID]
		if !ok {
			e = &backoffState{}
			b.entries[searchID] = e
		}
		e.consecutive++
		delay := CalculateBackoff(b.tick, e.consecutive)
		e.until = now.Add(delay)
		return delay, e.consecutive
	case tracker.OutcomeOK, tracker.OutcomeEmpty:
		delete(b.entries, searchID)
	}
	return 0, 0
}
