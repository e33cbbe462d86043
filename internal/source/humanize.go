package source

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Humanizer は抽出前にスクロールやマウス移動を行い、行動パターンによる検知を避ける。
// 正しさには影響しない。
type Humanizer interface {
	Perform(ctx context.Context, page Page) error
}

// NopHumanizer は何もしないHumanizer。テストと FETCH_HUMANIZE=false で使う。
type NopHumanizer struct{}

// Perform は何もしない。
func (NopHumanizer) Perform(context.Context, Page) error { return nil }

// scrollSequence はスクロール量 (dx, dy) の並び。
var scrollSequence = [][2]float64{
	{0, 300}, {100, 500}, {-50, 200}, {0, 800},
	{30, 400}, {-20, 600}, {0, 300}, {150, 450},
}

// RandomHumanizer はスクロールとマウス移動をランダムな間隔で繰り返す。
// 各ステップの待機は0.1〜1.5秒で、全体は約22秒以内に収まる。
type RandomHumanizer struct {
	sleep  func(ctx context.Context, d time.Duration) error
	rnd    *rand.Rand
	logger *slog.Logger
}

// NewRandomHumanizer はRandomHumanizerを生成する。
func NewRandomHumanizer(logger *slog.Logger) *RandomHumanizer {
	return &RandomHumanizer{
		sleep:  sleepContext,
		rnd:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		logger: logger,
	}
}

// Perform はスクロールとマウス移動を行う。個々の操作の失敗は無視する。
func (h *RandomHumanizer) Perform(ctx context.Context, page Page) error {
	for _, step := range scrollSequence {
		if err := page.Scroll(ctx, step[0], step[1]); err != nil {
			h.logger.Debug("スクロールに失敗", slog.String("error", err.Error()))
		}
		if err := h.sleep(ctx, h.between(500*time.Millisecond, 1500*time.Millisecond)); err != nil {
			return err
		}

		x := float64(100 + h.rnd.IntN(601))
		y := float64(100 + h.rnd.IntN(401))
		if err := page.MoveMouse(ctx, x, y); err != nil {
			h.logger.Debug("マウス移動に失敗", slog.String("error", err.Error()))
		}
		if err := h.sleep(ctx, h.between(100*time.Millisecond, 700*time.Millisecond)); err != nil {
			return err
		}
	}
	return nil
}

func (h *RandomHumanizer) between(lo, hi time.Duration) time.Duration {
	return randomBetween(h.rnd, lo, hi)
}

func randomBetween(rnd *rand.Rand, lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rnd.Int64N(int64(hi-lo)+1))
}
