package source

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// waiter は結果、チャレンジ、ブロックのいずれかのシグナルが現れるまでページをポーリングする。
type waiter struct {
	ceiling      time.Duration
	pollInterval time.Duration
	settle       time.Duration // チャレンジ解決後の待機
	resolveLimit time.Duration // 手動解決を待つ上限
	resolver     ChallengeResolver
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
	logger       *slog.Logger
}

// wait はページに掲載が現れたらnilを返す。
//   - 表示中のチャレンジを検出し、非対話モードならBlocked
//   - 対話モードなら解決を待ってから同じループを再開する
//   - ブロック文言を検出したら即座にBlocked
//   - 上限までに何も現れなければTimeout
func (w *waiter) wait(ctx context.Context, page Page, pageURL string) error {
	deadline := w.now().Add(w.ceiling)

	for {
		if err := ctx.Err(); err != nil {
			return timeout("cancelled while waiting", err)
		}

		if selector, found := w.visibleChallenge(ctx, page); found {
			if w.resolver == nil {
				return blocked("challenge " + selector)
			}
			w.logger.Warn("チャレンジを検出、手動解決を待機します",
				slog.String("url", pageURL),
				slog.String("selector", selector),
			)
			if err := w.resolve(ctx, Challenge{URL: pageURL, Selector: selector}); err != nil {
				return err
			}
			if err := w.sleep(ctx, w.settle); err != nil {
				return timeout("cancelled after challenge", err)
			}
			// 解決にかかった時間は待機上限に含めない
			deadline = w.now().Add(w.ceiling)
			continue
		}

		if phrase, found := w.blockPhrase(ctx, page); found {
			return blocked("denial text " + phrase)
		}

		ok, err := page.Has(ctx, resultSelector)
		if err != nil {
			w.logger.Debug("結果要素の確認に失敗", slog.String("error", err.Error()))
		}
		if ok {
			return nil
		}

		if !w.now().Before(deadline) {
			return timeout("no results within "+w.ceiling.String(), nil)
		}
		if err := w.sleep(ctx, w.pollInterval); err != nil {
			return timeout("cancelled while waiting", err)
		}
	}
}

func (w *waiter) resolve(ctx context.Context, c Challenge) error {
	rctx := ctx
	if w.resolveLimit > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, w.resolveLimit)
		defer cancel()
	}
	if err := w.resolver.Resolve(rctx, c); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			fe := blocked("challenge not resolved")
			fe.Err = err
			return fe
		}
		fe := blocked("challenge resolution aborted")
		fe.Err = err
		return fe
	}
	return nil
}

func (w *waiter) visibleChallenge(ctx context.Context, page Page) (string, bool) {
	for _, selector := range challengeSelectors {
		visible, err := page.Visible(ctx, selector)
		if err != nil {
			w.logger.Debug("チャレンジ要素の確認に失敗",
				slog.String("selector", selector),
				slog.String("error", err.Error()),
			)
			continue
		}
		if visible {
			return selector, true
		}
	}
	return "", false
}

func (w *waiter) blockPhrase(ctx context.Context, page Page) (string, bool) {
	text, err := page.BodyText(ctx)
	if err != nil {
		w.logger.Debug("本文テキストの取得に失敗", slog.String("error", err.Error()))
		return "", false
	}
	for _, phrase := range blockPhrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// sleepContext はdだけ待機する。ctxが終了した場合はその時点でエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
