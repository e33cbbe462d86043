package source

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeClock はsleepで時刻を進める仮想時計。
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakePage はPageのテスト用実装。
// resultsAfter回目のHas呼び出しから結果ありを返す（負なら返さない）。
type fakePage struct {
	mu           sync.Mutex
	html         string
	bodyText     string
	visible      map[string]bool
	resultsAfter int
	hasCalls     int
	navigated    []string
	navigateErr  error
	scrolls      int
	moves        int
	closed       bool
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	return p.navigateErr
}

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Has(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if selector != resultSelector {
		return false, nil
	}
	p.hasCalls++
	return p.resultsAfter >= 0 && p.hasCalls > p.resultsAfter, nil
}

func (p *fakePage) Visible(_ context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible[selector], nil
}

func (p *fakePage) BodyText(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodyText, nil
}

func (p *fakePage) Scroll(context.Context, float64, float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *fakePage) MoveMouse(context.Context, float64, float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves++
	return nil
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePage) setChallenge(selector string, on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible == nil {
		p.visible = map[string]bool{}
	}
	p.visible[selector] = on
}

// fakeBrowser は常に同じfakePageを返す。
type fakeBrowser struct {
	page   *fakePage
	err    error
	opened int
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.opened++
	return b.page, nil
}

func (b *fakeBrowser) Close() error { return nil }

// resolverFunc は関数をChallengeResolverとして使うアダプタ。
type resolverFunc func(ctx context.Context, c Challenge) error

func (f resolverFunc) Resolve(ctx context.Context, c Challenge) error { return f(ctx, c) }
