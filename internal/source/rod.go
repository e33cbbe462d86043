package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodConfig はChromeの起動設定。
type RodConfig struct {
	// Headless がfalseの場合はウィンドウを表示し、チャレンジを手動で解決できる。
	Headless bool
	// RemoteURL は既存のChromeのWebSocket URL。空ならローカルで起動する。
	RemoteURL string
}

// RodBrowser はgo-rodとstealthを使うBrowserの実装。
// Chromeは最初のNewPageで起動する。
type RodBrowser struct {
	cfg    RodConfig
	logger *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewRodBrowser はRodBrowserを生成する。この時点ではChromeを起動しない。
func NewRodBrowser(cfg RodConfig, logger *slog.Logger) *RodBrowser {
	return &RodBrowser{cfg: cfg, logger: logger}
}

// NewPage はstealthを適用した新しいタブを開く。
func (b *RodBrowser) NewPage(_ context.Context) (Page, error) {
	br, err := b.connect()
	if err != nil {
		return nil, err
	}
	p, err := stealth.Page(br)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	return &rodPage{page: p}, nil
}

func (b *RodBrowser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("browser: closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		// Chromeのプロセスは個々のフェッチより長く生きるため、ctxには結び付けない
		l := launcher.New().
			Headless(b.cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.logger.Info("Chromeを起動しました", slog.Bool("headless", b.cfg.Headless))
	} else {
		// host:port 形式ならDevToolsのWebSocket URLを問い合わせる
		u, err := launcher.ResolveURL(wsURL)
		if err != nil {
			return nil, fmt.Errorf("browser: resolve %s: %w", wsURL, err)
		}
		wsURL = u
		b.logger.Info("リモートのChromeに接続します", slog.String("url", wsURL))
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		if b.lnch != nil {
			b.lnch.Cleanup()
			b.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = br
	return br, nil
}

// Close はChromeを終了する。
func (b *RodBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}

// rodPage はrod.PageをPageインターフェースに適合させる。
type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	return p.page.Context(ctx).Navigate(url)
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := p.page.Context(ctx).Has(selector)
	return has, err
}

func (p *rodPage) Visible(ctx context.Context, selector string) (bool, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return false, err
	}
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil {
			continue
		}
		if visible {
			return true, nil
		}
	}
	return false, nil
}

func (p *rodPage) BodyText(ctx context.Context) (string, error) {
	has, body, err := p.page.Context(ctx).Has("body")
	if err != nil || !has {
		return "", err
	}
	return body.Text()
}

func (p *rodPage) Scroll(ctx context.Context, dx, dy float64) error {
	return p.page.Context(ctx).Mouse.Scroll(dx, dy, 4)
}

func (p *rodPage) MoveMouse(ctx context.Context, x, y float64) error {
	return p.page.Context(ctx).Mouse.MoveTo(proto.Point{X: x, Y: y})
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
