package source

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/security"
)

// ListingSource は検索結果の1ページ分を取得する。
// 失敗時は *FetchError を返す。
type ListingSource interface {
	Fetch(ctx context.Context, params model.SearchParams, page int) ([]model.RawListing, error)
}

// Config はMarketplaceの動作設定。
type Config struct {
	BaseURL      string
	WaitCeiling  time.Duration // 結果待ちの上限（既定30秒）
	PollInterval time.Duration // シグナル確認の間隔（既定2秒）
	MinGap       time.Duration // ナビゲーション同士の最小間隔
	Humanize     bool          // ランディング滞在、ページ間待機、ランダム操作を行うか
	ResolveLimit time.Duration // 手動解決を待つ上限
}

// 待機時間の範囲。
var (
	landingDwell       = [2]time.Duration{5 * time.Second, 8 * time.Second}
	postNavigateDwell  = [2]time.Duration{8 * time.Second, 15 * time.Second}
	interPagePause     = [2]time.Duration{10 * time.Second, 20 * time.Second}
	challengeSettle    = 3 * time.Second
	defaultResolveWait = 10 * time.Minute
)

func (c *Config) defaults() {
	if c.WaitCeiling <= 0 {
		c.WaitCeiling = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ResolveLimit <= 0 {
		c.ResolveLimit = defaultResolveWait
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Marketplace はブラウザを使ってマーケットプレイスの検索結果を取得するListingSource。
// 同時に実行されるフェッチは1つに制限される。
type Marketplace struct {
	cfg       Config
	browser   Browser
	extractor *Extractor
	humanizer Humanizer
	snapshots *SnapshotStore
	limiter   *rate.Limiter
	waiter    *waiter
	logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	rnd   *rand.Rand
	mu    sync.Mutex
}

// Option はMarketplaceの任意設定。
type Option func(*Marketplace)

// WithResolver は対話モードのチャレンジ解決手段を設定する。未設定なら非対話モード。
func WithResolver(r ChallengeResolver) Option {
	return func(m *Marketplace) { m.waiter.resolver = r }
}

// WithHumanizer はランダム操作の実装を差し替える。
func WithHumanizer(h Humanizer) Option {
	return func(m *Marketplace) { m.humanizer = h }
}

// WithSnapshots はブロック時のスナップショット保存先を設定する。
func WithSnapshots(s *SnapshotStore) Option {
	return func(m *Marketplace) { m.snapshots = s }
}

// WithClock は待機と現在時刻を差し替える。テスト用。
func WithClock(sleep func(ctx context.Context, d time.Duration) error, now func() time.Time) Option {
	return func(m *Marketplace) {
		m.sleep = sleep
		m.waiter.sleep = sleep
		m.waiter.now = now
	}
}

// NewMarketplace はMarketplaceを生成する。
func NewMarketplace(cfg Config, browser Browser, logger *slog.Logger, opts ...Option) (*Marketplace, error) {
	cfg.defaults()

	extractor, err := NewExtractor(cfg.BaseURL, security.NewTextSanitizer())
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if cfg.MinGap > 0 {
		limit = rate.Every(cfg.MinGap)
	}

	m := &Marketplace{
		cfg:       cfg,
		browser:   browser,
		extractor: extractor,
		humanizer: NopHumanizer{},
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
		sleep:     sleepContext,
		rnd:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d)),
		waiter: &waiter{
			ceiling:      cfg.WaitCeiling,
			pollInterval: cfg.PollInterval,
			settle:       challengeSettle,
			resolveLimit: cfg.ResolveLimit,
			sleep:        sleepContext,
			now:          time.Now,
			logger:       logger,
		},
	}
	if cfg.Humanize {
		m.humanizer = NewRandomHumanizer(logger)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Fetch は検索結果の指定ページを取得し、抽出した掲載を返す。
//
// 1ページ目ではランディングページに短時間滞在してから検索URLへ移動する。
// 結果、チャレンジ、ブロックのいずれかが現れるまで待機し、結果が確認できたら
// ランダム操作を行ってから抽出する。ブロック時はスナップショットを保存する。
func (m *Marketplace) Fetch(ctx context.Context, params model.SearchParams, pageNum int) ([]model.RawListing, error) {
	searchURL, err := BuildSearchURL(m.cfg.BaseURL, params, pageNum)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.limiter.Wait(ctx); err != nil {
		return nil, timeout("pacing", err)
	}

	page, err := m.browser.NewPage(ctx)
	if err != nil {
		return nil, unavailable("new page", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			m.logger.Debug("ページのクローズに失敗", slog.String("error", err.Error()))
		}
	}()

	if err := m.approach(ctx, page, pageNum); err != nil {
		return nil, err
	}

	if err := page.Navigate(ctx, searchURL); err != nil {
		return nil, timeout("navigate", err)
	}
	if err := m.dwell(ctx, postNavigateDwell); err != nil {
		return nil, timeout("cancelled", err)
	}

	if err := m.waiter.wait(ctx, page, searchURL); err != nil {
		if KindOf(err) == KindBlocked {
			m.saveSnapshot(ctx, page, searchURL, err)
		}
		return nil, err
	}

	if err := m.humanizer.Perform(ctx, page); err != nil {
		return nil, timeout("cancelled during interaction", err)
	}

	pageHTML, err := page.HTML(ctx)
	if err != nil {
		return nil, unavailable("read page", err)
	}
	listings, err := m.extractor.Extract(pageHTML)
	if err != nil {
		return nil, &FetchError{Kind: KindExtractionEmpty, Reason: "unparseable page", Err: err}
	}
	if len(listings) == 0 {
		return nil, &FetchError{Kind: KindExtractionEmpty, Reason: "no listing had a title or image"}
	}

	m.logger.Debug("掲載を抽出しました",
		slog.String("url", searchURL),
		slog.Int("count", len(listings)),
	)
	return listings, nil
}

// approach は検索前の振る舞いを行う。
// 1ページ目はランディングページに滞在し、2ページ目以降はページ間の待機を入れる。
func (m *Marketplace) approach(ctx context.Context, page Page, pageNum int) error {
	if !m.cfg.Humanize {
		return nil
	}
	if pageNum > 1 {
		if err := m.dwell(ctx, interPagePause); err != nil {
			return timeout("cancelled", err)
		}
		return nil
	}

	if err := page.Navigate(ctx, m.cfg.BaseURL+"/"); err != nil {
		return timeout("navigate landing", err)
	}
	if err := m.dwell(ctx, landingDwell); err != nil {
		return timeout("cancelled", err)
	}
	if err := m.humanizer.Perform(ctx, page); err != nil {
		return timeout("cancelled during interaction", err)
	}
	return nil
}

func (m *Marketplace) dwell(ctx context.Context, span [2]time.Duration) error {
	if !m.cfg.Humanize {
		return nil
	}
	return m.sleep(ctx, randomBetween(m.rnd, span[0], span[1]))
}

func (m *Marketplace) saveSnapshot(ctx context.Context, page Page, pageURL string, cause error) {
	if m.snapshots == nil {
		return
	}
	pageHTML, err := page.HTML(ctx)
	if err != nil {
		m.logger.Warn("スナップショット用HTMLの取得に失敗", slog.String("error", err.Error()))
		return
	}
	var fe *FetchError
	reason := cause.Error()
	if errors.As(cause, &fe) && fe.Reason != "" {
		reason = fe.Reason
	}
	path, err := m.snapshots.Save(pageURL, reason, pageHTML)
	if err != nil {
		m.logger.Warn("スナップショットの保存に失敗", slog.String("error", err.Error()))
		return
	}
	m.logger.Info("ブロック時のスナップショットを保存しました", slog.String("path", path))
}
