// Package tracker は1つの検索に対するチェックサイクルを実行する。
//
// チェックサイクルは「取得、正規化、重複排除して保存、新着の通知」の1回分の処理。
// 取得元や保存の失敗は検索ごとにここで捕捉し、呼び出し元には伝播させない。
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/repository"
	"github.com/hitoshi/listingwatch/internal/source"
)

// Notifier は新着通知の送信先。呼び出しはブロックしてはならない。
type Notifier interface {
	NotifyNewItems(ctx context.Context, searchName string, items []*model.Item)
	NotifyError(ctx context.Context, searchName, message string)
}

// MetricsRecorder はチェック結果のメトリクスを記録する。
type MetricsRecorder interface {
	RecordCheck(outcome string, duration time.Duration, inserted int)
}

// Config はTrackerの動作設定。
type Config struct {
	// BackfillMaxPages は作成時に一度だけ取得するページ数。通常のチェックは常に1ページ目のみ。
	BackfillMaxPages int
	// RelevanceFilter がtrueの場合、クエリの先頭語を含まない掲載を保存前に除外する。
	// 既定では無効で、抽出可能な掲載はすべて保存する。
	RelevanceFilter bool
}

// Tracker は検索の作成とチェックを行う。
type Tracker struct {
	searches repository.SearchRepository
	items    repository.ItemRepository
	source   source.ListingSource
	notifier Notifier
	metrics  MetricsRecorder
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// New はTrackerを生成する。notifierとmetricsはnilでもよい。
func New(
	searches repository.SearchRepository,
	items repository.ItemRepository,
	src source.ListingSource,
	notifier Notifier,
	metrics MetricsRecorder,
	logger *slog.Logger,
	cfg Config,
) *Tracker {
	if cfg.BackfillMaxPages < 1 {
		cfg.BackfillMaxPages = 1
	}
	return &Tracker{
		searches: searches,
		items:    items,
		source:   src,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// CreateSearch は検索を作成し、直ちに1回チェックする。
// backfillPagesが0以下の場合は設定値のページ数を取得する。
// 初回チェックが失敗しても検索は作成され、新着件数0で返る。
func (t *Tracker) CreateSearch(ctx context.Context, spec model.SearchSpec, backfillPages int) (string, int, error) {
	if err := spec.Validate(); err != nil {
		return "", 0, err
	}
	if backfillPages <= 0 {
		backfillPages = t.cfg.BackfillMaxPages
	}

	search := &model.Search{
		Name:             spec.DisplayName(),
		Query:            spec.Query,
		Location:         spec.Location,
		PriceMin:         spec.PriceMin,
		PriceMax:         spec.PriceMax,
		DeliveryRequired: spec.DeliveryRequired,
		FittingRequired:  spec.FittingRequired,
		Active:           true,
	}
	if err := t.searches.Create(ctx, search); err != nil {
		return "", 0, fmt.Errorf("検索の作成に失敗: %w", err)
	}

	t.logger.Info("検索を作成しました",
		slog.String("search_id", search.ID),
		slog.String("name", search.Name),
		slog.Int("backfill_pages", backfillPages),
	)

	result := t.run(ctx, search, backfillPages)
	return search.ID, len(result.NewItems), nil
}

// Check は指定IDの検索を1ページ目のみ取得してチェックする。
// 非アクティブな検索でも明示的なチェックは実行する。
// 検索が存在しない場合は model.ErrNotFound を返し、副作用は発生しない。
func (t *Tracker) Check(ctx context.Context, searchID string) (*CheckResult, error) {
	search, err := t.searches.FindByID(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return t.run(ctx, search, 1), nil
}

// CheckSearch はCheckの結果から新規に保存された掲載のみを返す。
func (t *Tracker) CheckSearch(ctx context.Context, searchID string) ([]*model.Item, error) {
	result, err := t.Check(ctx, searchID)
	if err != nil {
		return nil, err
	}
	return result.NewItems, nil
}

// CheckAllActive はアクティブな検索を順にチェックし、新着をまとめて返す。
// 1つの検索の失敗は他の検索の処理に影響しない。
func (t *Tracker) CheckAllActive(ctx context.Context) ([]*model.Item, error) {
	searches, err := t.searches.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("アクティブな検索の取得に失敗: %w", err)
	}

	var all []*model.Item
	for _, s := range searches {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		result := t.CheckLoaded(ctx, s)
		all = append(all, result.NewItems...)
	}
	return all, nil
}

// CheckLoaded は読み込み済みの検索をチェックする。パニックは捕捉してOutcomeErrorとして返す。
func (t *Tracker) CheckLoaded(ctx context.Context, search *model.Search) (result *CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("検索のチェック中にパニックが発生しました",
				slog.String("search_id", search.ID),
				slog.Any("panic", r),
			)
			result = &CheckResult{
				SearchID: search.ID,
				Outcome:  OutcomeError,
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return t.run(ctx, search, 1)
}

func (t *Tracker) run(ctx context.Context, search *model.Search, pages int) *CheckResult {
	start := t.now()
	result := &CheckResult{SearchID: search.ID, Outcome: OutcomeOK}
	defer func() {
		result.Duration = t.now().Sub(start)
		if t.metrics != nil {
			t.metrics.RecordCheck(string(result.Outcome), result.Duration, len(result.NewItems))
		}
	}()

	listings, err := t.fetch(ctx, search, pages)
	if err != nil {
		result.Outcome = outcomeOf(err)
		result.Err = err
		t.handleFetchFailure(ctx, search, result)
		return result
	}
	result.Fetched = len(listings)

	listings = t.filter(search, listings)

	foundAt := t.now().UTC()
	var storeErrs []error
	for _, l := range listings {
		item := newItem(search.ID, l, foundAt)
		res, err := t.items.Upsert(ctx, item)
		if err != nil {
			t.logger.Error("掲載の保存に失敗しました",
				slog.String("search_id", search.ID),
				slog.String("url", l.URL),
				slog.String("error", err.Error()),
			)
			storeErrs = append(storeErrs, err)
			continue
		}
		if res == model.UpsertInserted {
			result.NewItems = append(result.NewItems, item)
		} else {
			result.Duplicates++
		}
	}
	if len(storeErrs) > 0 {
		result.Err = errors.Join(storeErrs...)
		if len(storeErrs) == len(listings) {
			result.Outcome = OutcomeError
		}
	}

	t.touch(ctx, search.ID)

	t.logger.Info("検索のチェックが完了しました",
		slog.String("search_id", search.ID),
		slog.String("outcome", string(result.Outcome)),
		slog.Int("fetched", result.Fetched),
		slog.Int("inserted", len(result.NewItems)),
		slog.Int("duplicates", result.Duplicates),
		slog.Float64("duration_ms", float64(t.now().Sub(start).Milliseconds())),
	)

	if len(result.NewItems) > 0 {
		t.notify(func() { t.notifier.NotifyNewItems(ctx, search.Name, result.NewItems) })
	}
	return result
}

// fetch は1ページ目から順に取得する。2ページ目以降の失敗は取得済み分を返して打ち切る。
func (t *Tracker) fetch(ctx context.Context, search *model.Search, pages int) ([]model.RawListing, error) {
	params := search.Params()

	var all []model.RawListing
	for page := 1; page <= pages; page++ {
		listings, err := t.source.Fetch(ctx, params, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			t.logger.Warn("バックフィルを途中で終了します",
				slog.String("search_id", search.ID),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			break
		}
		all = append(all, listings...)
	}
	return all, nil
}

// filter は試着可否と、有効な場合は関連性の条件で掲載を絞り込む。
// 試着可否は取得元の検索パラメータにないため、取得後に適用する。
func (t *Tracker) filter(search *model.Search, listings []model.RawListing) []model.RawListing {
	if t.cfg.RelevanceFilter {
		listings = source.FilterRelevant(search.Query, listings)
	}
	if !search.FittingRequired {
		return listings
	}
	out := listings[:0:0]
	for _, l := range listings {
		if l.Fitting {
			out = append(out, l)
		}
	}
	return out
}

func (t *Tracker) handleFetchFailure(ctx context.Context, search *model.Search, result *CheckResult) {
	attrs := []any{
		slog.String("search_id", search.ID),
		slog.String("outcome", string(result.Outcome)),
		slog.String("error", result.Err.Error()),
	}

	switch result.Outcome {
	case OutcomeEmpty:
		// 結果0件は正常な状態として最終チェック日時を進める
		t.logger.Info("掲載が見つかりませんでした", attrs...)
		t.touch(ctx, search.ID)
	case OutcomeBlocked:
		t.logger.Warn("取得元にブロックされました", attrs...)
		t.notify(func() {
			t.notifier.NotifyError(ctx, search.Name, "取得元にブロックされました: "+result.Err.Error())
		})
	default:
		t.logger.Warn("掲載の取得に失敗しました", attrs...)
	}
}

func (t *Tracker) touch(ctx context.Context, searchID string) {
	if err := t.searches.TouchLastChecked(ctx, searchID, t.now()); err != nil {
		t.logger.Error("最終チェック日時の更新に失敗しました",
			slog.String("search_id", searchID),
			slog.String("error", err.Error()),
		)
	}
}

// notify は通知先の失敗やパニックをチェック結果に波及させない。
func (t *Tracker) notify(fn func()) {
	if t.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("通知処理でパニックが発生しました", slog.Any("panic", r))
		}
	}()
	fn()
}

func newItem(searchID string, l model.RawListing, foundAt time.Time) *model.Item {
	return &model.Item{
		SearchID:      searchID,
		Title:         l.Title,
		Price:         l.Price,
		URL:           l.URL,
		PublishedText: l.PublishedText,
		Location:      l.Location,
		Delivery:      l.Delivery,
		Fitting:       l.Fitting,
		Description:   l.Description,
		ImageURL:      l.ImageURL,
		FoundAt:       foundAt,
		Unseen:        true,
	}
}
