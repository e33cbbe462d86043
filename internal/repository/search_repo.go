package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
)

const searchColumns = `id, name, query, location, price_min, price_max,
	delivery_required, fitting_required, active, created_at, last_checked_at`

// SQLSearchRepo はdatabase/sqlを使用した検索リポジトリ。
// PostgreSQLとSQLiteの両方で動作する。
type SQLSearchRepo struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

// NewPostgresSearchRepo はPostgreSQL用のSQLSearchRepoを生成する。
func NewPostgresSearchRepo(db *sql.DB) *SQLSearchRepo {
	return &SQLSearchRepo{db: db, d: postgresDialect, now: time.Now}
}

// NewSQLiteSearchRepo はSQLite用のSQLSearchRepoを生成する。
func NewSQLiteSearchRepo(db *sql.DB) *SQLSearchRepo {
	return &SQLSearchRepo{db: db, d: sqliteDialect, now: time.Now}
}

// Create は検索を作成する。IDが空の場合はUUIDを採番する。
func (r *SQLSearchRepo) Create(ctx context.Context, search *model.Search) error {
	if search.ID == "" {
		search.ID = newID()
	}
	if search.CreatedAt.IsZero() {
		search.CreatedAt = r.now().UTC()
	}

	_, err := r.db.ExecContext(ctx, r.d.rebind(
		`INSERT INTO searches (id, name, query, location, price_min, price_max,
		                       delivery_required, fitting_required, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		search.ID, search.Name, search.Query, search.Location,
		nullInt(search.PriceMin), nullInt(search.PriceMax),
		search.DeliveryRequired, search.FittingRequired, search.Active,
		r.d.encodeTime(search.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("検索の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの検索を取得する。
func (r *SQLSearchRepo) FindByID(ctx context.Context, id string) (*model.Search, error) {
	if !r.d.validID(id) {
		return nil, fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	row := r.db.QueryRowContext(ctx, r.d.rebind(
		`SELECT `+searchColumns+` FROM searches WHERE id = ?`), id)

	search, err := scanSearch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("検索の取得に失敗しました: %w", err)
	}
	return search, nil
}

// ListActive はアクティブな検索を最終チェック日時の降順で返す。
func (r *SQLSearchRepo) ListActive(ctx context.Context) ([]*model.Search, error) {
	return r.list(ctx,
		`SELECT `+searchColumns+` FROM searches
		 WHERE active = ?
		 ORDER BY last_checked_at IS NULL, last_checked_at DESC, created_at DESC`,
		true,
	)
}

// ListAll はすべての検索を作成日時の降順で返す。
func (r *SQLSearchRepo) ListAll(ctx context.Context) ([]*model.Search, error) {
	return r.list(ctx, `SELECT `+searchColumns+` FROM searches ORDER BY created_at DESC`)
}

func (r *SQLSearchRepo) list(ctx context.Context, query string, args ...any) ([]*model.Search, error) {
	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("検索一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var searches []*model.Search
	for rows.Next() {
		search, err := scanSearch(rows)
		if err != nil {
			return nil, fmt.Errorf("検索データの読み取りに失敗しました: %w", err)
		}
		searches = append(searches, search)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("検索一覧の走査に失敗しました: %w", err)
	}
	return searches, nil
}

// TouchLastChecked は最終チェック日時を単調増加で更新する。
// 既存値以下の時刻が渡された場合は何もしない。
func (r *SQLSearchRepo) TouchLastChecked(ctx context.Context, id string, at time.Time) error {
	if !r.d.validID(id) {
		return fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	ts := r.d.encodeTime(at)
	res, err := r.db.ExecContext(ctx, r.d.rebind(
		`UPDATE searches SET last_checked_at = ?
		 WHERE id = ? AND (last_checked_at IS NULL OR last_checked_at < ?)`),
		ts, id, ts,
	)
	if err != nil {
		return fmt.Errorf("最終チェック日時の更新に失敗しました: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	return r.ensureExists(ctx, id)
}

// SetActive は検索のアクティブ状態を切り替える。
func (r *SQLSearchRepo) SetActive(ctx context.Context, id string, active bool) error {
	if !r.d.validID(id) {
		return fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	res, err := r.db.ExecContext(ctx, r.d.rebind(
		`UPDATE searches SET active = ? WHERE id = ?`), active, id)
	if err != nil {
		return fmt.Errorf("検索状態の更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// Stats は検索ごとの集計値を返す。
func (r *SQLSearchRepo) Stats(ctx context.Context, id string) (*model.Stats, error) {
	search, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats := &model.Stats{LastCheckedAt: search.LastCheckedAt}
	err = r.db.QueryRowContext(ctx, r.d.rebind(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN unseen THEN 1 ELSE 0 END), 0)
		 FROM items WHERE search_id = ?`), id,
	).Scan(&stats.Total, &stats.Unseen)
	if err != nil {
		return nil, fmt.Errorf("掲載件数の集計に失敗しました: %w", err)
	}
	return stats, nil
}

func (r *SQLSearchRepo) ensureExists(ctx context.Context, id string) error {
	if !r.d.validID(id) {
		return fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	var one int
	err := r.db.QueryRowContext(ctx, r.d.rebind(`SELECT 1 FROM searches WHERE id = ?`), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("検索 %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("検索の存在確認に失敗しました: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSearch(row rowScanner) (*model.Search, error) {
	s := &model.Search{}
	var priceMin, priceMax sql.NullInt64
	var createdAt, lastChecked dbTime

	err := row.Scan(
		&s.ID, &s.Name, &s.Query, &s.Location, &priceMin, &priceMax,
		&s.DeliveryRequired, &s.FittingRequired, &s.Active, &createdAt, &lastChecked,
	)
	if err != nil {
		return nil, err
	}

	if priceMin.Valid {
		v := int(priceMin.Int64)
		s.PriceMin = &v
	}
	if priceMax.Valid {
		v := int(priceMax.Int64)
		s.PriceMax = &v
	}
	s.CreatedAt = createdAt.Time
	s.LastCheckedAt = lastChecked.ptr()
	return s, nil
}
