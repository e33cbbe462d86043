package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/listingwatch/internal/canonical"
	"github.com/hitoshi/listingwatch/internal/model"
)

const itemColumns = `id, search_id, title, price, url, canonical_key, published_text,
	location, delivery, fitting, description, image_url, found_at, unseen`

// SQLItemRepo はdatabase/sqlを使用した掲載リポジトリ。
type SQLItemRepo struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

// NewPostgresItemRepo はPostgreSQL用のSQLItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *SQLItemRepo {
	return &SQLItemRepo{db: db, d: postgresDialect, now: time.Now}
}

// NewSQLiteItemRepo はSQLite用のSQLItemRepoを生成する。
func NewSQLiteItemRepo(db *sql.DB) *SQLItemRepo {
	return &SQLItemRepo{db: db, d: sqliteDialect, now: time.Now}
}

// Upsert は正規化キーが未登録の場合のみ掲載を挿入する。
// 一意制約とON CONFLICT DO NOTHINGにより、並行実行でも挿入は1件に限られる。
func (r *SQLItemRepo) Upsert(ctx context.Context, item *model.Item) (model.UpsertResult, error) {
	key := canonical.Canonicalize(item.URL)
	if key == "" {
		return 0, errors.New("掲載URLが空のため正規化キーを計算できません")
	}
	item.CanonicalKey = key.String()
	if item.ID == "" {
		item.ID = newID()
	}
	if item.FoundAt.IsZero() {
		item.FoundAt = r.now().UTC()
	}
	item.Unseen = true

	res, err := r.db.ExecContext(ctx, r.d.rebind(
		`INSERT INTO items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (canonical_key) DO NOTHING`),
		item.ID, item.SearchID, item.Title, item.Price, item.URL, item.CanonicalKey,
		item.PublishedText, item.Location, item.Delivery, item.Fitting,
		item.Description, item.ImageURL, r.d.encodeTime(item.FoundAt), item.Unseen,
	)
	if err != nil {
		return 0, fmt.Errorf("掲載の保存に失敗しました: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("挿入件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return model.UpsertDuplicateIgnored, nil
	}
	return model.UpsertInserted, nil
}

// FindByID は指定IDの掲載を取得する。
func (r *SQLItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	if !r.d.validID(id) {
		return nil, fmt.Errorf("掲載 %s: %w", id, model.ErrNotFound)
	}
	row := r.db.QueryRowContext(ctx, r.d.rebind(
		`SELECT `+itemColumns+` FROM items WHERE id = ?`), id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("掲載 %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("掲載の取得に失敗しました: %w", err)
	}
	return item, nil
}

// ListBySearch は検索に紐づく掲載を発見日時の降順で返す。
func (r *SQLItemRepo) ListBySearch(ctx context.Context, searchID string, unseenOnly bool) ([]*model.Item, error) {
	if !r.d.validID(searchID) {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE search_id = ?`
	if unseenOnly {
		query += ` AND unseen = ` + r.d.trueLiteral
	}
	query += ` ORDER BY found_at DESC, id`

	rows, err := r.db.QueryContext(ctx, r.d.rebind(query), searchID)
	if err != nil {
		return nil, fmt.Errorf("掲載一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("掲載データの読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("掲載一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// MarkViewed は掲載の未読フラグを下ろす。すでに既読でもエラーにしない。
func (r *SQLItemRepo) MarkViewed(ctx context.Context, id string) error {
	if !r.d.validID(id) {
		return fmt.Errorf("掲載 %s: %w", id, model.ErrNotFound)
	}
	res, err := r.db.ExecContext(ctx, r.d.rebind(
		`UPDATE items SET unseen = ? WHERE id = ?`), false, id)
	if err != nil {
		return fmt.Errorf("既読化に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("掲載 %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// MarkSearchViewed は検索に紐づく未読掲載をすべて既読にする。
func (r *SQLItemRepo) MarkSearchViewed(ctx context.Context, searchID string) (int, error) {
	if !r.d.validID(searchID) {
		return 0, fmt.Errorf("検索 %s: %w", searchID, model.ErrNotFound)
	}
	var one int
	err := r.db.QueryRowContext(ctx, r.d.rebind(`SELECT 1 FROM searches WHERE id = ?`), searchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("検索 %s: %w", searchID, model.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("検索の存在確認に失敗しました: %w", err)
	}

	res, err := r.db.ExecContext(ctx, r.d.rebind(
		`UPDATE items SET unseen = ? WHERE search_id = ? AND unseen = `+r.d.trueLiteral),
		false, searchID)
	if err != nil {
		return 0, fmt.Errorf("一括既読化に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	return int(n), nil
}

// Delete は掲載を物理削除する。
func (r *SQLItemRepo) Delete(ctx context.Context, id string) error {
	if !r.d.validID(id) {
		return fmt.Errorf("掲載 %s: %w", id, model.ErrNotFound)
	}
	res, err := r.db.ExecContext(ctx, r.d.rebind(`DELETE FROM items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("掲載の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("掲載 %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var foundAt dbTime

	err := row.Scan(
		&item.ID, &item.SearchID, &item.Title, &item.Price, &item.URL, &item.CanonicalKey,
		&item.PublishedText, &item.Location, &item.Delivery, &item.Fitting,
		&item.Description, &item.ImageURL, &foundAt, &item.Unseen,
	)
	if err != nil {
		return nil, err
	}
	item.FoundAt = foundAt.Time
	return item, nil
}
