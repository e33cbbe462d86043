package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/listingwatch/internal/database"
)

// SQLStore はSearchRepositoryとItemRepositoryを1つの接続上で束ねる。
type SQLStore struct {
	db       *sql.DB
	searches *SQLSearchRepo
	items    *SQLItemRepo
}

// NewStore はドライバ種別に応じたSQLStoreを生成する。
func NewStore(db *sql.DB, driver database.Driver) (*SQLStore, error) {
	switch driver {
	case database.DriverPostgres:
		return &SQLStore{db: db, searches: NewPostgresSearchRepo(db), items: NewPostgresItemRepo(db)}, nil
	case database.DriverSQLite:
		return &SQLStore{db: db, searches: NewSQLiteSearchRepo(db), items: NewSQLiteItemRepo(db)}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// Searches は検索リポジトリを返す。
func (s *SQLStore) Searches() SearchRepository { return s.searches }

// Items は掲載リポジトリを返す。
func (s *SQLStore) Items() ItemRepository { return s.items }

// Ping はデータベース接続を確認する。
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
