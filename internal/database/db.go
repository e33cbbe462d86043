package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Driver はストアのバックエンド種別を表す。
type Driver string

const (
	// DriverSQLite は組み込みSQLite（modernc.org/sqlite）を使用する。
	DriverSQLite Driver = "sqlite"
	// DriverPostgres はPostgreSQL（lib/pq）を使用する。
	DriverPostgres Driver = "postgres"
)

// PostgreSQLのコネクションプール設定。
// フェッチはプロセス全体で直列のため、書き込みは少数のAPIリクエストとチェック1本に限られる。
const (
	pgMaxOpenConns    = 8
	pgMaxIdleConns    = 4
	pgConnMaxIdleTime = 5 * time.Minute
	pgConnMaxLifetime = 30 * time.Minute
)

// Open はPostgreSQLの接続プールを開く。
// sql.Openは接続を試行しないため、到達確認は呼び出し側でPingする。
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(pgMaxOpenConns)
	db.SetMaxIdleConns(pgMaxIdleConns)
	db.SetConnMaxIdleTime(pgConnMaxIdleTime)
	db.SetConnMaxLifetime(pgConnMaxLifetime)
	return db, nil
}
