package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// sqliteBusyTimeoutMs はSQLITE_BUSY時の待機時間（ミリ秒）。
const sqliteBusyTimeoutMs = 10_000

// sqliteDSN はすべてのコネクションに同じpragmaを適用するDSNを組み立てる。
// foreign_keysはコネクション単位の設定のため、DSNで指定する必要がある。
func sqliteDSN(path string) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", sqliteBusyTimeoutMs))
	q.Add("_pragma", "synchronous(NORMAL)")
	if path != ":memory:" {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// OpenSQLite はSQLiteデータベースを開き、スキーマを適用する。
// 親ディレクトリが存在しない場合は作成する。
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// :memory: はコネクションごとに別のDBになるため1本に固定する
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := ApplySQLiteSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return db, nil
}

// ApplySQLiteSchema は組み込みスキーマを適用する。冪等。
func ApplySQLiteSchema(db *sql.DB) error {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return nil
}

// OpenSQLiteMemory はテスト用のインメモリSQLiteを開く。
// t.Cleanupでクローズを登録する。
func OpenSQLiteMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLiteMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
