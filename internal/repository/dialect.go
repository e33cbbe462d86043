package repository

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// dialect はPostgreSQLとSQLiteの差異を吸収する。
// クエリは ? プレースホルダで記述し、rebindで方言に合わせて書き換える。
type dialect struct {
	name        string
	numbered    bool
	uuidIDs     bool
	encodeTime  func(time.Time) any
	trueLiteral string
}

var postgresDialect = dialect{
	name:        "postgres",
	numbered:    true,
	uuidIDs:     true,
	encodeTime:  func(t time.Time) any { return t.UTC() },
	trueLiteral: "TRUE",
}

// SQLiteではタイムスタンプをUnixナノ秒で保持し、比較と並び替えを数値で行う。
var sqliteDialect = dialect{
	name:        "sqlite",
	encodeTime:  func(t time.Time) any { return t.UTC().UnixNano() },
	trueLiteral: "1",
}

// rebind は ? を方言のプレースホルダに置き換える。
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// validID はIDが方言の主キー型として解釈できるかを返す。
// PostgreSQLのUUID列にUUIDでない文字列を渡すと型エラーになるため、問い合わせ前に弾く。
func (d dialect) validID(id string) bool {
	if !d.uuidIDs {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// dbTime はTIMESTAMPTZとUnixナノ秒の両方を読み取れるScanner。
type dbTime struct {
	Time  time.Time
	Valid bool
}

// Scan はsql.Scannerを実装する。
func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
	case int64:
		t.Time, t.Valid = time.Unix(0, v).UTC(), true
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", value)
	}
	return nil
}

func (t *dbTime) parse(s string) error {
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid time value %q: %w", s, err)
	}
	t.Time, t.Valid = parsed.UTC(), true
	return nil
}

// ptr はValidな場合のみ時刻へのポインタを返す。
func (t dbTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// nullInt は*intをドライバ値に変換する。
func nullInt(p *int) driver.Value {
	if p == nil {
		return nil
	}
	return int64(*p)
}

// newID は時系列順に並ぶUUIDv7を採番する。
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
