package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

const snapshotPrefix = "blocked-"

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SnapshotStore はブロック時のページを診断用に保存する。
// 保存は補助的なもので、失敗しても取得処理の結果には影響しない。
type SnapshotStore struct {
	dir string
	now func() time.Time
}

// NewSnapshotStore はdirに保存するSnapshotStoreを生成する。
func NewSnapshotStore(dir string) *SnapshotStore {
	return &SnapshotStore{dir: dir, now: time.Now}
}

// Save はページのHTMLを書き出し、保存先のパスを返す。
// 書き込みはアトミックに行われ、途中までのファイルは残らない。
func (s *SnapshotStore) Save(pageURL, reason, pageHTML string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	ts := s.now().UTC()
	slug := strings.Trim(unsafeFileChars.ReplaceAllString(reason, "-"), "-")
	if len(slug) > 40 {
		slug = slug[:40]
	}
	name := fmt.Sprintf("%s%s-%s.html", snapshotPrefix, ts.Format("20060102T150405.000000000Z"), slug)
	path := filepath.Join(s.dir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "<!-- url: %s -->\n<!-- reason: %s -->\n<!-- captured: %s -->\n",
		strings.ReplaceAll(pageURL, "--", "%2D%2D"), strings.ReplaceAll(reason, "--", "- -"), ts.Format(time.RFC3339))
	b.WriteString(pageHTML)

	if err := atomic.WriteFile(path, strings.NewReader(b.String())); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// Prune は更新日時がolderThanより古いスナップショットを削除し、削除件数を返す。
// ディレクトリが存在しない場合は0件として扱う。
func (s *SnapshotStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if e.IsDir() || !strings.HasPrefix(e.Name(), snapshotPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(olderThan) {
			if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
				return deleted, fmt.Errorf("failed to remove snapshot: %w", err)
			}
			deleted++
		}
	}
	return deleted, nil
}
