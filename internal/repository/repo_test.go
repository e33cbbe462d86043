package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/listingwatch/internal/database"
	"github.com/hitoshi/listingwatch/internal/model"
)

// コンパイル時チェック
var (
	_ SearchRepository = (*SQLSearchRepo)(nil)
	_ ItemRepository   = (*SQLItemRepo)(nil)
	_ Store            = (*SQLStore)(nil)
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewStore(database.OpenSQLiteMemory(t), database.DriverSQLite)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func createSearch(t *testing.T, store *SQLStore, query string) *model.Search {
	t.Helper()
	s := &model.Search{Name: query, Query: query, Location: "city-x", Active: true}
	if err := store.Searches().Create(context.Background(), s); err != nil {
		t.Fatalf("Create search failed: %v", err)
	}
	return s
}

func intPtr(v int) *int { return &v }

func TestNewStore_UnsupportedDriver(t *testing.T) {
	if _, err := NewStore(nil, database.Driver("mysql")); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestDialect_Rebind(t *testing.T) {
	q := `UPDATE t SET a = ? WHERE b = ? AND c = ?`
	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind = %q, want unchanged", got)
	}
	want := `UPDATE t SET a = $1 WHERE b = $2 AND c = $3`
	if got := postgresDialect.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestDialect_ValidID(t *testing.T) {
	tests := []struct {
		name string
		d    dialect
		id   string
		want bool
	}{
		{"postgres UUID", postgresDialect, "0190a6f4-7c1e-7a3b-9d2e-3f4a5b6c7d8e", true},
		{"postgres 非UUID", postgresDialect, "nonexistent", false},
		{"postgres 空文字", postgresDialect, "", false},
		{"sqlite 任意文字列", sqliteDialect, "nonexistent", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.validID(tt.id); got != tt.want {
				t.Errorf("validID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

// UUID列を持つPostgreSQLでは、不正な形式のIDは問い合わせ前にNotFoundとなる。
func TestPostgresRepos_MalformedIDIsNotFound(t *testing.T) {
	db := database.OpenSQLiteMemory(t)
	searches := NewPostgresSearchRepo(db)
	items := NewPostgresItemRepo(db)
	ctx := context.Background()
	const id = "nonexistent"

	checks := map[string]error{
		"FindByID":         func() error { _, err := searches.FindByID(ctx, id); return err }(),
		"TouchLastChecked": searches.TouchLastChecked(ctx, id, time.Now()),
		"SetActive":        searches.SetActive(ctx, id, false),
		"Stats":            func() error { _, err := searches.Stats(ctx, id); return err }(),
		"Item FindByID":    func() error { _, err := items.FindByID(ctx, id); return err }(),
		"MarkViewed":       items.MarkViewed(ctx, id),
		"MarkSearchViewed": func() error { _, err := items.MarkSearchViewed(ctx, id); return err }(),
		"Delete":           items.Delete(ctx, id),
	}
	for name, err := range checks {
		if !errors.Is(err, model.ErrNotFound) {
			t.Errorf("%s: err = %v, want ErrNotFound", name, err)
		}
	}

	list, err := items.ListBySearch(ctx, id, false)
	if err != nil {
		t.Fatalf("ListBySearch failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListBySearch = %d items, want 0", len(list))
	}
}

func TestDBTime_Scan(t *testing.T) {
	ref := time.Date(2025, 3, 1, 12, 0, 0, 500, time.UTC)
	tests := []struct {
		name  string
		value any
		want  time.Time
		valid bool
	}{
		{"nil", nil, time.Time{}, false},
		{"time", ref.In(time.FixedZone("JST", 9*3600)), ref, true},
		{"unix nano", ref.UnixNano(), ref, true},
		{"string", ref.Format(time.RFC3339Nano), ref, true},
		{"bytes", []byte(ref.Format(time.RFC3339Nano)), ref, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got dbTime
			if err := got.Scan(tt.value); err != nil {
				t.Fatalf("Scan failed: %v", err)
			}
			if got.Valid != tt.valid || !got.Time.Equal(tt.want) {
				t.Errorf("got (%v, %v), want (%v, %v)", got.Time, got.Valid, tt.want, tt.valid)
			}
		})
	}

	var bad dbTime
	if err := bad.Scan(3.14); err == nil {
		t.Error("expected error for float value")
	}
}

func TestSearchRepo_CreateAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := &model.Search{
		Name: "jacket", Query: "jacket", Location: "city-x",
		PriceMin: intPtr(10), PriceMax: intPtr(200),
		DeliveryRequired: true, Active: true,
	}
	if err := store.Searches().Create(ctx, s); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.ID == "" {
		t.Fatal("ID should be assigned")
	}

	got, err := store.Searches().FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Query != "jacket" || got.Location != "city-x" {
		t.Errorf("got query=%q location=%q", got.Query, got.Location)
	}
	if got.PriceMin == nil || *got.PriceMin != 10 || got.PriceMax == nil || *got.PriceMax != 200 {
		t.Errorf("price bounds not round-tripped: %v %v", got.PriceMin, got.PriceMax)
	}
	if !got.DeliveryRequired || got.FittingRequired || !got.Active {
		t.Errorf("flags not round-tripped: %+v", got)
	}
	if got.LastCheckedAt != nil {
		t.Errorf("LastCheckedAt = %v, want nil", got.LastCheckedAt)
	}
}

func TestSearchRepo_FindByID_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Searches().FindByID(context.Background(), "missing")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearchRepo_TouchLastChecked_Monotonic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")

	t2 := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t2.Add(-time.Hour)

	if err := store.Searches().TouchLastChecked(ctx, s.ID, t2); err != nil {
		t.Fatalf("touch t2 failed: %v", err)
	}
	if err := store.Searches().TouchLastChecked(ctx, s.ID, t1); err != nil {
		t.Fatalf("touch t1 failed: %v", err)
	}

	got, err := store.Searches().FindByID(ctx, s.ID)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(t2) {
		t.Errorf("LastCheckedAt = %v, want %v", got.LastCheckedAt, t2)
	}
}

func TestSearchRepo_TouchLastChecked_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.Searches().TouchLastChecked(context.Background(), "missing", time.Now())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSearchRepo_ListActive_Ordering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	never := createSearch(t, store, "never")
	older := createSearch(t, store, "older")
	newer := createSearch(t, store, "newer")
	inactive := createSearch(t, store, "inactive")

	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := store.Searches().TouchLastChecked(ctx, older.ID, base); err != nil {
		t.Fatal(err)
	}
	if err := store.Searches().TouchLastChecked(ctx, newer.ID, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := store.Searches().SetActive(ctx, inactive.ID, false); err != nil {
		t.Fatal(err)
	}

	got, err := store.Searches().ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	want := []string{newer.ID, older.ID, never.ID}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d = %s (%s), want %s", i, got[i].ID, got[i].Query, id)
		}
	}

	all, err := store.Searches().ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("ListAll len = %d, want 4", len(all))
	}
}

func TestSearchRepo_SetActive_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.Searches().SetActive(context.Background(), "missing", false)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestItemRepo_Upsert_DeduplicatesByCanonicalKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")

	first := &model.Item{SearchID: s.ID, Title: "Jacket", URL: "https://m.example/d/oferta/jacket-CID1-ID9_123?ref=a"}
	res, err := store.Items().Upsert(ctx, first)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if res != model.UpsertInserted {
		t.Fatalf("first result = %v, want inserted", res)
	}
	if first.CanonicalKey != "https://m.example/d/oferta/jacket-CID1-ID9_123" {
		t.Errorf("CanonicalKey = %q", first.CanonicalKey)
	}

	second := &model.Item{SearchID: s.ID, Title: "Changed title", URL: "https://m.example/d/oferta/jacket-CID1-ID9_123?ref=b"}
	res, err = store.Items().Upsert(ctx, second)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if res != model.UpsertDuplicateIgnored {
		t.Fatalf("second result = %v, want duplicate_ignored", res)
	}

	items, err := store.Items().ListBySearch(ctx, s.ID, false)
	if err != nil {
		t.Fatalf("ListBySearch failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len = %d, want 1", len(items))
	}
	if items[0].Title != "Jacket" || !items[0].Unseen {
		t.Errorf("stored item changed: %+v", items[0])
	}
}

func TestItemRepo_Upsert_KeyIsGlobalAcrossSearches(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	a := createSearch(t, store, "a")
	b := createSearch(t, store, "b")

	url := "https://m.example/d/oferta/x_1"
	if res, err := store.Items().Upsert(ctx, &model.Item{SearchID: a.ID, Title: "x", URL: url}); err != nil || res != model.UpsertInserted {
		t.Fatalf("first upsert = %v, %v", res, err)
	}
	res, err := store.Items().Upsert(ctx, &model.Item{SearchID: b.ID, Title: "x", URL: url})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if res != model.UpsertDuplicateIgnored {
		t.Errorf("result = %v, want duplicate_ignored", res)
	}
}

func TestItemRepo_Upsert_ConcurrentSameKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")

	const workers = 8
	results := make([]model.UpsertResult, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := &model.Item{SearchID: s.ID, Title: "Jacket", URL: "https://m.example/d/oferta/jacket_77"}
			results[i], errs[i] = store.Items().Upsert(ctx, item)
		}(i)
	}
	wg.Wait()

	inserted := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("worker %d error: %v", i, errs[i])
		}
		if results[i] == model.UpsertInserted {
			inserted++
		}
	}
	if inserted != 1 {
		t.Errorf("inserted = %d, want exactly 1", inserted)
	}
}

func TestItemRepo_Upsert_EmptyURL(t *testing.T) {
	store := newTestStore(t)
	s := createSearch(t, store, "jacket")
	if _, err := store.Items().Upsert(context.Background(), &model.Item{SearchID: s.ID, Title: "x"}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestItemRepo_MarkViewed_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")

	item := &model.Item{SearchID: s.ID, Title: "Jacket", URL: "https://m.example/d/oferta/jacket_1"}
	if _, err := store.Items().Upsert(ctx, item); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := store.Items().MarkViewed(ctx, item.ID); err != nil {
			t.Fatalf("MarkViewed #%d failed: %v", i+1, err)
		}
	}

	got, err := store.Items().FindByID(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Unseen {
		t.Error("item should be seen")
	}

	if err := store.Items().MarkViewed(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestItemRepo_MarkSearchViewed_AndStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")
	other := createSearch(t, store, "other")

	for _, u := range []string{"https://m.example/a_1", "https://m.example/a_2", "https://m.example/a_3"} {
		if _, err := store.Items().Upsert(ctx, &model.Item{SearchID: s.ID, Title: "t", URL: u}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.Items().Upsert(ctx, &model.Item{SearchID: other.ID, Title: "t", URL: "https://m.example/b_1"}); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Searches().Stats(ctx, s.ID)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 3 || stats.Unseen != 3 {
		t.Errorf("stats = %+v, want total=3 unseen=3", stats)
	}

	n, err := store.Items().MarkSearchViewed(ctx, s.ID)
	if err != nil {
		t.Fatalf("MarkSearchViewed failed: %v", err)
	}
	if n != 3 {
		t.Errorf("cleared = %d, want 3", n)
	}
	n, err = store.Items().MarkSearchViewed(ctx, s.ID)
	if err != nil || n != 0 {
		t.Errorf("second clear = %d, %v, want 0, nil", n, err)
	}

	stats, err = store.Searches().Stats(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Unseen != 0 {
		t.Errorf("stats = %+v, want total=3 unseen=0", stats)
	}

	otherStats, err := store.Searches().Stats(ctx, other.ID)
	if err != nil {
		t.Fatal(err)
	}
	if otherStats.Unseen != 1 {
		t.Errorf("other search unseen = %d, want 1", otherStats.Unseen)
	}

	if _, err := store.Items().MarkSearchViewed(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestItemRepo_ListBySearch_UnseenOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")

	seen := &model.Item{SearchID: s.ID, Title: "seen", URL: "https://m.example/s_1"}
	fresh := &model.Item{SearchID: s.ID, Title: "fresh", URL: "https://m.example/s_2"}
	for _, it := range []*model.Item{seen, fresh} {
		if _, err := store.Items().Upsert(ctx, it); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Items().MarkViewed(ctx, seen.ID); err != nil {
		t.Fatal(err)
	}

	items, err := store.Items().ListBySearch(ctx, s.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != fresh.ID {
		t.Errorf("unseen items = %v, want only %s", items, fresh.ID)
	}
}

func TestItemRepo_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	s := createSearch(t, store, "jacket")

	item := &model.Item{SearchID: s.ID, Title: "x", URL: "https://m.example/d_1"}
	if _, err := store.Items().Upsert(ctx, item); err != nil {
		t.Fatal(err)
	}
	if err := store.Items().Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Items().Delete(ctx, item.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestSQLStore_Ping(t *testing.T) {
	store := newTestStore(t)
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}
