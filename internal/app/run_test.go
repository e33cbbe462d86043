package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/listingwatch/internal/database"
	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/repository"
)

// seedStore はSQLiteファイルに検索と掲載を直接書き込む。
func seedStore(t *testing.T, path string) (active, inactive *model.Search) {
	t.Helper()
	db, err := database.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer db.Close()

	store, err := repository.NewStore(db, database.DriverSQLite)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	ctx := context.Background()
	active = &model.Search{Name: "Куртки", Query: "куртка", Location: "moskva", Active: true}
	inactive = &model.Search{Name: "Пальто", Query: "пальто", Location: "moskva", Active: false}
	for _, s := range []*model.Search{active, inactive} {
		if err := store.Searches().Create(ctx, s); err != nil {
			t.Fatalf("Create search failed: %v", err)
		}
	}

	item := &model.Item{
		SearchID:      active.ID,
		Title:         "Куртка зимняя",
		Price:         "3500 ₽",
		URL:           "https://market.example/moskva/odezhda/kurtka_1?context=x",
		PublishedText: "вчера",
		FoundAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if _, err := store.Items().Upsert(ctx, item); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	return active, inactive
}

func TestRun_Migrate_CreatesSQLiteDatabase(t *testing.T) {
	path := setTestEnv(t)

	var logs, out bytes.Buffer
	if err := run(&logs, &out, []string{"migrate"}); err != nil {
		t.Fatalf("run(migrate) error = %v\nlogs: %s", err, logs.String())
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("SQLiteファイルが作成されていない: %v", err)
	}
	if !strings.Contains(logs.String(), "sqlite schema applied successfully") {
		t.Errorf("完了ログが出力されていない: %s", logs.String())
	}
}

func TestRun_List_ShowsActiveSearchesWithStats(t *testing.T) {
	path := setTestEnv(t)
	active, inactive := seedStore(t, path)

	var logs, out bytes.Buffer
	if err := run(&logs, &out, []string{"list"}); err != nil {
		t.Fatalf("run(list) error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "LAST CHECKED") {
		t.Errorf("ヘッダー行がない:\n%s", got)
	}
	if !strings.Contains(got, active.ID) || !strings.Contains(got, "never") {
		t.Errorf("アクティブな検索が表示されていない:\n%s", got)
	}
	if strings.Contains(got, inactive.ID) {
		t.Errorf("非アクティブな検索は --all なしでは表示しない:\n%s", got)
	}

	out.Reset()
	if err := run(&logs, &out, []string{"list", "--all"}); err != nil {
		t.Fatalf("run(list --all) error = %v", err)
	}
	if !strings.Contains(out.String(), inactive.ID) {
		t.Errorf("--all では非アクティブな検索も表示する:\n%s", out.String())
	}
}

func TestRun_List_Items(t *testing.T) {
	path := setTestEnv(t)
	active, _ := seedStore(t, path)

	var logs, out bytes.Buffer
	if err := run(&logs, &out, []string{"list", "--items", active.ID}); err != nil {
		t.Fatalf("run(list --items) error = %v", err)
	}
	want := "Куртка зимняя | 3500 ₽ | вчера | https://market.example/moskva/odezhda/kurtka_1?context=x\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}

	err := run(&logs, &out, []string{"list", "--items", "missing"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("存在しない検索 error = %v, want ErrNotFound", err)
	}
}

func TestRun_Create_InvalidSpec(t *testing.T) {
	setTestEnv(t)

	var logs, out bytes.Buffer
	err := run(&logs, &out, []string{"create", "--location", "moskva"})
	if !errors.Is(err, model.ErrInvalidSearch) {
		t.Errorf("error = %v, want ErrInvalidSearch", err)
	}
	if out.Len() != 0 {
		t.Errorf("検証エラー時は何も出力しない: %q", out.String())
	}
}

func TestRun_Check_RequiresSearchID(t *testing.T) {
	setTestEnv(t)

	var logs, out bytes.Buffer
	if err := run(&logs, &out, []string{"check"}); !errors.Is(err, errSearchIDRequired) {
		t.Errorf("error = %v, want errSearchIDRequired", err)
	}
}

func TestRun_InitFailure(t *testing.T) {
	setTestEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")

	var logs, out bytes.Buffer
	err := run(&logs, &out, []string{"list"})
	if err == nil || !strings.Contains(err.Error(), "initialization failed") {
		t.Errorf("error = %v, want initialization failure", err)
	}
}

func TestRun_Healthcheck(t *testing.T) {
	setTestEnv(t)

	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("url.Parse failed: %v", err)
	}
	t.Setenv("SERVER_PORT", u.Port())

	var logs, out bytes.Buffer
	if err := run(&logs, &out, []string{"healthcheck"}); err != nil {
		t.Errorf("healthcheck error = %v", err)
	}

	status = http.StatusServiceUnavailable
	if err := run(&logs, &out, []string{"healthcheck"}); err == nil {
		t.Error("503の場合はエラーを返すべき")
	}
}
