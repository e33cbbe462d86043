package source

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/listingwatch/internal/model"
)

func fixtureHTML(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile("testdata/results.html")
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func newTestMarketplace(t *testing.T, cfg Config, browser Browser, clock *fakeClock, opts ...Option) *Marketplace {
	t.Helper()
	var buf bytes.Buffer
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.avito.ru"
	}
	opts = append([]Option{WithClock(clock.sleep, clock.now), WithHumanizer(NopHumanizer{})}, opts...)
	m, err := NewMarketplace(cfg, browser, newTestLogger(&buf), opts...)
	if err != nil {
		t.Fatalf("NewMarketplace failed: %v", err)
	}
	return m
}

var jacketParams = model.SearchParams{Query: "jacket", Location: "city-x"}

func TestMarketplace_Fetch_Success(t *testing.T) {
	page := &fakePage{resultsAfter: 1, html: fixtureHTML(t)}
	browser := &fakeBrowser{page: page}
	m := newTestMarketplace(t, Config{}, browser, newFakeClock())

	listings, err := m.Fetch(context.Background(), jacketParams, 1)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(listings) != 3 {
		t.Errorf("listings = %d, want 3", len(listings))
	}
	if len(page.navigated) != 1 || page.navigated[0] != "https://www.avito.ru/city-x?q=jacket&s=104" {
		t.Errorf("navigated = %v", page.navigated)
	}
	if !page.closed {
		t.Error("page should be closed after fetch")
	}
}

func TestMarketplace_Fetch_HumanizedLandingOnFirstPageOnly(t *testing.T) {
	page := &fakePage{resultsAfter: 0, html: fixtureHTML(t)}
	clock := newFakeClock()
	m := newTestMarketplace(t, Config{Humanize: true}, &fakeBrowser{page: page}, clock)

	if _, err := m.Fetch(context.Background(), jacketParams, 1); err != nil {
		t.Fatalf("Fetch page 1 failed: %v", err)
	}
	if len(page.navigated) != 2 || page.navigated[0] != "https://www.avito.ru/" {
		t.Fatalf("page 1 navigated = %v, want landing then search", page.navigated)
	}
	slept := clock.slept()
	if len(slept) != 2 {
		t.Fatalf("page 1 sleeps = %v, want landing dwell and post-navigate dwell", slept)
	}
	if slept[0] < 5*time.Second || slept[0] > 8*time.Second {
		t.Errorf("landing dwell = %v, want 5-8s", slept[0])
	}

	page.navigated = nil
	page.hasCalls = 0
	before := len(clock.slept())
	if _, err := m.Fetch(context.Background(), jacketParams, 2); err != nil {
		t.Fatalf("Fetch page 2 failed: %v", err)
	}
	if len(page.navigated) != 1 || page.navigated[0] != "https://www.avito.ru/city-x?q=jacket&s=104&p=2" {
		t.Errorf("page 2 navigated = %v", page.navigated)
	}
	pause := clock.slept()[before]
	if pause < 10*time.Second || pause > 20*time.Second {
		t.Errorf("inter-page pause = %v, want 10-20s", pause)
	}
}

func TestMarketplace_Fetch_BlockedSavesSnapshot(t *testing.T) {
	page := &fakePage{resultsAfter: 0, html: "<html>captcha</html>"}
	page.setChallenge(`iframe[src*="google.com/recaptcha"]`, true)
	dir := t.TempDir()
	m := newTestMarketplace(t, Config{}, &fakeBrowser{page: page}, newFakeClock(), WithSnapshots(NewSnapshotStore(dir)))

	_, err := m.Fetch(context.Background(), jacketParams, 1)
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "blocked-*.html"))
	if len(matches) != 1 {
		t.Errorf("snapshots = %v, want exactly one", matches)
	}
}

func TestMarketplace_Fetch_BlockedWithoutSnapshotStore(t *testing.T) {
	page := &fakePage{resultsAfter: 0, bodyText: "Please confirm you are human"}
	m := newTestMarketplace(t, Config{}, &fakeBrowser{page: page}, newFakeClock())

	if _, err := m.Fetch(context.Background(), jacketParams, 1); !errors.Is(err, ErrBlocked) {
		t.Fatalf("err = %v, want ErrBlocked", err)
	}
}

func TestMarketplace_Fetch_Timeout(t *testing.T) {
	page := &fakePage{resultsAfter: -1}
	m := newTestMarketplace(t, Config{WaitCeiling: 10 * time.Second}, &fakeBrowser{page: page}, newFakeClock())

	if _, err := m.Fetch(context.Background(), jacketParams, 1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestMarketplace_Fetch_ExtractionEmpty(t *testing.T) {
	page := &fakePage{resultsAfter: 0, html: `<div data-marker="item"><p data-marker="item-price">1 ₽</p></div>`}
	m := newTestMarketplace(t, Config{}, &fakeBrowser{page: page}, newFakeClock())

	if _, err := m.Fetch(context.Background(), jacketParams, 1); !errors.Is(err, ErrExtractionEmpty) {
		t.Fatalf("err = %v, want ErrExtractionEmpty", err)
	}
}

func TestMarketplace_Fetch_BrowserUnavailable(t *testing.T) {
	m := newTestMarketplace(t, Config{}, &fakeBrowser{err: errors.New("chrome not found")}, newFakeClock())

	if _, err := m.Fetch(context.Background(), jacketParams, 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestMarketplace_Fetch_NavigateError(t *testing.T) {
	page := &fakePage{navigateErr: errors.New("net::ERR_CONNECTION_RESET")}
	m := newTestMarketplace(t, Config{}, &fakeBrowser{page: page}, newFakeClock())

	if _, err := m.Fetch(context.Background(), jacketParams, 1); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !page.closed {
		t.Error("page should be closed after failure")
	}
}

func TestMarketplace_Fetch_InvalidPage(t *testing.T) {
	browser := &fakeBrowser{page: &fakePage{}}
	m := newTestMarketplace(t, Config{}, browser, newFakeClock())

	_, err := m.Fetch(context.Background(), jacketParams, 0)
	if err == nil {
		t.Fatal("expected error for page 0")
	}
	if KindOf(err) != 0 {
		t.Errorf("invalid input should not be classified as a fetch failure: %v", err)
	}
	if browser.opened != 0 {
		t.Error("no page should be opened for invalid input")
	}
}

func TestRandomHumanizer_Perform(t *testing.T) {
	var buf bytes.Buffer
	clock := newFakeClock()
	h := NewRandomHumanizer(newTestLogger(&buf))
	h.sleep = clock.sleep
	page := &fakePage{}

	if err := h.Perform(context.Background(), page); err != nil {
		t.Fatalf("Perform failed: %v", err)
	}
	if page.scrolls != len(scrollSequence) || page.moves != len(scrollSequence) {
		t.Errorf("scrolls=%d moves=%d, want %d each", page.scrolls, page.moves, len(scrollSequence))
	}

	var total time.Duration
	for _, d := range clock.slept() {
		if d < 100*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("step %v outside 0.1-1.5s", d)
		}
		total += d
	}
	if total > 22*time.Second {
		t.Errorf("total interaction %v exceeds 22s", total)
	}
}

func TestRandomHumanizer_Cancelled(t *testing.T) {
	var buf bytes.Buffer
	h := NewRandomHumanizer(newTestLogger(&buf))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := h.Perform(ctx, &fakePage{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
