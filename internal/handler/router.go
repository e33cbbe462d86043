package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/listingwatch/internal/middleware"
	"github.com/hitoshi/listingwatch/internal/preview"
	"github.com/hitoshi/listingwatch/internal/repository"
)

// HealthChecker はDB接続の疎通確認を行う。
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 検索・掲載
	Tracker  SearchTracker
	Searches repository.SearchRepository
	Items    repository.ItemRepository
	Images   preview.ImageFetcherService
	BaseURL  string

	// スケジューラ
	Scheduler SchedulerController
	Resolver  ChallengeSignaler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	searchHandler := NewSearchHandler(deps.Tracker, deps.Searches, deps.Items)
	itemHandler := NewItemHandler(deps.Items, deps.Images)
	rssHandler := NewRSSHandler(deps.Searches, deps.Items, deps.BaseURL)
	schedulerHandler := NewSchedulerHandler(deps.Scheduler, deps.Resolver)

	// --- 運用系ルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	// ミドルウェアスタック: RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 検索管理
		r.Route("/api/searches", func(r chi.Router) {
			r.Get("/", searchHandler.ListSearches)
			// POST /api/searches - 作成時に初回チェックを行うためチェック用レート制限を追加
			r.With(deps.RateLimiter.CheckMiddleware()).Post("/", searchHandler.CreateSearch)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", searchHandler.GetSearch)
				r.Get("/items", searchHandler.ListItems)
				r.Get("/stats", searchHandler.GetStats)
				r.Get("/rss", rssHandler.GetFeed)
				r.Put("/active", searchHandler.SetActive)
				r.Post("/viewed", searchHandler.MarkViewed)
				r.With(deps.RateLimiter.CheckMiddleware()).Post("/check", searchHandler.CheckSearch)
			})
		})

		// 掲載管理
		r.Route("/api/items/{id}", func(r chi.Router) {
			r.Get("/", itemHandler.GetItem)
			r.Delete("/", itemHandler.DeleteItem)
			r.Post("/viewed", itemHandler.MarkViewed)
			r.Get("/image", itemHandler.GetImage)
		})

		// スケジューラ制御
		r.Route("/api/scheduler", func(r chi.Router) {
			r.Get("/", schedulerHandler.GetState)
			r.Post("/start", schedulerHandler.Start)
			r.Post("/stop", schedulerHandler.Stop)
		})

		r.Post("/api/challenge/resolve", schedulerHandler.ResolveChallenge)
	})

	return r
}

// healthHandler はDBへの疎通を確認し、成功時に200を返すハンドラーを生成する。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(r.Context()); err != nil {
				slog.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
