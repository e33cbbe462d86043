package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/listingwatch/internal/model"
	"github.com/hitoshi/listingwatch/internal/source"
	"github.com/hitoshi/listingwatch/internal/worker/schedule"
)

// SchedulerController はスケジューラの状態取得と開始・停止の操作。
type SchedulerController interface {
	State() schedule.State
	Start(ctx context.Context) bool
	RequestStop() <-chan struct{}
}

// ChallengeSignaler は対話モードで待機中のチャレンジに解決済みシグナルを送る。
type ChallengeSignaler interface {
	Signal() bool
	Pending() (source.Challenge, bool)
}

// SchedulerHandler はスケジューラ制御とチャレンジ解決のHTTPハンドラー。
type SchedulerHandler struct {
	scheduler SchedulerController
	resolver  ChallengeSignaler
}

// NewSchedulerHandler はSchedulerHandlerを生成する。resolverはnilでもよい。
func NewSchedulerHandler(scheduler SchedulerController, resolver ChallengeSignaler) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: scheduler,
		resolver:  resolver,
	}
}

// schedulerStateResponse はスケジューラ状態のレスポンス。
type schedulerStateResponse struct {
	State            string `json:"state"`
	Changed          bool   `json:"changed"`
	PendingChallenge string `json:"pending_challenge,omitempty"`
}

// challengeResolveResponse はチャレンジ解決シグナルのレスポンス。
type challengeResolveResponse struct {
	Resumed bool `json:"resumed"`
}

func (h *SchedulerHandler) state(changed bool) schedulerStateResponse {
	resp := schedulerStateResponse{
		State:   string(h.scheduler.State()),
		Changed: changed,
	}
	if h.resolver != nil {
		if c, ok := h.resolver.Pending(); ok {
			resp.PendingChallenge = c.URL
		}
	}
	return resp
}

// GetState はスケジューラの状態と待機中のチャレンジを返す。
// GET /api/scheduler
func (h *SchedulerHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.state(false))
}

// Start はスケジューラを開始する。実行中なら何もしない。
// 停止処理中は開始できないため409を返す。
// ループはリクエスト終了後も続くため、リクエストのキャンセルは引き継がない。
// POST /api/scheduler/start
func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	started := h.scheduler.Start(context.WithoutCancel(r.Context()))
	if started {
		slog.Info("scheduler started via api")
		writeJSON(w, http.StatusOK, h.state(true))
		return
	}
	if h.scheduler.State() != schedule.StateRunning {
		apiErr := model.NewSchedulerStoppingError()
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}
	writeJSON(w, http.StatusOK, h.state(false))
}

// Stop はスケジューラの停止を要求する。
// 実行中のチェックの完了は待たない。状態はstoppingを経てstoppedになる。
// POST /api/scheduler/stop
func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if h.scheduler.State() != schedule.StateRunning {
		writeJSON(w, http.StatusOK, h.state(false))
		return
	}

	done := h.scheduler.RequestStop()
	slog.Info("scheduler stop requested via api")

	select {
	case <-done:
		writeJSON(w, http.StatusOK, h.state(true))
	default:
		writeJSON(w, http.StatusAccepted, h.state(true))
	}
}

// ResolveChallenge は待機中のチャレンジを解決済みにして取得を再開させる。
// POST /api/challenge/resolve
func (h *SchedulerHandler) ResolveChallenge(w http.ResponseWriter, r *http.Request) {
	resumed := h.resolver != nil && h.resolver.Signal()
	writeJSON(w, http.StatusOK, challengeResolveResponse{Resumed: resumed})
}
