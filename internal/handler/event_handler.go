package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/recurrence"
)

// EventServiceInterface はイベントハンドラーが必要とするサービスインターフェース。
type EventServiceInterface interface {
	// ListEvents はhorizonに含まれるイベントを展開し、開始時刻順に返す。
	ListEvents(ctx context.Context, identity string, h recurrence.Horizon) ([]eventResponse, error)
	// AddEvent はイベントを追加し、プロバイダーが割り当てたIDを返す。
	AddEvent(ctx context.Context, identity string, req eventRequest) (string, error)
	// EditEvent はイベントの時刻と名前を更新する。
	EditEvent(ctx context.Context, identity string, req eventRequest) error
	// DeleteEvent はイベントを削除する。
	DeleteEvent(ctx context.Context, identity, group, eventID string) error
	// ExportICS はhorizonに含まれる発生をiCalendar形式で返す。
	ExportICS(ctx context.Context, identity string, h recurrence.Horizon) (string, error)
}

// eventResponse はイベント一覧の要素。時刻は "dd-mm-yyyyThh:mm" 形式。
type eventResponse struct {
	Name      string `json:"name"`
	StartTime string `json:"initTime"`
	EndTime   string `json:"endTime"`
	ID        string `json:"id"`
	Group     string `json:"catN"`
}

// eventRequest はイベント追加・編集リクエストのボディ。
type eventRequest struct {
	Email     string `json:"email"`
	ID        string `json:"id"`
	Name      string `json:"name"`
	StartTime string `json:"stTime"`
	EndTime   string `json:"endTime"`
	StartDate string `json:"stDate"`
	EndDate   string `json:"endDate"`
	Group     string `json:"catName"`
}

// deleteEventRequest はイベント削除リクエストのボディ。
type deleteEventRequest struct {
	Email string `json:"email"`
	Group string `json:"catName"`
	ID    string `json:"id"`
}

// EventHandler はイベントのHTTPハンドラー。
type EventHandler struct {
	service EventServiceInterface
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(service EventServiceInterface) *EventHandler {
	return &EventHandler{service: service}
}

// List はイベント一覧を返す。
// GET /api/events?horizon=all|week|month|group:<name>
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	horizon, ok := parseHorizonParam(w, r)
	if !ok {
		return
	}

	events, err := h.service.ListEvents(r.Context(), identity, horizon)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if events == nil {
		events = []eventResponse{}
	}

	writeJSON(w, http.StatusOK, map[string][]eventResponse{"evList": events})
}

// Add はイベントを追加する。
// POST /api/events
func (h *EventHandler) Add(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, err := h.service.AddEvent(r.Context(), identity, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// Edit はイベントを更新する。
// PUT /api/events
func (h *EventHandler) Edit(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req eventRequest
	if !decodeJSON(w, r, &req) || !requireField(w, "id", req.ID) {
		return
	}

	if err := h.service.EditEvent(r.Context(), identity, req); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete はイベントを削除する。
// DELETE /api/events
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req deleteEventRequest
	if !decodeJSON(w, r, &req) || !requireField(w, "id", req.ID) {
		return
	}

	if err := h.service.DeleteEvent(r.Context(), identity, req.Group, req.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Export はイベントをiCalendar形式で返す。
// GET /api/events/export.ics?horizon=...
func (h *EventHandler) Export(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	horizon, ok := parseHorizonParam(w, r)
	if !ok {
		return
	}

	doc, err := h.service.ExportICS(r.Context(), identity, horizon)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="clubcal.ics"`)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(doc))
}

func parseHorizonParam(w http.ResponseWriter, r *http.Request) (recurrence.Horizon, bool) {
	raw := r.URL.Query().Get("horizon")
	h, err := recurrence.ParseHorizon(raw)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidHorizonError(raw))
		return recurrence.Horizon{}, false
	}
	return h, true
}

// SetupEventRoutes はイベント関連のルーティングを設定したchi.Routerを返す。
// セッションミドルウェアは呼び出し側で適用する。
func SetupEventRoutes(service EventServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewEventHandler(service)

	r.Route("/api/events", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Add)
		r.Put("/", h.Edit)
		r.Delete("/", h.Delete)
		r.Get("/export.ics", h.Export)
	})

	return r
}
