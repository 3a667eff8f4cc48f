package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Register はidentityを台帳に登録し、既に登録済みだったかを返す。
	Register(ctx context.Context, email string) (bool, error)
	Premium(ctx context.Context, email string) (bool, error)
	SetPremium(ctx context.Context, email string, premium bool) error
	Notifications(ctx context.Context, email string) (*notificationsResponse, error)
	UpdateNotifications(ctx context.Context, email string, event, gym bool) error
	Profile(ctx context.Context, email string) (*profileResponse, error)
	SaveProfile(ctx context.Context, email string, req profileRequest) (*profileResponse, error)
	DeleteProfile(ctx context.Context, email string) error
	// Withdraw はユーザーの退会処理を実行する。
	// セッション、資格情報、メンバーシップ、プロフィール、通知設定、ユーザーを削除する。
	// 所有グループは台帳に残す。
	Withdraw(ctx context.Context, email string) error
}

type notificationsResponse struct {
	Premium bool `json:"premium"`
	Event   bool `json:"event"`
	Gym     bool `json:"gym"`
}

type updateNotificationsRequest struct {
	Event bool `json:"hasEventnots"`
	Gym   bool `json:"hasGymnots"`
}

type premiumRequest struct {
	Premium bool `json:"premium"`
}

type profileRequest struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Height int     `json:"height"`
	Age    int     `json:"age"`
}

type profileResponse struct {
	Name   string  `json:"name"`
	Weight float64 `json:"weight"`
	Height int     `json:"height"`
	Age    int     `json:"age"`
	BMI    float64 `json:"bmi"`
}

// UserHandler はユーザー台帳データのHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// Register はログインユーザーを台帳に登録する。
// POST /api/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	exists, err := h.service.Register(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// GetPremium はプレミアムフラグを返す。
// GET /api/users/premium
func (h *UserHandler) GetPremium(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	premium, err := h.service.Premium(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"premium": premium})
}

// UpdatePremium はプレミアムフラグを更新する。
// PUT /api/users/premium
func (h *UserHandler) UpdatePremium(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req premiumRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SetPremium(r.Context(), identity, req.Premium); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetNotifications は通知設定を返す。
// GET /api/users/notifications
func (h *UserHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	n, err := h.service.Notifications(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, n)
}

// UpdateNotifications は通知設定を更新する。
// PUT /api/users/notifications
func (h *UserHandler) UpdateNotifications(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateNotificationsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.UpdateNotifications(r.Context(), identity, req.Event, req.Gym); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetProfile はプロフィールを返す。
// GET /api/users/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	p, err := h.service.Profile(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// SaveProfile はプロフィールを保存し、BMIを含めて返す。
// PUT /api/users/profile
func (h *UserHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.SaveProfile(r.Context(), identity, req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// DeleteProfile はプロフィールを削除する。
// DELETE /api/users/profile
func (h *UserHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProfile(r.Context(), identity); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), identity); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupUserRoutes はユーザー管理関連のルーティングを設定したchi.Routerを返す。
// セッションミドルウェアは呼び出し側で適用する。
func SetupUserRoutes(service UserServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(service)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/premium", h.GetPremium)
		r.Put("/premium", h.UpdatePremium)
		r.Get("/notifications", h.GetNotifications)
		r.Put("/notifications", h.UpdateNotifications)
		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.SaveProfile)
		r.Delete("/profile", h.DeleteProfile)
		r.Delete("/me", h.Withdraw)
	})

	return r
}
