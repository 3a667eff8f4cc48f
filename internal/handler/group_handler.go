package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// GroupServiceInterface はグループハンドラーが必要とするサービスインターフェース。
type GroupServiceInterface interface {
	// CreateGroup はグループを解決または作成し、所有者のメンバーシップを登録してリソースIDを返す。
	CreateGroup(ctx context.Context, identity, name, owner string, private bool) (string, error)
	// ListMine はidentityが購読しているグループを返す。
	ListMine(ctx context.Context, identity string) ([]groupResponse, error)
	// ListPublic は公開グループを返す。
	ListPublic(ctx context.Context) ([]groupResponse, error)
	// ListMembers はグループのメンバーのidentityを返す。
	ListMembers(ctx context.Context, remoteID string) ([]string, error)
	// Join は公開グループに参加する。
	Join(ctx context.Context, identity, name, remoteID string) error
	// Invite は別のidentityをグループに参加させる。
	Invite(ctx context.Context, inviter, invitee, remoteID string) error
	// Leave はグループから脱退する。所有者の場合はグループを解散する。
	Leave(ctx context.Context, identity, name, remoteID string) (*leaveResponse, error)
}

// groupResponse はグループ一覧の要素。
type groupResponse struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	OwnerEmail string `json:"ownerEmail"`
	Private    bool   `json:"priv"`
}

// leaveResponse は脱退結果。
type leaveResponse struct {
	Dissolved bool     `json:"dissolved"`
	Removed   []string `json:"removed"`
}

// createGroupRequest はグループ作成リクエストのボディ。
type createGroupRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	OwnerEmail string `json:"ownerEmail"`
	Private    bool   `json:"private"`
}

// groupMembershipRequest は参加・脱退リクエストのボディ。
type groupMembershipRequest struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	ID      string `json:"id"`
	Private bool   `json:"private"`
}

// inviteRequest は招待リクエストのボディ。
// グループIDはidとclubIDのどちらでも受け付け、idを優先する。
type inviteRequest struct {
	Email      string `json:"email"`
	OtherEmail string `json:"otherEmail"`
	ID         string `json:"id"`
	ClubID     string `json:"clubID"`
}

func (r inviteRequest) remoteID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.ClubID
}

// GroupHandler はグループとメンバーシップのHTTPハンドラー。
type GroupHandler struct {
	service GroupServiceInterface
}

// NewGroupHandler はGroupHandlerを生成する。
func NewGroupHandler(service GroupServiceInterface) *GroupHandler {
	return &GroupHandler{service: service}
}

// Create はグループを作成する。
// POST /api/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createGroupRequest
	if !decodeJSON(w, r, &req) || !requireField(w, "name", req.Name) {
		return
	}

	owner := strings.ToLower(strings.TrimSpace(req.OwnerEmail))
	id, err := h.service.CreateGroup(r.Context(), identity, req.Name, owner, req.Private)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListMine はログインユーザーのグループ一覧を返す。
// GET /api/groups/mine
func (h *GroupHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	groups, err := h.service.ListMine(r.Context(), identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]groupResponse{"userClubs": nonNilGroups(groups)})
}

// ListPublic は公開グループ一覧を返す。
// GET /api/groups/public
func (h *GroupHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListPublic(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]groupResponse{"clubL": nonNilGroups(groups)})
}

// ListMembers はグループのメンバー一覧を返す。
// GET /api/groups/{id}/members
func (h *GroupHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	remoteID := chi.URLParam(r, "id")
	if !requireField(w, "id", remoteID) {
		return
	}

	members, err := h.service.ListMembers(r.Context(), remoteID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"members": members})
}

// Join は公開グループに参加する。
// POST /api/groups/join
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req groupMembershipRequest
	if !decodeJSON(w, r, &req) || !requireField(w, "id", req.ID) {
		return
	}

	if err := h.service.Join(r.Context(), identity, req.Name, req.ID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Invite は別のユーザーをグループに招待する。
// POST /api/groups/invite
func (h *GroupHandler) Invite(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req inviteRequest
	if !decodeJSON(w, r, &req) || !requireField(w, "otherEmail", req.OtherEmail) || !requireField(w, "id", req.remoteID()) {
		return
	}

	invitee := strings.ToLower(strings.TrimSpace(req.OtherEmail))
	if err := h.service.Invite(r.Context(), identity, invitee, req.remoteID()); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leave はグループから脱退する。
// POST /api/groups/leave
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req groupMembershipRequest
	if !decodeJSON(w, r, &req) || !requireField(w, "id", req.ID) {
		return
	}

	result, err := h.service.Leave(r.Context(), identity, req.Name, req.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func nonNilGroups(groups []groupResponse) []groupResponse {
	if groups == nil {
		return []groupResponse{}
	}
	return groups
}

// SetupGroupRoutes はグループ関連のルーティングを設定したchi.Routerを返す。
// セッションミドルウェアは呼び出し側で適用する。
func SetupGroupRoutes(service GroupServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewGroupHandler(service)

	r.Route("/api/groups", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/mine", h.ListMine)
		r.Get("/public", h.ListPublic)
		r.Get("/{id}/members", h.ListMembers)
		r.Post("/join", h.Join)
		r.Post("/invite", h.Invite)
		r.Post("/leave", h.Leave)
	})

	return r
}
