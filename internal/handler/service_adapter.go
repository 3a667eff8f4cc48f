package handler

import (
	"context"

	"github.com/hitoshi/clubcal/internal/event"
	"github.com/hitoshi/clubcal/internal/group"
	"github.com/hitoshi/clubcal/internal/membership"
	"github.com/hitoshi/clubcal/internal/recurrence"
	"github.com/hitoshi/clubcal/internal/user"
)

// GroupServiceAdapter は group.Service と membership.Coordinator を GroupServiceInterface に適合させるアダプタ。
type GroupServiceAdapter struct {
	groups      *group.Service
	memberships *membership.Coordinator
}

// NewGroupServiceAdapter はGroupServiceAdapterを生成する。
func NewGroupServiceAdapter(groups *group.Service, memberships *membership.Coordinator) *GroupServiceAdapter {
	return &GroupServiceAdapter{groups: groups, memberships: memberships}
}

// CreateGroup はグループを作成しリソースIDを返す。
func (a *GroupServiceAdapter) CreateGroup(ctx context.Context, identity, name, owner string, private bool) (string, error) {
	return a.groups.CreateGroup(ctx, identity, name, owner, private)
}

// ListMine はidentityのグループ一覧をhandlerレスポンス型で返す。
func (a *GroupServiceAdapter) ListMine(ctx context.Context, identity string) ([]groupResponse, error) {
	infos, err := a.groups.ListMine(ctx, identity)
	if err != nil {
		return nil, err
	}
	return toGroupResponses(infos), nil
}

// ListPublic は公開グループ一覧をhandlerレスポンス型で返す。
func (a *GroupServiceAdapter) ListPublic(ctx context.Context) ([]groupResponse, error) {
	infos, err := a.groups.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	return toGroupResponses(infos), nil
}

// ListMembers はグループのメンバー一覧を返す。
func (a *GroupServiceAdapter) ListMembers(ctx context.Context, remoteID string) ([]string, error) {
	members, err := a.groups.ListMembers(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// Join は公開グループに参加する。
func (a *GroupServiceAdapter) Join(ctx context.Context, identity, name, remoteID string) error {
	return a.memberships.JoinPublic(ctx, identity, membership.Target{Name: name, RemoteID: remoteID})
}

// Invite は別のidentityをグループに参加させる。
func (a *GroupServiceAdapter) Invite(ctx context.Context, inviter, invitee, remoteID string) error {
	return a.memberships.Invite(ctx, inviter, invitee, remoteID)
}

// Leave はグループから脱退し、結果をhandlerレスポンス型で返す。
func (a *GroupServiceAdapter) Leave(ctx context.Context, identity, name, remoteID string) (*leaveResponse, error) {
	result, err := a.memberships.Leave(ctx, identity, membership.Target{Name: name, RemoteID: remoteID})
	if err != nil {
		return nil, err
	}

	removed := result.Removed
	if removed == nil {
		removed = []string{}
	}
	return &leaveResponse{Dissolved: result.OwnerCascade, Removed: removed}, nil
}

// toGroupResponses はドメインのグループ情報をhandlerのレスポンス型に変換する。
func toGroupResponses(infos []group.Info) []groupResponse {
	results := make([]groupResponse, len(infos))
	for i, info := range infos {
		results[i] = groupResponse{
			Name:       info.Name,
			ID:         info.RemoteID,
			OwnerEmail: info.OwnerEmail,
			Private:    info.Private,
		}
	}
	return results
}

// EventServiceAdapter は event.Service を EventServiceInterface に適合させるアダプタ。
type EventServiceAdapter struct {
	svc *event.Service
}

// NewEventServiceAdapter はEventServiceAdapterを生成する。
func NewEventServiceAdapter(svc *event.Service) *EventServiceAdapter {
	return &EventServiceAdapter{svc: svc}
}

// ListEvents はイベントの発生一覧をhandlerレスポンス型で返す。
func (a *EventServiceAdapter) ListEvents(ctx context.Context, identity string, h recurrence.Horizon) ([]eventResponse, error) {
	occurrences, err := a.svc.List(ctx, identity, h)
	if err != nil {
		return nil, err
	}

	results := make([]eventResponse, len(occurrences))
	for i, occ := range occurrences {
		results[i] = eventResponse{
			Name:      occ.Name,
			StartTime: occ.StartText,
			EndTime:   occ.EndText,
			ID:        occ.EventID,
			Group:     occ.GroupName,
		}
	}
	return results, nil
}

// AddEvent はイベントを追加し、割り当てられたIDを返す。
func (a *EventServiceAdapter) AddEvent(ctx context.Context, identity string, req eventRequest) (string, error) {
	ev, err := a.svc.Add(ctx, identity, toEventInput(req))
	if err != nil {
		return "", err
	}
	return ev.ID, nil
}

// EditEvent はイベントを更新する。
func (a *EventServiceAdapter) EditEvent(ctx context.Context, identity string, req eventRequest) error {
	return a.svc.Edit(ctx, identity, toEventInput(req))
}

// DeleteEvent はイベントを削除する。
func (a *EventServiceAdapter) DeleteEvent(ctx context.Context, identity, group, eventID string) error {
	return a.svc.Delete(ctx, identity, group, eventID)
}

// ExportICS はiCalendar形式のドキュメントを返す。
func (a *EventServiceAdapter) ExportICS(ctx context.Context, identity string, h recurrence.Horizon) (string, error) {
	return a.svc.ExportICS(ctx, identity, h)
}

func toEventInput(req eventRequest) event.Input {
	return event.Input{
		ID:        req.ID,
		Name:      req.Name,
		StartDate: req.StartDate,
		StartTime: req.StartTime,
		EndDate:   req.EndDate,
		EndTime:   req.EndTime,
		Group:     req.Group,
	}
}

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// Register はidentityを登録する。
func (a *UserServiceAdapter) Register(ctx context.Context, email string) (bool, error) {
	return a.svc.Register(ctx, email)
}

// Premium はプレミアムフラグを返す。
func (a *UserServiceAdapter) Premium(ctx context.Context, email string) (bool, error) {
	return a.svc.Premium(ctx, email)
}

// SetPremium はプレミアムフラグを更新する。
func (a *UserServiceAdapter) SetPremium(ctx context.Context, email string, premium bool) error {
	return a.svc.SetPremium(ctx, email, premium)
}

// Notifications は通知設定をhandlerレスポンス型で返す。
func (a *UserServiceAdapter) Notifications(ctx context.Context, email string) (*notificationsResponse, error) {
	n, err := a.svc.Notifications(ctx, email)
	if err != nil {
		return nil, err
	}
	return &notificationsResponse{Premium: n.Premium, Event: n.Event, Gym: n.Gym}, nil
}

// UpdateNotifications は通知設定を更新する。
func (a *UserServiceAdapter) UpdateNotifications(ctx context.Context, email string, event, gym bool) error {
	return a.svc.UpdateNotifications(ctx, email, event, gym)
}

// Profile はプロフィールをhandlerレスポンス型で返す。
func (a *UserServiceAdapter) Profile(ctx context.Context, email string) (*profileResponse, error) {
	p, err := a.svc.Profile(ctx, email)
	if err != nil {
		return nil, err
	}
	return &profileResponse{Name: p.Name, Weight: p.Weight, Height: p.Height, Age: p.Age, BMI: p.BMI}, nil
}

// SaveProfile はプロフィールを保存し、handlerレスポンス型で返す。
func (a *UserServiceAdapter) SaveProfile(ctx context.Context, email string, req profileRequest) (*profileResponse, error) {
	p, err := a.svc.SaveProfile(ctx, email, user.ProfileInput{
		Name:   req.Name,
		Weight: req.Weight,
		Height: req.Height,
		Age:    req.Age,
	})
	if err != nil {
		return nil, err
	}
	return &profileResponse{Name: p.Name, Weight: p.Weight, Height: p.Height, Age: p.Age, BMI: p.BMI}, nil
}

// DeleteProfile はプロフィールを削除する。
func (a *UserServiceAdapter) DeleteProfile(ctx context.Context, email string) error {
	return a.svc.DeleteProfile(ctx, email)
}

// Withdraw はユーザーの退会処理を実行する。
func (a *UserServiceAdapter) Withdraw(ctx context.Context, email string) error {
	return a.svc.Withdraw(ctx, email)
}

// --- compile-time interface checks ---

var _ GroupServiceInterface = (*GroupServiceAdapter)(nil)
var _ EventServiceInterface = (*EventServiceAdapter)(nil)
var _ UserServiceInterface = (*UserServiceAdapter)(nil)
