package group

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/repository"
	"github.com/hitoshi/clubcal/internal/security"
)

const (
	// UnknownOwner は台帳に所有者が記録されていないグループの所有者表示。
	UnknownOwner = "Group"
	// AppGroupName はアプリ共有アカウントのカレンダーの表示名。
	AppGroupName = "SOCal"
)

// Binder はidentityに束縛されたプロバイダーハンドルを生成する。
type Binder interface {
	Bind(ctx context.Context, email string) (provider.Calendar, error)
}

// Recorder はグループ操作のメトリクスを記録する。
type Recorder interface {
	RecordGroupCreated()
	RecordMembershipChange(action string)
}

// Info は一覧表示用のグループ情報。
type Info struct {
	Name       string
	RemoteID   string
	OwnerEmail string
	Private    bool
}

// Service はグループ管理のサービス層。
type Service struct {
	registrar   *Registrar
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	binder      Binder
	sanitizer   security.NameSanitizer
	appAccount  string
	recorder    Recorder
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// appAccountが空の場合、アプリ共有アカウントとしての扱いは行わない。
func NewService(
	groups repository.GroupRepository,
	memberships repository.MembershipRepository,
	binder Binder,
	sanitizer security.NameSanitizer,
	appAccount string,
) *Service {
	return &Service{
		registrar:   NewRegistrar(groups),
		groups:      groups,
		memberships: memberships,
		binder:      binder,
		sanitizer:   sanitizer,
		appAccount:  appAccount,
		now:         time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Registrar はサービスが使用するRegistrarを返す。
func (s *Service) Registrar() *Registrar {
	return s.registrar
}

// NormalizeName はグループ名をサニタイズし、作成可能な名前かを検証する。
func (s *Service) NormalizeName(name string) (string, error) {
	cleaned := s.sanitizer.Sanitize(name)
	if cleaned == "" {
		return "", model.NewInvalidRequestError("グループ名を指定してください")
	}
	if strings.EqualFold(cleaned, model.PrimaryGroupName) {
		return "", model.NewInvalidRequestError("Primaryは予約されたグループ名です")
	}
	return cleaned, nil
}

// CreateGroup はグループを解決または作成し、所有者のメンバーシップを登録してリソースIDを返す。
// ownerが空の場合はidentityを所有者とする。
func (s *Service) CreateGroup(ctx context.Context, identity, name, owner string, private bool) (string, error) {
	name, err := s.NormalizeName(name)
	if err != nil {
		return "", err
	}
	if owner == "" {
		owner = identity
	}

	cal, err := s.binder.Bind(ctx, identity)
	if err != nil {
		slog.Warn("プロバイダーハンドルの生成に失敗しました", "identity", identity, "error", err)
		return "", provider.ToAPIError("bind", err)
	}

	remoteID, err := s.registrar.ResolveOrCreate(ctx, cal, name, owner, private)
	if err != nil {
		slog.Error("グループの作成に失敗しました", "identity", identity, "group", name, "error", err)
		return "", classify("create_group", err)
	}

	if err := s.addOwnerMembership(ctx, owner, name, remoteID); err != nil {
		slog.Error("所有者メンバーシップの登録に失敗しました", "identity", owner, "group", name, "remote_id", remoteID, "error", err)
		return "", model.NewLedgerFailedError("create_membership")
	}

	if s.recorder != nil {
		s.recorder.RecordGroupCreated()
	}
	return remoteID, nil
}

// EnsureGroup はイベント追加時の暗黙作成で使う。identity所有の非公開グループとして解決・作成する。
func (s *Service) EnsureGroup(ctx context.Context, cal provider.Calendar, name string) (string, error) {
	name, err := s.NormalizeName(name)
	if err != nil {
		return "", err
	}
	identity := cal.Identity()

	remoteID, err := s.registrar.ResolveOrCreate(ctx, cal, name, identity, true)
	if err != nil {
		slog.Error("グループの暗黙作成に失敗しました", "identity", identity, "group", name, "error", err)
		return "", classify("create_group", err)
	}
	if err := s.addOwnerMembership(ctx, identity, name, remoteID); err != nil {
		slog.Error("所有者メンバーシップの登録に失敗しました", "identity", identity, "group", name, "error", err)
		return "", model.NewLedgerFailedError("create_membership")
	}
	return remoteID, nil
}

// ListMine はidentityが購読しているグループの一覧を返す。
// identity自身のカレンダーはPrimary、アプリ共有アカウントのカレンダーはSOCalとして扱い、
// Primaryとセンチネルに解決されたものは一覧から除外する。
func (s *Service) ListMine(ctx context.Context, identity string) ([]Info, error) {
	cal, err := s.binder.Bind(ctx, identity)
	if err != nil {
		slog.Warn("プロバイダーハンドルの生成に失敗しました", "identity", identity, "error", err)
		return nil, provider.ToAPIError("bind", err)
	}

	subs, err := cal.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("購読一覧の取得に失敗しました", "identity", identity, "error", err)
		return nil, provider.ToAPIError("list_subscriptions", err)
	}

	infos := make([]Info, 0, len(subs))
	for _, sub := range subs {
		name := s.DisplayName(identity, sub.Name)
		if name == model.PrimaryGroupName || sub.RemoteID == provider.NotFoundSentinel {
			continue
		}

		info := Info{Name: name, RemoteID: sub.RemoteID, OwnerEmail: UnknownOwner}
		g, err := s.groups.FindByRemoteID(ctx, sub.RemoteID)
		if err != nil {
			slog.Error("グループの取得に失敗しました", "identity", identity, "remote_id", sub.RemoteID, "error", err)
			return nil, model.NewLedgerFailedError("find_group")
		}
		if g != nil {
			info.OwnerEmail = g.OwnerEmail
			info.Private = g.IsPrivate
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// ListPublic は台帳に登録された公開グループの一覧を返す。
func (s *Service) ListPublic(ctx context.Context) ([]Info, error) {
	groups, err := s.groups.ListPublic(ctx)
	if err != nil {
		slog.Error("公開グループ一覧の取得に失敗しました", "error", err)
		return nil, model.NewLedgerFailedError("list_public_groups")
	}

	infos := make([]Info, len(groups))
	for i, g := range groups {
		infos[i] = Info{Name: g.Name, RemoteID: g.RemoteID, OwnerEmail: g.OwnerEmail, Private: g.IsPrivate}
	}
	return infos, nil
}

// ListMembers はグループのメンバー一覧を返す。
func (s *Service) ListMembers(ctx context.Context, remoteID string) ([]string, error) {
	g, err := s.groups.FindByRemoteID(ctx, remoteID)
	if err != nil {
		slog.Error("グループの取得に失敗しました", "remote_id", remoteID, "error", err)
		return nil, model.NewLedgerFailedError("find_group")
	}
	if g == nil {
		return nil, model.NewGroupNotFoundError(remoteID)
	}

	members, err := s.memberships.ListMembers(ctx, remoteID)
	if err != nil {
		slog.Error("メンバー一覧の取得に失敗しました", "remote_id", remoteID, "error", err)
		return nil, model.NewLedgerFailedError("list_members")
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

// Reconcile はログイン時にidentityの購読リソースを台帳と照合する。
// 台帳に未登録のリソースをidentity所有の非公開グループとして登録し、所有者のメンバーシップを作成する。
// identityがアプリ共有アカウントの場合は公開グループとして登録し、
// 登録済みのグループにも所有者のメンバーシップを作成する。
func (s *Service) Reconcile(ctx context.Context, cal provider.Calendar) (int, error) {
	identity := cal.Identity()
	isApp := s.appAccount != "" && identity == s.appAccount

	subs, err := cal.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("照合のための購読一覧の取得に失敗しました", "identity", identity, "error", err)
		return 0, provider.ToAPIError("list_subscriptions", err)
	}

	registered := 0
	for _, sub := range subs {
		if sub.Name == model.PrimaryGroupName || sub.Name == identity || sub.RemoteID == identity {
			continue
		}
		if sub.RemoteID == provider.NotFoundSentinel {
			continue
		}

		created, err := s.registrar.Register(ctx, sub.Name, sub.RemoteID, identity, !isApp)
		if err != nil {
			slog.Error("グループの照合登録に失敗しました", "identity", identity, "group", sub.Name, "remote_id", sub.RemoteID, "error", err)
			return registered, model.NewLedgerFailedError("register_group")
		}
		// アプリ共有アカウントは台帳登録済みのカレンダーでも所有者メンバーシップを補完する
		if !created && !isApp {
			continue
		}
		if err := s.addOwnerMembership(ctx, identity, sub.Name, sub.RemoteID); err != nil {
			slog.Error("所有者メンバーシップの登録に失敗しました", "identity", identity, "group", sub.Name, "error", err)
			return registered, model.NewLedgerFailedError("create_membership")
		}
		if created {
			registered++
		}
	}

	if registered > 0 {
		slog.Info("購読リソースを台帳に登録しました", "identity", identity, "count", registered)
	}
	return registered, nil
}

// DisplayName は購読名を表示用のグループ名に変換する。
// identity自身のカレンダーはPrimary、アプリ共有アカウントのカレンダーはSOCalとなる。
func (s *Service) DisplayName(identity, name string) string {
	switch {
	case name == identity:
		return model.PrimaryGroupName
	case s.appAccount != "" && name == s.appAccount:
		return AppGroupName
	default:
		return name
	}
}

func (s *Service) addOwnerMembership(ctx context.Context, owner, name, remoteID string) error {
	exists, err := s.memberships.Exists(ctx, owner, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.memberships.Create(ctx, &model.Membership{
		MemberEmail: owner,
		GroupName:   name,
		RemoteID:    remoteID,
		CreatedAt:   s.now(),
	}); err != nil {
		return err
	}
	if s.recorder != nil {
		s.recorder.RecordMembershipChange("owner")
	}
	return nil
}

// classify はRegistrarのエラーを、プロバイダー起因か台帳起因かで分類する。
func classify(op string, err error) *model.APIError {
	if errors.Is(err, ErrLedger) {
		return model.NewLedgerFailedError(op)
	}
	return provider.ToAPIError(op, err)
}
