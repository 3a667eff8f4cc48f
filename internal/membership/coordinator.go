// Package membership はグループへの参加・招待・脱退を、台帳のメンバーシップと
// プロバイダー側の購読が揃うように調整する。
package membership

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/repository"
)

// Binder はidentityに束縛されたプロバイダーハンドルを生成する。
type Binder interface {
	Bind(ctx context.Context, email string) (provider.Calendar, error)
}

// Recorder はメンバーシップ変更のメトリクスを記録する。
type Recorder interface {
	RecordMembershipChange(action string)
}

// Target は操作対象のグループ。RemoteIDが台帳に登録されていれば台帳の名前を優先する。
type Target struct {
	Name     string
	RemoteID string
}

// LeaveResult は脱退処理の結果。
type LeaveResult struct {
	// OwnerCascade は所有者の脱退によりグループ全体を解散したかを示す。
	OwnerCascade bool
	// Removed は購読解除とメンバーシップ削除を行ったidentityの一覧。
	Removed []string
}

// Coordinator はメンバーシップ操作を提供する。
// 台帳とプロバイダーの更新はトランザクションで束ねず、途中で失敗した場合は
// 以降の処理を中断してエラーを返す。リトライは行わない。
type Coordinator struct {
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	binder      Binder
	recorder    Recorder
	now         func() time.Time
}

// NewCoordinator はCoordinatorを生成する。
func NewCoordinator(groups repository.GroupRepository, memberships repository.MembershipRepository, binder Binder) *Coordinator {
	return &Coordinator{
		groups:      groups,
		memberships: memberships,
		binder:      binder,
		now:         time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (c *Coordinator) SetRecorder(r Recorder) {
	c.recorder = r
}

// JoinPublic はidentityをグループのリソースに購読させ、メンバーシップを登録する。
// 購読済みの応答は成功として扱い、メンバーシップが既にあれば登録しない。
func (c *Coordinator) JoinPublic(ctx context.Context, identity string, target Target) error {
	name, err := c.resolveName(ctx, target)
	if err != nil {
		return err
	}

	cal, err := c.binder.Bind(ctx, identity)
	if err != nil {
		slog.Warn("プロバイダーハンドルの生成に失敗しました", "identity", identity, "error", err)
		return provider.ToAPIError("bind", err)
	}

	if err := subscribe(ctx, cal, target.RemoteID); err != nil {
		slog.Error("グループの購読に失敗しました", "identity", identity, "group", name, "remote_id", target.RemoteID, "error", err)
		return provider.ToAPIError("subscribe", err)
	}

	if err := c.addMembership(ctx, identity, name, target.RemoteID, "join"); err != nil {
		slog.Error("メンバーシップの登録に失敗しました", "identity", identity, "group", name, "error", err)
		return model.NewLedgerFailedError("create_membership")
	}
	return nil
}

// Invite は招待されたidentity自身の資格情報でリソースを購読させ、メンバーシップを登録する。
// 招待者はグループのメンバーである必要がある。
func (c *Coordinator) Invite(ctx context.Context, inviter, invitee, remoteID string) error {
	g, err := c.groups.FindByRemoteID(ctx, remoteID)
	if err != nil {
		slog.Error("グループの取得に失敗しました", "remote_id", remoteID, "error", err)
		return model.NewLedgerFailedError("find_group")
	}
	if g == nil {
		return model.NewGroupNotFoundError(remoteID)
	}

	isMember, err := c.memberships.Exists(ctx, inviter, g.Name)
	if err != nil {
		slog.Error("メンバーシップの確認に失敗しました", "identity", inviter, "group", g.Name, "error", err)
		return model.NewLedgerFailedError("find_membership")
	}
	if !isMember && g.OwnerEmail != inviter {
		return model.NewNotGroupMemberError(g.Name)
	}

	cal, err := c.binder.Bind(ctx, invitee)
	if err != nil {
		slog.Warn("招待先のプロバイダーハンドルの生成に失敗しました", "identity", invitee, "error", err)
		return provider.ToAPIError("bind", err)
	}

	if err := subscribe(ctx, cal, remoteID); err != nil {
		slog.Error("招待先の購読に失敗しました", "identity", invitee, "group", g.Name, "remote_id", remoteID, "error", err)
		return provider.ToAPIError("subscribe", err)
	}

	if err := c.addMembership(ctx, invitee, g.Name, remoteID, "invite"); err != nil {
		slog.Error("メンバーシップの登録に失敗しました", "identity", invitee, "group", g.Name, "error", err)
		return model.NewLedgerFailedError("create_membership")
	}
	return nil
}

// Leave はidentityをグループから脱退させる。
// identityが台帳上の所有者であれば全メンバーの購読解除とメンバーシップ削除を行い、最後にグループを削除する。
// グループに属するイベントは削除しない。
// それ以外の場合はidentity自身の購読とメンバーシップのみを解除する。
func (c *Coordinator) Leave(ctx context.Context, identity string, target Target) (*LeaveResult, error) {
	g, err := c.groups.FindByRemoteID(ctx, target.RemoteID)
	if err != nil {
		slog.Error("グループの取得に失敗しました", "remote_id", target.RemoteID, "error", err)
		return nil, model.NewLedgerFailedError("find_group")
	}

	if g != nil && g.OwnerEmail == identity {
		return c.dissolve(ctx, g)
	}

	name := target.Name
	if g != nil {
		name = g.Name
	}
	if name == "" {
		return nil, model.NewGroupNotFoundError(target.RemoteID)
	}

	if err := c.removeMember(ctx, identity, name, target.RemoteID); err != nil {
		return nil, err
	}
	return &LeaveResult{Removed: []string{identity}}, nil
}

func (c *Coordinator) dissolve(ctx context.Context, g *model.Group) (*LeaveResult, error) {
	members, err := c.memberships.ListMembers(ctx, g.RemoteID)
	if err != nil {
		slog.Error("メンバー一覧の取得に失敗しました", "group", g.Name, "remote_id", g.RemoteID, "error", err)
		return nil, model.NewLedgerFailedError("list_members")
	}

	result := &LeaveResult{OwnerCascade: true}
	for _, member := range members {
		if err := c.removeMember(ctx, member, g.Name, g.RemoteID); err != nil {
			return result, err
		}
		result.Removed = append(result.Removed, member)
	}

	if err := c.groups.DeleteByOwnerAndName(ctx, g.OwnerEmail, g.Name); err != nil {
		slog.Error("グループの削除に失敗しました", "identity", g.OwnerEmail, "group", g.Name, "error", err)
		return result, model.NewLedgerFailedError("delete_group")
	}

	slog.Info("グループを解散しました", "identity", g.OwnerEmail, "group", g.Name, "remote_id", g.RemoteID, "members", len(result.Removed))
	return result, nil
}

// removeMember はmemberの購読を解除し、メンバーシップを削除する。
// 既に購読していない場合は解除済みとして扱う。
func (c *Coordinator) removeMember(ctx context.Context, member, name, remoteID string) error {
	cal, err := c.binder.Bind(ctx, member)
	if err != nil {
		slog.Warn("プロバイダーハンドルの生成に失敗しました", "identity", member, "error", err)
		return provider.ToAPIError("bind", err)
	}

	if err := cal.Unsubscribe(ctx, remoteID); err != nil && !errors.Is(err, provider.ErrNotFound) {
		slog.Error("購読の解除に失敗しました", "identity", member, "group", name, "remote_id", remoteID, "error", err)
		return provider.ToAPIError("unsubscribe", err)
	}

	if err := c.memberships.Delete(ctx, member, name); err != nil {
		slog.Error("メンバーシップの削除に失敗しました", "identity", member, "group", name, "error", err)
		return model.NewLedgerFailedError("delete_membership")
	}
	if c.recorder != nil {
		c.recorder.RecordMembershipChange("leave")
	}
	return nil
}

func (c *Coordinator) resolveName(ctx context.Context, target Target) (string, error) {
	if target.RemoteID == "" || target.RemoteID == provider.NotFoundSentinel {
		return "", model.NewGroupNotFoundError(target.Name)
	}
	g, err := c.groups.FindByRemoteID(ctx, target.RemoteID)
	if err != nil {
		slog.Error("グループの取得に失敗しました", "remote_id", target.RemoteID, "error", err)
		return "", model.NewLedgerFailedError("find_group")
	}
	if g != nil {
		return g.Name, nil
	}
	if target.Name == "" {
		return "", model.NewGroupNotFoundError(target.RemoteID)
	}
	return target.Name, nil
}

func (c *Coordinator) addMembership(ctx context.Context, email, name, remoteID, action string) error {
	exists, err := c.memberships.Exists(ctx, email, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := c.memberships.Create(ctx, &model.Membership{
		MemberEmail: email,
		GroupName:   name,
		RemoteID:    remoteID,
		CreatedAt:   c.now(),
	}); err != nil {
		return err
	}
	if c.recorder != nil {
		c.recorder.RecordMembershipChange(action)
	}
	return nil
}

// subscribe は購読済みの応答を成功として扱う。
func subscribe(ctx context.Context, cal provider.Calendar, remoteID string) error {
	if err := cal.Subscribe(ctx, remoteID); err != nil && !errors.Is(err, provider.ErrConflict) {
		return err
	}
	return nil
}
