// Package group はグループ（プロバイダー側のカレンダーリソース）の解決・作成と、
// 台帳への登録を提供する。
package group

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/repository"
)

// ErrLedger は台帳の読み書きに失敗したことを示す。
var ErrLedger = errors.New("group: ledger failure")

// Registrar はグループ名をプロバイダーのリソースIDに解決し、必要に応じて作成して台帳に1度だけ登録する。
type Registrar struct {
	groups repository.GroupRepository
	now    func() time.Time
}

// NewRegistrar はRegistrarを生成する。
func NewRegistrar(groups repository.GroupRepository) *Registrar {
	return &Registrar{groups: groups, now: time.Now}
}

// FindByName はidentityの購読リソースから表示名がnameのものを探す。
// センチネルIDに解決された場合は見つからなかったものとして扱う。
func FindByName(subs []provider.Subscription, name string) (string, bool) {
	for _, sub := range subs {
		if sub.Name == name {
			if sub.RemoteID == provider.NotFoundSentinel {
				return "", false
			}
			return sub.RemoteID, true
		}
	}
	return "", false
}

// ResolveOrCreate はnameのリソースIDを返す。
// 購読中のリソースに同名のものがなければ新規作成し、匿名読み取りの共有ルールを付与する。
// 得られたIDが台帳に未登録の場合のみ(name, id, owner, private)を登録する。
// 途中で失敗した場合は作成済みのリソースを巻き戻さない。
func (r *Registrar) ResolveOrCreate(ctx context.Context, cal provider.Calendar, name, owner string, private bool) (string, error) {
	subs, err := cal.ListSubscriptions(ctx)
	if err != nil {
		return "", fmt.Errorf("購読一覧の取得に失敗しました: %w", err)
	}

	remoteID, found := FindByName(subs, name)
	if !found {
		remoteID, err = cal.CreateResource(ctx, name)
		if err != nil {
			return "", fmt.Errorf("カレンダーの作成に失敗しました: %w", err)
		}
		if err := cal.SetDefaultReadACL(ctx, remoteID); err != nil {
			return "", fmt.Errorf("共有ルールの設定に失敗しました: %w", err)
		}
		slog.Info("グループのカレンダーを作成しました", "identity", cal.Identity(), "group", name, "remote_id", remoteID)
	}

	if _, err := r.Register(ctx, name, remoteID, owner, private); err != nil {
		return "", err
	}
	return remoteID, nil
}

// Register はリソースIDが台帳に未登録の場合のみグループを登録する。
// 登録した場合はtrueを返す。
func (r *Registrar) Register(ctx context.Context, name, remoteID, owner string, private bool) (bool, error) {
	exists, err := r.groups.Exists(ctx, remoteID)
	if err != nil {
		return false, fmt.Errorf("%w: グループの存在確認に失敗しました: %w", ErrLedger, err)
	}
	if exists {
		return false, nil
	}

	g := &model.Group{
		Name:       name,
		RemoteID:   remoteID,
		OwnerEmail: owner,
		IsPrivate:  private,
		CreatedAt:  r.now(),
	}
	if err := r.groups.Create(ctx, g); err != nil {
		return false, fmt.Errorf("%w: グループの登録に失敗しました: %w", ErrLedger, err)
	}
	return true, nil
}
