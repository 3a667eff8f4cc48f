// Package provider はカレンダープロバイダー（イベント、カレンダーリソース、共有ルールの記録システム）
// へのアクセスを抽象化する。
//
// Calendar は1つのidentityと資格情報に束縛されたプロバイダーハンドルで、
// Connector が資格情報からハンドルを生成する。
// 実装には Google Calendar API を用いる GoogleConnector と、
// テストおよび開発用のインメモリ実装 FakeProvider がある。
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
)

// NotFoundSentinel はリソース名の検索で「該当なし」を表すためにプロバイダーが使う文字列。
// このIDに解決されたグループは存在しないものとして扱う。
const NotFoundSentinel = "primary"

var (
	// ErrUnauthorized はトークンの失効・権限不足によりプロバイダーが要求を拒否したことを示す。
	ErrUnauthorized = errors.New("provider: unauthorized")
	// ErrNotFound は対象のリソースまたはイベントが存在しないことを示す。
	ErrNotFound = errors.New("provider: not found")
	// ErrConflict は既に存在する（購読済みなど）ことを示す。
	ErrConflict = errors.New("provider: already exists")
)

// Subscription はidentityが購読しているプロバイダーリソースを表す。
type Subscription struct {
	Name     string
	RemoteID string
}

// Calendar は1つのidentityに束縛されたプロバイダーハンドル。
// すべての呼び出しは失敗時にリトライせずエラーを返す。
type Calendar interface {
	// Identity はハンドルが束縛されているidentity（メールアドレス）を返す。
	Identity() string

	// ListSubscriptions はidentityが購読しているリソースの一覧を返す。
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	// CreateResource は指定名のリソースを作成し、そのIDを返す。
	// 作成者は作成したリソースを自動的に購読する。
	CreateResource(ctx context.Context, name string) (string, error)
	// SetDefaultReadACL は匿名の読み取り専用アクセスを許可する共有ルールを付与する。
	SetDefaultReadACL(ctx context.Context, remoteID string) error
	// Subscribe はidentityをリソースに購読させる。購読済みの場合はErrConflictを返す。
	Subscribe(ctx context.Context, remoteID string) error
	// Unsubscribe はidentityのリソース購読を解除する。
	Unsubscribe(ctx context.Context, remoteID string) error

	// ListEvents はリソースのイベント一覧を返す。from/toがnilの場合はその方向に制限しない。
	ListEvents(ctx context.Context, remoteID string, from, to *time.Time) ([]model.Event, error)
	// GetEvent は1件のイベントを返す。存在しない場合はErrNotFoundを返す。
	GetEvent(ctx context.Context, remoteID, eventID string) (*model.Event, error)
	// InsertEvent はイベントを作成し、IDが割り当てられたイベントを返す。
	InsertEvent(ctx context.Context, remoteID string, ev *model.Event) (*model.Event, error)
	// UpdateEvent はイベントの名前と開始・終了時刻を更新する。
	UpdateEvent(ctx context.Context, remoteID string, ev *model.Event) error
	// DeleteEvent はイベントを削除する。
	DeleteEvent(ctx context.Context, remoteID, eventID string) error
}

// Connector は資格情報からプロバイダーハンドルを生成する。
// 生成されたハンドルはトークンの外部有効期限まで有効で、更新処理は行わない。
type Connector interface {
	Connect(ctx context.Context, cred model.Credential) (Calendar, error)
}

// TokenVerifier はアクセストークンの持ち主を検証する。
type TokenVerifier interface {
	// VerifyToken はトークンに対応するメールアドレスを返す。
	VerifyToken(ctx context.Context, accessToken string) (string, error)
}
