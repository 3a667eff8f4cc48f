// Package repository は台帳（ローカルのリレーショナルストア）の永続化インターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
)

// GroupRepository はグループの所有関係と名前・リソースIDの対応を永続化する。
type GroupRepository interface {
	// Exists はリソースIDのグループが登録済みかを返す。
	Exists(ctx context.Context, remoteID string) (bool, error)

	// Create はグループを登録する。
	Create(ctx context.Context, group *model.Group) error

	// FindByRemoteID はリソースIDでグループを取得する。見つからない場合はnilを返す。
	FindByRemoteID(ctx context.Context, remoteID string) (*model.Group, error)

	// OwnerOf はグループ名の所有者を返す。見つからない場合は空文字を返す。
	OwnerOf(ctx context.Context, name string) (string, error)

	// ListPublic は公開グループの一覧を名前順で返す。
	ListPublic(ctx context.Context) ([]*model.Group, error)

	// DeleteByOwnerAndName は所有者とグループ名に一致するグループを削除する。
	DeleteByOwnerAndName(ctx context.Context, owner, name string) error
}

// MembershipRepository はメンバーシップを永続化する。
type MembershipRepository interface {
	// Exists は(identity, groupName)のメンバーシップが存在するかを返す。
	Exists(ctx context.Context, email, groupName string) (bool, error)

	// Create はメンバーシップを作成する。(identity, groupName)が重複する場合は何もしない。
	Create(ctx context.Context, m *model.Membership) error

	// Delete は(identity, groupName)のメンバーシップを削除する。
	Delete(ctx context.Context, email, groupName string) error

	// ListMembers はリソースIDのグループに所属するメンバーの一覧を返す。
	ListMembers(ctx context.Context, remoteID string) ([]string, error)

	// DeleteByEmail はidentityの全メンバーシップを削除する。
	DeleteByEmail(ctx context.Context, email string) error
}

// CredentialRepository はidentityごとのアクセストークンを永続化する。
type CredentialRepository interface {
	// Find はidentityの資格情報を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, email string) (*model.Credential, error)

	// Upsert は資格情報を保存する。既存の資格情報は上書きされる。
	Upsert(ctx context.Context, cred *model.Credential) error

	// DeleteByEmail はidentityの資格情報を削除する。
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteExpired は基準時刻までに期限切れとなった資格情報を削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByEmail は指定identityの全セッションを削除する。
	DeleteByEmail(ctx context.Context, email string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// UserRepository はユーザーと通知設定の永続化インターフェース。
type UserRepository interface {
	// Register はユーザーを登録する。既に存在する場合はfalseを返す。
	// 新規登録時は通知設定も既定値で作成する。
	Register(ctx context.Context, email string) (bool, error)

	// FindByEmail はユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// SetPremium はプレミアムフラグを更新する。
	SetPremium(ctx context.Context, email string, premium bool) error

	// FindNotifications は通知設定を取得する。見つからない場合はnilを返す。
	FindNotifications(ctx context.Context, email string) (*model.NotificationSettings, error)

	// UpdateNotifications は通知設定を更新する。
	UpdateNotifications(ctx context.Context, settings *model.NotificationSettings) error

	// Delete はユーザーを削除する。通知設定とプロフィールはCASCADE削除される。
	Delete(ctx context.Context, email string) error
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// Find はプロフィールを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, email string) (*model.Profile, error)
	// Upsert はプロフィールを保存する。
	Upsert(ctx context.Context, profile *model.Profile) error
	// Delete はプロフィールを削除する。
	Delete(ctx context.Context, email string) error
}
