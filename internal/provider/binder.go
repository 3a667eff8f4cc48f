package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitoshi/clubcal/internal/model"
)

// ErrNoCredential はidentityの資格情報が台帳に存在しないことを示す。
var ErrNoCredential = errors.New("provider: credential not found")

// CredentialStore はidentityの資格情報を取得する。見つからない場合はnilを返す。
type CredentialStore interface {
	Find(ctx context.Context, email string) (*model.Credential, error)
}

// SessionBinder はidentityの保存済み資格情報からプロバイダーハンドルを生成する。
// トークンの更新は行わず、失効したトークンはプロバイダー呼び出しの失敗として呼び出し元に伝わる。
type SessionBinder struct {
	creds     CredentialStore
	connector Connector
}

// NewSessionBinder はSessionBinderを生成する。
func NewSessionBinder(creds CredentialStore, connector Connector) *SessionBinder {
	return &SessionBinder{creds: creds, connector: connector}
}

// Bind はidentityに束縛されたハンドルを返す。
// 資格情報が存在しない場合はErrNoCredentialを返す。
func (b *SessionBinder) Bind(ctx context.Context, email string) (Calendar, error) {
	cred, err := b.creds.Find(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("資格情報の取得に失敗しました: %w", err)
	}
	if cred == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCredential, model.NewCredentialNotFoundError(email))
	}
	return b.BindCredential(ctx, *cred)
}

// BindCredential は資格情報から直接ハンドルを生成する。ログイン直後の照合処理で使う。
func (b *SessionBinder) BindCredential(ctx context.Context, cred model.Credential) (Calendar, error) {
	cal, err := b.connector.Connect(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("プロバイダーへの接続に失敗しました: %w", err)
	}
	return cal, nil
}
