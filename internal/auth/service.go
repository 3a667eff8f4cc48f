// Package auth はログイン（OAuth認証フローとモバイルクライアントのトークンログイン）と
// セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/repository"
)

// OAuthUserInfo はOAuthフローで得たidentityとアクセストークンを表す。
type OAuthUserInfo struct {
	Email       string
	AccessToken string
	Expiry      time.Time
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、トークンの持ち主を返す。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// CredentialBinder は資格情報からプロバイダーハンドルを生成する。
type CredentialBinder interface {
	BindCredential(ctx context.Context, cred model.Credential) (provider.Calendar, error)
}

// Reconciler はログイン時にidentityの購読リソースを台帳と照合する。
type Reconciler interface {
	Reconcile(ctx context.Context, cal provider.Calendar) (int, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// ServiceDeps は認証サービスの依存関係。
type ServiceDeps struct {
	OAuth       OAuthProvider
	Verifier    provider.TokenVerifier
	Users       repository.UserRepository
	Credentials repository.CredentialRepository
	Sessions    repository.SessionRepository
	Binder      CredentialBinder
	Reconciler  Reconciler
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	deps   ServiceDeps
	config ServiceConfig
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	return &Service{
		deps:   deps,
		config: config,
		now:    time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.deps.OAuth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.deps.OAuth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	return s.login(ctx, model.Credential{
		Email:       info.Email,
		AccessToken: info.AccessToken,
		Expiry:      info.Expiry,
	})
}

// TokenLogin はクライアントが取得したアクセストークンでログインする。
// トークンの持ち主がemailと一致することをプロバイダーで検証してから資格情報を保存する。
func (s *Service) TokenLogin(ctx context.Context, email, accessToken string, expiry time.Time) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || accessToken == "" {
		return nil, model.NewInvalidRequestError("emailとtokenを指定してください")
	}

	verified, err := s.deps.Verifier.VerifyToken(ctx, accessToken)
	if err != nil {
		slog.Warn("アクセストークンの検証に失敗しました", "identity", email, "error", err)
		return nil, provider.ToAPIError("verify_token", err)
	}
	if !strings.EqualFold(verified, email) {
		slog.Warn("トークンの持ち主が一致しません", "identity", email, "verified", verified)
		return nil, model.NewUnauthorizedError()
	}

	return s.login(ctx, model.Credential{
		Email:       email,
		AccessToken: accessToken,
		Expiry:      expiry,
	})
}

// login は資格情報の保存、ユーザー登録、購読リソースの照合を行い、セッションを発行する。
// 照合に失敗した場合はログインを中断する。
func (s *Service) login(ctx context.Context, cred model.Credential) (*model.Session, error) {
	cred.UpdatedAt = s.now()
	if err := s.deps.Credentials.Upsert(ctx, &cred); err != nil {
		slog.Error("資格情報の保存に失敗しました", "identity", cred.Email, "error", err)
		return nil, model.NewLedgerFailedError("save_credential")
	}

	created, err := s.deps.Users.Register(ctx, cred.Email)
	if err != nil {
		slog.Error("ユーザー登録に失敗しました", "identity", cred.Email, "error", err)
		return nil, model.NewLedgerFailedError("register_user")
	}
	if created {
		slog.Info("new user registered", "identity", cred.Email)
	}

	cal, err := s.deps.Binder.BindCredential(ctx, cred)
	if err != nil {
		slog.Error("プロバイダーハンドルの生成に失敗しました", "identity", cred.Email, "error", err)
		return nil, provider.ToAPIError("bind", err)
	}
	if _, err := s.deps.Reconciler.Reconcile(ctx, cal); err != nil {
		return nil, err
	}

	session, err := s.createSession(ctx, cred.Email)
	if err != nil {
		slog.Error("セッションの発行に失敗しました", "identity", cred.Email, "error", err)
		return nil, model.NewLedgerFailedError("create_session")
	}

	slog.Info("user logged in", "identity", cred.Email)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.deps.Sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.deps.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.deps.Users.FindByEmail(ctx, session.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, email string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		Email:     email,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.deps.Sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
