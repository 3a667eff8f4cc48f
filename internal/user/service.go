// Package user はユーザー台帳データ（プレミアム、通知設定、プロフィール）と退会処理を提供する。
package user

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/repository"
)

// Notifications は通知設定の表示用の値。
type Notifications struct {
	Premium bool
	Event   bool
	Gym     bool
}

// ProfileInput はプロフィール保存の入力。
type ProfileInput struct {
	Name   string
	Weight float64
	Height int
	Age    int
}

// Service はユーザー管理のサービス層。
type Service struct {
	users       repository.UserRepository
	profiles    repository.ProfileRepository
	sessions    repository.SessionRepository
	credentials repository.CredentialRepository
	memberships repository.MembershipRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	profiles repository.ProfileRepository,
	sessions repository.SessionRepository,
	credentials repository.CredentialRepository,
	memberships repository.MembershipRepository,
) *Service {
	return &Service{
		users:       users,
		profiles:    profiles,
		sessions:    sessions,
		credentials: credentials,
		memberships: memberships,
	}
}

// Register はidentityを登録し、登録前から存在していたかを返す。
// 新規登録時はプレミアムなし、通知はすべて無効で作成される。
func (s *Service) Register(ctx context.Context, email string) (bool, error) {
	created, err := s.users.Register(ctx, email)
	if err != nil {
		slog.Error("ユーザー登録に失敗しました", "identity", email, "error", err)
		return false, model.NewLedgerFailedError("register_user")
	}
	return !created, nil
}

// Premium はプレミアムフラグを返す。
func (s *Service) Premium(ctx context.Context, email string) (bool, error) {
	u, err := s.findUser(ctx, email)
	if err != nil {
		return false, err
	}
	return u.Premium, nil
}

// SetPremium はプレミアムフラグを更新する。
func (s *Service) SetPremium(ctx context.Context, email string, premium bool) error {
	if err := s.users.SetPremium(ctx, email, premium); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		slog.Error("プレミアムフラグの更新に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("set_premium")
	}
	return nil
}

// Notifications はプレミアムフラグと通知設定をまとめて返す。
func (s *Service) Notifications(ctx context.Context, email string) (*Notifications, error) {
	u, err := s.findUser(ctx, email)
	if err != nil {
		return nil, err
	}

	settings, err := s.users.FindNotifications(ctx, email)
	if err != nil {
		slog.Error("通知設定の取得に失敗しました", "identity", email, "error", err)
		return nil, model.NewLedgerFailedError("find_notifications")
	}

	out := &Notifications{Premium: u.Premium}
	if settings != nil {
		out.Event = settings.EventNotify
		out.Gym = settings.GymNotify
	}
	return out, nil
}

// UpdateNotifications は通知設定を更新する。
func (s *Service) UpdateNotifications(ctx context.Context, email string, event, gym bool) error {
	err := s.users.UpdateNotifications(ctx, &model.NotificationSettings{
		Email:       email,
		EventNotify: event,
		GymNotify:   gym,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		slog.Error("通知設定の更新に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("update_notifications")
	}
	return nil
}

// Profile はプロフィールを返す。
func (s *Service) Profile(ctx context.Context, email string) (*model.Profile, error) {
	p, err := s.profiles.Find(ctx, email)
	if err != nil {
		slog.Error("プロフィールの取得に失敗しました", "identity", email, "error", err)
		return nil, model.NewLedgerFailedError("find_profile")
	}
	if p == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return p, nil
}

// SaveProfile はプロフィールを保存する。BMIは体重と身長から算出する。
func (s *Service) SaveProfile(ctx context.Context, email string, in ProfileInput) (*model.Profile, error) {
	if in.Height < 0 || in.Weight < 0 || in.Age < 0 {
		return nil, model.NewInvalidRequestError("身長・体重・年齢には0以上の値を指定してください")
	}
	if _, err := s.findUser(ctx, email); err != nil {
		return nil, err
	}

	p := &model.Profile{
		Email:  email,
		Name:   strings.TrimSpace(in.Name),
		Age:    in.Age,
		Height: in.Height,
		Weight: in.Weight,
		BMI:    model.CalculateBMI(in.Weight, in.Height),
	}
	if err := s.profiles.Upsert(ctx, p); err != nil {
		slog.Error("プロフィールの保存に失敗しました", "identity", email, "error", err)
		return nil, model.NewLedgerFailedError("save_profile")
	}
	return p, nil
}

// DeleteProfile はプロフィールを削除する。
func (s *Service) DeleteProfile(ctx context.Context, email string) error {
	if err := s.profiles.Delete(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewProfileNotFoundError()
		}
		slog.Error("プロフィールの削除に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("delete_profile")
	}
	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → credentials → memberships → user（+ CASCADE: notification_settings, profiles）
// 所有していたグループは台帳に残す。
func (s *Service) Withdraw(ctx context.Context, email string) error {
	if _, err := s.findUser(ctx, email); err != nil {
		return err
	}

	slog.Info("退会処理を開始します", "identity", email)

	if err := s.sessions.DeleteByEmail(ctx, email); err != nil {
		slog.Error("セッションの削除に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("delete_sessions")
	}
	if err := s.credentials.DeleteByEmail(ctx, email); err != nil {
		slog.Error("資格情報の削除に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("delete_credential")
	}
	if err := s.memberships.DeleteByEmail(ctx, email); err != nil {
		slog.Error("メンバーシップの削除に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("delete_memberships")
	}
	if err := s.users.Delete(ctx, email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		slog.Error("ユーザーの削除に失敗しました", "identity", email, "error", err)
		return model.NewLedgerFailedError("delete_user")
	}

	slog.Info("退会処理が完了しました", "identity", email)
	return nil
}

func (s *Service) findUser(ctx context.Context, email string) (*model.User, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("ユーザーの取得に失敗しました", "identity", email, "error", err)
		return nil, model.NewLedgerFailedError("find_user")
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}
