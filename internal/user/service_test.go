package user

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	registerFn            func(ctx context.Context, email string) (bool, error)
	findByEmailFn         func(ctx context.Context, email string) (*model.User, error)
	setPremiumFn          func(ctx context.Context, email string, premium bool) error
	findNotificationsFn   func(ctx context.Context, email string) (*model.NotificationSettings, error)
	updateNotificationsFn func(ctx context.Context, settings *model.NotificationSettings) error
	deleteFn              func(ctx context.Context, email string) error
}

func (m *mockUserRepo) Register(ctx context.Context, email string) (bool, error) {
	return m.registerFn(ctx, email)
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) SetPremium(ctx context.Context, email string, premium bool) error {
	return m.setPremiumFn(ctx, email, premium)
}
func (m *mockUserRepo) FindNotifications(ctx context.Context, email string) (*model.NotificationSettings, error) {
	if m.findNotificationsFn != nil {
		return m.findNotificationsFn(ctx, email)
	}
	return nil, nil
}
func (m *mockUserRepo) UpdateNotifications(ctx context.Context, settings *model.NotificationSettings) error {
	return m.updateNotificationsFn(ctx, settings)
}
func (m *mockUserRepo) Delete(ctx context.Context, email string) error {
	return m.deleteFn(ctx, email)
}

type mockProfileRepo struct {
	findFn   func(ctx context.Context, email string) (*model.Profile, error)
	upsertFn func(ctx context.Context, p *model.Profile) error
	deleteFn func(ctx context.Context, email string) error
}

func (m *mockProfileRepo) Find(ctx context.Context, email string) (*model.Profile, error) {
	if m.findFn != nil {
		return m.findFn(ctx, email)
	}
	return nil, nil
}
func (m *mockProfileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	return m.upsertFn(ctx, p)
}
func (m *mockProfileRepo) Delete(ctx context.Context, email string) error {
	return m.deleteFn(ctx, email)
}

type mockSessionRepo struct {
	deleteByEmailFn func(ctx context.Context, email string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByEmail(ctx context.Context, email string) error {
	return m.deleteByEmailFn(ctx, email)
}
func (m *mockSessionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func existingUser(premium bool) func(ctx context.Context, email string) (*model.User, error) {
	return func(ctx context.Context, email string) (*model.User, error) {
		return &model.User{Email: email, Premium: premium}, nil
	}
}

func assertAPICode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != want {
		t.Errorf("error code = %q, want %q", apiErr.Code, want)
	}
}

// --- テスト ---

func TestService_Register(t *testing.T) {
	tests := []struct {
		name       string
		created    bool
		wantExists bool
	}{
		{name: "new user", created: true, wantExists: false},
		{name: "existing user", created: false, wantExists: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{
				registerFn: func(ctx context.Context, email string) (bool, error) {
					return tt.created, nil
				},
			}
			svc := NewService(users, nil, nil, nil, nil)

			exists, err := svc.Register(context.Background(), "a@example.com")
			if err != nil {
				t.Fatalf("Register returned error: %v", err)
			}
			if exists != tt.wantExists {
				t.Errorf("exists = %v, want %v", exists, tt.wantExists)
			}
		})
	}
}

func TestService_Register_LedgerFailure(t *testing.T) {
	users := &mockUserRepo{
		registerFn: func(ctx context.Context, email string) (bool, error) {
			return false, errors.New("connection refused")
		},
	}
	svc := NewService(users, nil, nil, nil, nil)

	_, err := svc.Register(context.Background(), "a@example.com")
	assertAPICode(t, err, model.ErrCodeLedgerFailed)
}

func TestService_Premium(t *testing.T) {
	var saved bool
	users := &mockUserRepo{
		findByEmailFn: existingUser(true),
		setPremiumFn: func(ctx context.Context, email string, premium bool) error {
			saved = premium
			return nil
		},
	}
	svc := NewService(users, nil, nil, nil, nil)

	premium, err := svc.Premium(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("Premium returned error: %v", err)
	}
	if !premium {
		t.Error("premium = false, want true")
	}

	if err := svc.SetPremium(context.Background(), "a@example.com", true); err != nil {
		t.Fatalf("SetPremium returned error: %v", err)
	}
	if !saved {
		t.Error("SetPremium should pass the flag to the repository")
	}
}

func TestService_SetPremium_UnknownUser(t *testing.T) {
	users := &mockUserRepo{
		setPremiumFn: func(ctx context.Context, email string, premium bool) error {
			return fmt.Errorf("user %s: %w", email, repository.ErrNotFound)
		},
	}
	svc := NewService(users, nil, nil, nil, nil)

	err := svc.SetPremium(context.Background(), "nobody@example.com", true)
	assertAPICode(t, err, model.ErrCodeUserNotFound)
}

func TestService_Notifications(t *testing.T) {
	users := &mockUserRepo{
		findByEmailFn: existingUser(false),
		findNotificationsFn: func(ctx context.Context, email string) (*model.NotificationSettings, error) {
			return &model.NotificationSettings{Email: email, EventNotify: true, GymNotify: false}, nil
		},
	}
	svc := NewService(users, nil, nil, nil, nil)

	got, err := svc.Notifications(context.Background(), "a@example.com")
	if err != nil {
		t.Fatalf("Notifications returned error: %v", err)
	}
	want := Notifications{Premium: false, Event: true, Gym: false}
	if *got != want {
		t.Errorf("Notifications = %+v, want %+v", *got, want)
	}
}

func TestService_UpdateNotifications(t *testing.T) {
	var saved *model.NotificationSettings
	users := &mockUserRepo{
		updateNotificationsFn: func(ctx context.Context, settings *model.NotificationSettings) error {
			saved = settings
			return nil
		},
	}
	svc := NewService(users, nil, nil, nil, nil)

	if err := svc.UpdateNotifications(context.Background(), "a@example.com", false, true); err != nil {
		t.Fatalf("UpdateNotifications returned error: %v", err)
	}
	if saved == nil || saved.Email != "a@example.com" || saved.EventNotify || !saved.GymNotify {
		t.Errorf("saved = %+v", saved)
	}
}

func TestService_SaveProfile_ComputesBMI(t *testing.T) {
	var saved *model.Profile
	users := &mockUserRepo{findByEmailFn: existingUser(false)}
	profiles := &mockProfileRepo{
		upsertFn: func(ctx context.Context, p *model.Profile) error {
			saved = p
			return nil
		},
	}
	svc := NewService(users, profiles, nil, nil, nil)

	p, err := svc.SaveProfile(context.Background(), "a@example.com", ProfileInput{
		Name: " Alice ", Weight: 70, Height: 175, Age: 30,
	})
	if err != nil {
		t.Fatalf("SaveProfile returned error: %v", err)
	}
	if saved != p {
		t.Error("SaveProfile should return the saved profile")
	}
	if p.BMI != 22.8571 {
		t.Errorf("BMI = %v, want 22.8571", p.BMI)
	}
	if p.Name != "Alice" {
		t.Errorf("Name = %q, want %q", p.Name, "Alice")
	}
}

func TestService_SaveProfile_Errors(t *testing.T) {
	users := &mockUserRepo{}
	svc := NewService(users, &mockProfileRepo{}, nil, nil, nil)

	_, err := svc.SaveProfile(context.Background(), "a@example.com", ProfileInput{Height: -1})
	assertAPICode(t, err, model.ErrCodeInvalidRequest)

	_, err = svc.SaveProfile(context.Background(), "nobody@example.com", ProfileInput{Height: 170, Weight: 60})
	assertAPICode(t, err, model.ErrCodeUserNotFound)
}

func TestService_Profile_NotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockProfileRepo{}, nil, nil, nil)

	_, err := svc.Profile(context.Background(), "a@example.com")
	assertAPICode(t, err, model.ErrCodeProfileNotFound)
}

func TestService_DeleteProfile_NotFound(t *testing.T) {
	profiles := &mockProfileRepo{
		deleteFn: func(ctx context.Context, email string) error {
			return fmt.Errorf("profile %s: %w", email, repository.ErrNotFound)
		},
	}
	svc := NewService(&mockUserRepo{}, profiles, nil, nil, nil)

	err := svc.DeleteProfile(context.Background(), "a@example.com")
	assertAPICode(t, err, model.ErrCodeProfileNotFound)
}

// TestService_Withdraw は退会処理が関連データを削除し、所有グループを残すことを検証する。
func TestService_Withdraw(t *testing.T) {
	ctx := context.Background()
	email := "a@example.com"

	userDeleteCalled := false
	sessionDeleteCalled := false

	users := &mockUserRepo{
		findByEmailFn: existingUser(false),
		deleteFn: func(ctx context.Context, email string) error {
			userDeleteCalled = true
			return nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByEmailFn: func(ctx context.Context, email string) error {
			sessionDeleteCalled = true
			return nil
		},
	}
	creds := repository.NewMemoryCredentialRepo()
	if err := creds.Upsert(ctx, &model.Credential{Email: email, AccessToken: "tok"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	memberships := repository.NewMemoryMembershipRepo()
	if err := memberships.Create(ctx, &model.Membership{MemberEmail: email, GroupName: "Chess Club", RemoteID: "r1"}); err != nil {
		t.Fatalf("Create membership: %v", err)
	}

	svc := NewService(users, &mockProfileRepo{}, sessions, creds, memberships)

	if err := svc.Withdraw(ctx, email); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if !sessionDeleteCalled {
		t.Error("expected sessions DeleteByEmail to be called")
	}
	if !userDeleteCalled {
		t.Error("expected user Delete to be called")
	}
	if c, _ := creds.Find(ctx, email); c != nil {
		t.Error("credential should be deleted")
	}
	if ok, _ := memberships.Exists(ctx, email, "Chess Club"); ok {
		t.Error("membership should be deleted")
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, nil, nil, nil, nil)

	err := svc.Withdraw(context.Background(), "nonexistent@example.com")
	assertAPICode(t, err, model.ErrCodeUserNotFound)
}

// TestService_Withdraw_SessionFailureAborts はセッション削除失敗で後続の削除が行われないことを検証する。
func TestService_Withdraw_SessionFailureAborts(t *testing.T) {
	users := &mockUserRepo{
		findByEmailFn: existingUser(false),
		deleteFn: func(ctx context.Context, email string) error {
			t.Error("user Delete should not be called")
			return nil
		},
	}
	sessions := &mockSessionRepo{
		deleteByEmailFn: func(ctx context.Context, email string) error {
			return errors.New("db down")
		},
	}
	svc := NewService(users, nil, sessions, repository.NewMemoryCredentialRepo(), repository.NewMemoryMembershipRepo())

	err := svc.Withdraw(context.Background(), "a@example.com")
	assertAPICode(t, err, model.ErrCodeLedgerFailed)
}
