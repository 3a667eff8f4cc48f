package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/repository"
)

type testEnv struct {
	fake        *provider.FakeProvider
	groups      *repository.MemoryGroupRepo
	memberships *repository.MemoryMembershipRepo
	creds       *repository.MemoryCredentialRepo
	coord       *Coordinator
}

func newTestEnv(t *testing.T, identities ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		fake:        provider.NewFakeProvider(),
		groups:      repository.NewMemoryGroupRepo(),
		memberships: repository.NewMemoryMembershipRepo(),
		creds:       repository.NewMemoryCredentialRepo(),
	}
	ctx := context.Background()
	for _, email := range identities {
		env.creds.Upsert(ctx, &model.Credential{Email: email, AccessToken: provider.FakeTokenPrefix + email})
	}
	env.coord = NewCoordinator(env.groups, env.memberships, provider.NewSessionBinder(env.creds, env.fake))
	return env
}

// createGroup は所有者のカレンダーにリソースを作成し、台帳に所有者のメンバーシップとともに登録する。
func (e *testEnv) createGroup(t *testing.T, owner, name string) string {
	t.Helper()
	ctx := context.Background()
	cal, err := e.fake.Connect(ctx, model.Credential{Email: owner, AccessToken: "tok"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	id, err := cal.CreateResource(ctx, name)
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	e.groups.Create(ctx, &model.Group{Name: name, RemoteID: id, OwnerEmail: owner, CreatedAt: time.Now()})
	e.memberships.Create(ctx, &model.Membership{MemberEmail: owner, GroupName: name, RemoteID: id})
	return id
}

type mockRecorder struct {
	actions []string
}

func (m *mockRecorder) RecordMembershipChange(action string) { m.actions = append(m.actions, action) }

func TestCoordinator_JoinPublic_Idempotent(t *testing.T) {
	env := newTestEnv(t, "alice@example.com", "bob@example.com")
	id := env.createGroup(t, "alice@example.com", "Chess")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.coord.JoinPublic(ctx, "bob@example.com", Target{Name: "Chess", RemoteID: id}); err != nil {
			t.Fatalf("JoinPublic #%d returned error: %v", i+1, err)
		}
	}

	members, _ := env.memberships.ListMembers(ctx, id)
	if len(members) != 2 {
		t.Errorf("members = %v, want alice and bob", members)
	}
	if subs := env.fake.Subscribers(id); len(subs) != 2 {
		t.Errorf("provider subscribers = %v", subs)
	}
}

func TestCoordinator_JoinPublic_UnknownResource(t *testing.T) {
	env := newTestEnv(t, "bob@example.com")

	err := env.coord.JoinPublic(context.Background(), "bob@example.com", Target{Name: "Ghost", RemoteID: "missing"})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeProviderFailed {
		t.Fatalf("expected PROVIDER_FAILED, got %v", err)
	}
	if exists, _ := env.memberships.Exists(context.Background(), "bob@example.com", "Ghost"); exists {
		t.Error("membership must not be created when the provider rejects the subscription")
	}
}

func TestCoordinator_JoinPublic_SentinelID(t *testing.T) {
	env := newTestEnv(t, "bob@example.com")

	err := env.coord.JoinPublic(context.Background(), "bob@example.com", Target{Name: "Chess", RemoteID: provider.NotFoundSentinel})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeGroupNotFound {
		t.Fatalf("expected GROUP_NOT_FOUND, got %v", err)
	}
}

// TestCoordinator_Invite は招待先自身の資格情報で購読されることを検証する。
func TestCoordinator_Invite(t *testing.T) {
	env := newTestEnv(t, "alice@example.com", "carol@example.com")
	id := env.createGroup(t, "alice@example.com", "Chess")
	rec := &mockRecorder{}
	env.coord.SetRecorder(rec)
	ctx := context.Background()

	if err := env.coord.Invite(ctx, "alice@example.com", "carol@example.com", id); err != nil {
		t.Fatalf("Invite returned error: %v", err)
	}

	if exists, _ := env.memberships.Exists(ctx, "carol@example.com", "Chess"); !exists {
		t.Error("expected invitee membership")
	}
	subs := env.fake.Subscribers(id)
	if len(subs) != 2 || subs[1] != "carol@example.com" {
		t.Errorf("provider subscribers = %v", subs)
	}
	if len(rec.actions) != 1 || rec.actions[0] != "invite" {
		t.Errorf("recorded actions = %v", rec.actions)
	}
}

func TestCoordinator_Invite_Errors(t *testing.T) {
	env := newTestEnv(t, "alice@example.com", "mallory@example.com")
	id := env.createGroup(t, "alice@example.com", "Chess")
	ctx := context.Background()

	tests := []struct {
		name     string
		inviter  string
		invitee  string
		remoteID string
		wantCode string
	}{
		{"unknown group", "alice@example.com", "mallory@example.com", "missing", model.ErrCodeGroupNotFound},
		{"inviter not a member", "mallory@example.com", "alice@example.com", id, model.ErrCodeNotGroupMember},
		{"invitee without credential", "alice@example.com", "nobody@example.com", id, model.ErrCodeCredentialNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.coord.Invite(ctx, tt.inviter, tt.invitee, tt.remoteID)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != tt.wantCode {
				t.Errorf("expected %s, got %v", tt.wantCode, err)
			}
		})
	}
}

// TestCoordinator_Leave_OwnerCascade は所有者の脱退で全メンバーの購読とメンバーシップ、グループが削除されることを検証する。
func TestCoordinator_Leave_OwnerCascade(t *testing.T) {
	env := newTestEnv(t, "alice@example.com", "bob@example.com", "carol@example.com")
	id := env.createGroup(t, "alice@example.com", "Chess")
	ctx := context.Background()

	for _, m := range []string{"bob@example.com", "carol@example.com"} {
		if err := env.coord.JoinPublic(ctx, m, Target{RemoteID: id}); err != nil {
			t.Fatalf("JoinPublic(%s): %v", m, err)
		}
	}

	result, err := env.coord.Leave(ctx, "alice@example.com", Target{Name: "Chess", RemoteID: id})
	if err != nil {
		t.Fatalf("Leave returned error: %v", err)
	}
	if !result.OwnerCascade || len(result.Removed) != 3 {
		t.Errorf("result = %+v, want cascade over 3 members", result)
	}

	if members, _ := env.memberships.ListMembers(ctx, id); len(members) != 0 {
		t.Errorf("memberships left = %v", members)
	}
	if subs := env.fake.Subscribers(id); len(subs) != 0 {
		t.Errorf("provider subscribers left = %v", subs)
	}
	if g, _ := env.groups.FindByRemoteID(ctx, id); g != nil {
		t.Error("group row should be deleted")
	}
}

// TestCoordinator_Leave_NonOwner は非所有者の脱退で本人のメンバーシップのみが削除されることを検証する。
func TestCoordinator_Leave_NonOwner(t *testing.T) {
	env := newTestEnv(t, "alice@example.com", "bob@example.com", "carol@example.com")
	id := env.createGroup(t, "alice@example.com", "Chess")
	ctx := context.Background()

	for _, m := range []string{"bob@example.com", "carol@example.com"} {
		env.coord.JoinPublic(ctx, m, Target{RemoteID: id})
	}

	result, err := env.coord.Leave(ctx, "bob@example.com", Target{RemoteID: id})
	if err != nil {
		t.Fatalf("Leave returned error: %v", err)
	}
	if result.OwnerCascade {
		t.Error("non-owner leave must not cascade")
	}

	members, _ := env.memberships.ListMembers(ctx, id)
	if len(members) != 2 || members[0] != "alice@example.com" || members[1] != "carol@example.com" {
		t.Errorf("members = %v, want alice and carol", members)
	}
	g, _ := env.groups.FindByRemoteID(ctx, id)
	if g == nil || g.OwnerEmail != "alice@example.com" {
		t.Errorf("group = %+v, ownership must be unchanged", g)
	}
}

func TestCoordinator_Leave_ProviderFailureAborts(t *testing.T) {
	env := newTestEnv(t, "alice@example.com", "bob@example.com")
	id := env.createGroup(t, "alice@example.com", "Chess")
	ctx := context.Background()
	env.coord.JoinPublic(ctx, "bob@example.com", Target{RemoteID: id})

	env.fake.FailOn("Unsubscribe", errors.New("boom"))
	_, err := env.coord.Leave(ctx, "alice@example.com", Target{RemoteID: id})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if g, _ := env.groups.FindByRemoteID(ctx, id); g == nil {
		t.Error("group row must remain when the cascade aborts")
	}
}

// failingMembershipRepo はCreateだけを失敗させる台帳。
type failingMembershipRepo struct {
	*repository.MemoryMembershipRepo
	createErr error
}

func (r *failingMembershipRepo) Create(ctx context.Context, m *model.Membership) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryMembershipRepo.Create(ctx, m)
}

// TestCoordinator_LedgerFailureKeepsSubscription は購読成功後に台帳登録が失敗した場合、
// LEDGER_FAILEDで中断し、プロバイダー側の購読は巻き戻されないことを検証する。
func TestCoordinator_LedgerFailureKeepsSubscription(t *testing.T) {
	tests := []struct {
		name    string
		operate func(ctx context.Context, c *Coordinator, remoteID string) error
		member  string
	}{
		{
			name: "join",
			operate: func(ctx context.Context, c *Coordinator, remoteID string) error {
				return c.JoinPublic(ctx, "bob@example.com", Target{Name: "Chess", RemoteID: remoteID})
			},
			member: "bob@example.com",
		},
		{
			name: "invite",
			operate: func(ctx context.Context, c *Coordinator, remoteID string) error {
				return c.Invite(ctx, "alice@example.com", "carol@example.com", remoteID)
			},
			member: "carol@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "alice@example.com", "bob@example.com", "carol@example.com")
			id := env.createGroup(t, "alice@example.com", "Chess")
			repo := &failingMembershipRepo{MemoryMembershipRepo: env.memberships, createErr: errors.New("db down")}
			coord := NewCoordinator(env.groups, repo, provider.NewSessionBinder(env.creds, env.fake))
			ctx := context.Background()

			err := tt.operate(ctx, coord, id)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLedgerFailed {
				t.Fatalf("expected LEDGER_FAILED, got %v", err)
			}

			if exists, _ := env.memberships.Exists(ctx, tt.member, "Chess"); exists {
				t.Error("membership row must not exist after the ledger failure")
			}
			subscribed := false
			for _, s := range env.fake.Subscribers(id) {
				if s == tt.member {
					subscribed = true
				}
			}
			if !subscribed {
				t.Errorf("provider subscribers = %v, want %s to stay subscribed", env.fake.Subscribers(id), tt.member)
			}

			// 台帳が復旧すれば、既存の購読を成功として扱い行を1件だけ登録する
			repo.createErr = nil
			if err := tt.operate(ctx, coord, id); err != nil {
				t.Fatalf("retry returned error: %v", err)
			}
			members, _ := env.memberships.ListMembers(ctx, id)
			if len(members) != 2 {
				t.Errorf("members = %v, want owner and %s", members, tt.member)
			}
		})
	}
}
