package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/clubcal/internal/model"
)

// MemoryGroupRepo はプロセス内で完結するGroupRepository実装。
// FakeProviderと組み合わせてデータベースなしでサービス層を動かすために使う。
type MemoryGroupRepo struct {
	mu     sync.Mutex
	groups []*model.Group
}

// NewMemoryGroupRepo はMemoryGroupRepoを生成する。
func NewMemoryGroupRepo() *MemoryGroupRepo {
	return &MemoryGroupRepo{}
}

func (r *MemoryGroupRepo) Exists(_ context.Context, remoteID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(remoteID) != nil, nil
}

func (r *MemoryGroupRepo) Create(_ context.Context, group *model.Group) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(group.RemoteID) != nil {
		return ErrDuplicate
	}
	g := *group
	r.groups = append(r.groups, &g)
	return nil
}

func (r *MemoryGroupRepo) FindByRemoteID(_ context.Context, remoteID string) (*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g := r.find(remoteID); g != nil {
		cp := *g
		return &cp, nil
	}
	return nil, nil
}

func (r *MemoryGroupRepo) OwnerOf(_ context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.groups {
		if g.Name == name {
			return g.OwnerEmail, nil
		}
	}
	return "", nil
}

func (r *MemoryGroupRepo) ListPublic(_ context.Context) ([]*model.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Group
	for _, g := range r.groups {
		if !g.IsPrivate {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryGroupRepo) DeleteByOwnerAndName(_ context.Context, owner, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.groups[:0]
	for _, g := range r.groups {
		if g.OwnerEmail == owner && g.Name == name {
			continue
		}
		kept = append(kept, g)
	}
	r.groups = kept
	return nil
}

// Count は登録済みグループ数を返す。
func (r *MemoryGroupRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}

func (r *MemoryGroupRepo) find(remoteID string) *model.Group {
	for _, g := range r.groups {
		if g.RemoteID == remoteID {
			return g
		}
	}
	return nil
}

// MemoryMembershipRepo はプロセス内で完結するMembershipRepository実装。
type MemoryMembershipRepo struct {
	mu      sync.Mutex
	members []*model.Membership
}

// NewMemoryMembershipRepo はMemoryMembershipRepoを生成する。
func NewMemoryMembershipRepo() *MemoryMembershipRepo {
	return &MemoryMembershipRepo{}
}

func (r *MemoryMembershipRepo) Exists(_ context.Context, email, groupName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index(email, groupName) >= 0, nil
}

func (r *MemoryMembershipRepo) Create(_ context.Context, m *model.Membership) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index(m.MemberEmail, m.GroupName) >= 0 {
		return nil
	}
	cp := *m
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	r.members = append(r.members, &cp)
	return nil
}

func (r *MemoryMembershipRepo) Delete(_ context.Context, email, groupName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(email, groupName); i >= 0 {
		r.members = append(r.members[:i], r.members[i+1:]...)
	}
	return nil
}

func (r *MemoryMembershipRepo) ListMembers(_ context.Context, remoteID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, m := range r.members {
		if m.RemoteID == remoteID && !seen[m.MemberEmail] {
			seen[m.MemberEmail] = true
			out = append(out, m.MemberEmail)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *MemoryMembershipRepo) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.members[:0]
	for _, m := range r.members {
		if m.MemberEmail != email {
			kept = append(kept, m)
		}
	}
	r.members = kept
	return nil
}

func (r *MemoryMembershipRepo) index(email, groupName string) int {
	for i, m := range r.members {
		if m.MemberEmail == email && m.GroupName == groupName {
			return i
		}
	}
	return -1
}

// MemoryCredentialRepo はプロセス内で完結するCredentialRepository実装。
type MemoryCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]model.Credential
}

// NewMemoryCredentialRepo はMemoryCredentialRepoを生成する。
func NewMemoryCredentialRepo() *MemoryCredentialRepo {
	return &MemoryCredentialRepo{creds: make(map[string]model.Credential)}
}

func (r *MemoryCredentialRepo) Find(_ context.Context, email string) (*model.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[email]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *MemoryCredentialRepo) Upsert(_ context.Context, cred *model.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds[cred.Email] = *cred
	return nil
}

func (r *MemoryCredentialRepo) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.creds, email)
	return nil
}

func (r *MemoryCredentialRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for email, c := range r.creds {
		if c.Expired(before) {
			delete(r.creds, email)
			n++
		}
	}
	return n, nil
}

var (
	_ GroupRepository      = (*MemoryGroupRepo)(nil)
	_ MembershipRepository = (*MemoryMembershipRepo)(nil)
	_ CredentialRepository = (*MemoryCredentialRepo)(nil)
)
