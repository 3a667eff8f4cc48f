package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/clubcal/internal/model"
)

// FakeTokenPrefix はFakeProviderが受け付けるアクセストークンの接頭辞。
// "fake:<email>" 形式のトークンはそのメールアドレスの持ち主として検証される。
const FakeTokenPrefix = "fake:"

type fakeResource struct {
	id        string
	name      string
	publicACL bool
	events    map[string]model.Event
	order     []string
}

// FakeProvider はプロセス内で完結するインメモリのカレンダープロバイダー。
// 全identityで1つのリソース空間を共有するため、あるidentityが作成したリソースを
// 別のidentityが購読できる。
type FakeProvider struct {
	mu        sync.Mutex
	resources map[string]*fakeResource
	subs      map[string][]string
	failures  map[string]error
	now       func() time.Time
}

// NewFakeProvider はFakeProviderを生成する。
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		resources: make(map[string]*fakeResource),
		subs:      make(map[string][]string),
		failures:  make(map[string]error),
		now:       time.Now,
	}
}

// FailOn は指定した操作名（"Subscribe" など）の次回以降の呼び出しでerrを返すようにする。
// errにnilを渡すと解除する。
func (f *FakeProvider) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// HasPublicACL はリソースに匿名読み取りの共有ルールが付与されているかを返す。
func (f *FakeProvider) HasPublicACL(remoteID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[remoteID]
	return ok && r.publicACL
}

// Subscribers はリソースを購読しているidentityの一覧を返す。
func (f *FakeProvider) Subscribers(remoteID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for identity, ids := range f.subs {
		if containsString(ids, remoteID) {
			out = append(out, identity)
		}
	}
	sort.Strings(out)
	return out
}

// Connect は資格情報のidentityに束縛されたハンドルを返す。
// 初回接続時にidentity自身のプライマリカレンダー（ID・名前ともにメールアドレス）を用意する。
func (f *FakeProvider) Connect(_ context.Context, cred model.Credential) (Calendar, error) {
	if cred.Email == "" || cred.AccessToken == "" {
		return nil, fmt.Errorf("connect %q: %w", cred.Email, ErrUnauthorized)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cred.Expired(f.now()) {
		return nil, fmt.Errorf("connect %q: token expired: %w", cred.Email, ErrUnauthorized)
	}
	if _, ok := f.resources[cred.Email]; !ok {
		f.resources[cred.Email] = &fakeResource{
			id:     cred.Email,
			name:   cred.Email,
			events: make(map[string]model.Event),
		}
		f.subs[cred.Email] = append([]string{cred.Email}, f.subs[cred.Email]...)
	}

	return &fakeCalendar{p: f, identity: cred.Email}, nil
}

// VerifyToken は "fake:<email>" 形式のトークンからメールアドレスを取り出す。
func (f *FakeProvider) VerifyToken(_ context.Context, accessToken string) (string, error) {
	if err := f.failure("VerifyToken"); err != nil {
		return "", err
	}
	email, ok := strings.CutPrefix(accessToken, FakeTokenPrefix)
	if !ok || !strings.Contains(email, "@") {
		return "", ErrUnauthorized
	}
	return email, nil
}

func (f *FakeProvider) failure(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type fakeCalendar struct {
	p        *FakeProvider
	identity string
}

func (c *fakeCalendar) Identity() string {
	return c.identity
}

func (c *fakeCalendar) ListSubscriptions(_ context.Context) ([]Subscription, error) {
	if err := c.p.failure("ListSubscriptions"); err != nil {
		return nil, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	ids := c.p.subs[c.identity]
	subs := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		if r, ok := c.p.resources[id]; ok {
			subs = append(subs, Subscription{Name: r.name, RemoteID: r.id})
		}
	}
	return subs, nil
}

func (c *fakeCalendar) CreateResource(_ context.Context, name string) (string, error) {
	if err := c.p.failure("CreateResource"); err != nil {
		return "", err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	id := uuid.New().String() + "@group.calendar.fake"
	c.p.resources[id] = &fakeResource{
		id:     id,
		name:   name,
		events: make(map[string]model.Event),
	}
	c.p.subs[c.identity] = append(c.p.subs[c.identity], id)
	return id, nil
}

func (c *fakeCalendar) SetDefaultReadACL(_ context.Context, remoteID string) error {
	if err := c.p.failure("SetDefaultReadACL"); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	r, ok := c.p.resources[remoteID]
	if !ok {
		return fmt.Errorf("acl %s: %w", remoteID, ErrNotFound)
	}
	r.publicACL = true
	return nil
}

func (c *fakeCalendar) Subscribe(_ context.Context, remoteID string) error {
	if err := c.p.failure("Subscribe"); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	if _, ok := c.p.resources[remoteID]; !ok {
		return fmt.Errorf("subscribe %s: %w", remoteID, ErrNotFound)
	}
	if containsString(c.p.subs[c.identity], remoteID) {
		return fmt.Errorf("subscribe %s: %w", remoteID, ErrConflict)
	}
	c.p.subs[c.identity] = append(c.p.subs[c.identity], remoteID)
	return nil
}

func (c *fakeCalendar) Unsubscribe(_ context.Context, remoteID string) error {
	if err := c.p.failure("Unsubscribe"); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	ids := c.p.subs[c.identity]
	for i, id := range ids {
		if id == remoteID {
			c.p.subs[c.identity] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unsubscribe %s: %w", remoteID, ErrNotFound)
}

func (c *fakeCalendar) ListEvents(_ context.Context, remoteID string, from, to *time.Time) ([]model.Event, error) {
	if err := c.p.failure("ListEvents"); err != nil {
		return nil, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	r, ok := c.p.resources[remoteID]
	if !ok {
		return nil, fmt.Errorf("events %s: %w", remoteID, ErrNotFound)
	}

	var events []model.Event
	for _, id := range r.order {
		ev := r.events[id]
		// 繰り返しイベントは期間内にインスタンスを持ち得るため下限では絞り込まない
		if from != nil && ev.Recurrence == nil && !ev.End.After(*from) {
			continue
		}
		if to != nil && !ev.Start.Before(*to) {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (c *fakeCalendar) GetEvent(_ context.Context, remoteID, eventID string) (*model.Event, error) {
	if err := c.p.failure("GetEvent"); err != nil {
		return nil, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	r, ok := c.p.resources[remoteID]
	if !ok {
		return nil, fmt.Errorf("event %s/%s: %w", remoteID, eventID, ErrNotFound)
	}
	ev, ok := r.events[eventID]
	if !ok {
		return nil, fmt.Errorf("event %s/%s: %w", remoteID, eventID, ErrNotFound)
	}
	return &ev, nil
}

func (c *fakeCalendar) InsertEvent(_ context.Context, remoteID string, ev *model.Event) (*model.Event, error) {
	if err := c.p.failure("InsertEvent"); err != nil {
		return nil, err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	r, ok := c.p.resources[remoteID]
	if !ok {
		return nil, fmt.Errorf("insert %s: %w", remoteID, ErrNotFound)
	}

	created := *ev
	created.ID = strings.ReplaceAll(uuid.New().String(), "-", "")
	created.GroupID = remoteID
	r.events[created.ID] = created
	r.order = append(r.order, created.ID)
	return &created, nil
}

func (c *fakeCalendar) UpdateEvent(_ context.Context, remoteID string, ev *model.Event) error {
	if err := c.p.failure("UpdateEvent"); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	r, ok := c.p.resources[remoteID]
	if !ok {
		return fmt.Errorf("update %s: %w", remoteID, ErrNotFound)
	}
	current, ok := r.events[ev.ID]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", remoteID, ev.ID, ErrNotFound)
	}
	current.Name = ev.Name
	current.Start = ev.Start
	current.End = ev.End
	r.events[ev.ID] = current
	return nil
}

func (c *fakeCalendar) DeleteEvent(_ context.Context, remoteID, eventID string) error {
	if err := c.p.failure("DeleteEvent"); err != nil {
		return err
	}
	c.p.mu.Lock()
	defer c.p.mu.Unlock()

	r, ok := c.p.resources[remoteID]
	if !ok {
		return fmt.Errorf("delete %s: %w", remoteID, ErrNotFound)
	}
	if _, ok := r.events[eventID]; !ok {
		return fmt.Errorf("delete %s/%s: %w", remoteID, eventID, ErrNotFound)
	}
	delete(r.events, eventID)
	for i, id := range r.order {
		if id == eventID {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

var (
	_ Connector     = (*FakeProvider)(nil)
	_ TokenVerifier = (*FakeProvider)(nil)
	_ Calendar      = (*fakeCalendar)(nil)
)
