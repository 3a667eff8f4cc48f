package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/recurrence"
)

// GoogleConfig はGoogle Calendar API接続の設定。
type GoogleConfig struct {
	// Timeout は1回のAPI呼び出しの上限時間。0以下の場合は制限しない。
	Timeout time.Duration

	// テスト用にオーバーライド可能なエンドポイント
	Endpoint string
}

// GoogleConnector はGoogle Calendar APIのハンドルを生成する。
type GoogleConnector struct {
	config GoogleConfig
}

// NewGoogleConnector はGoogleConnectorを生成する。
func NewGoogleConnector(config GoogleConfig) *GoogleConnector {
	return &GoogleConnector{config: config}
}

// Connect はアクセストークンを固定のトークンソースとして持つCalendarハンドルを生成する。
func (c *GoogleConnector) Connect(ctx context.Context, cred model.Credential) (Calendar, error) {
	if cred.AccessToken == "" {
		return nil, fmt.Errorf("connect %s: %w", cred.Email, ErrUnauthorized)
	}

	token := &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.Expiry,
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.config.Endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &googleCalendar{
		svc:      svc,
		identity: cred.Email,
		timeout:  c.config.Timeout,
	}, nil
}

// googleCalendar はGoogle Calendar APIによるCalendar実装。
type googleCalendar struct {
	svc      *calendar.Service
	identity string
	timeout  time.Duration
}

func (g *googleCalendar) Identity() string {
	return g.identity
}

func (g *googleCalendar) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *googleCalendar) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	var subs []Subscription
	err := g.svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *calendar.CalendarList) error {
		for _, item := range page.Items {
			subs = append(subs, Subscription{Name: item.Summary, RemoteID: item.Id})
		}
		return nil
	})
	if err != nil {
		return nil, classify("calendarList.list", err)
	}
	return subs, nil
}

func (g *googleCalendar) CreateResource(ctx context.Context, name string) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	cal, err := g.svc.Calendars.Insert(&calendar.Calendar{Summary: name}).Context(ctx).Do()
	if err != nil {
		return "", classify("calendars.insert", err)
	}
	return cal.Id, nil
}

func (g *googleCalendar) SetDefaultReadACL(ctx context.Context, remoteID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	rule := &calendar.AclRule{
		Role:  "reader",
		Scope: &calendar.AclRuleScope{Type: "default"},
	}
	if _, err := g.svc.Acl.Insert(remoteID, rule).Context(ctx).Do(); err != nil {
		return classify("acl.insert", err)
	}
	return nil
}

func (g *googleCalendar) Subscribe(ctx context.Context, remoteID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if _, err := g.svc.CalendarList.Insert(&calendar.CalendarListEntry{Id: remoteID}).Context(ctx).Do(); err != nil {
		return classify("calendarList.insert", err)
	}
	return nil
}

func (g *googleCalendar) Unsubscribe(ctx context.Context, remoteID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.svc.CalendarList.Delete(remoteID).Context(ctx).Do(); err != nil {
		return classify("calendarList.delete", err)
	}
	return nil
}

func (g *googleCalendar) ListEvents(ctx context.Context, remoteID string, from, to *time.Time) ([]model.Event, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	call := g.svc.Events.List(remoteID).Context(ctx)
	if from != nil {
		call = call.TimeMin(from.Format(time.RFC3339))
	}
	if to != nil {
		call = call.TimeMax(to.Format(time.RFC3339))
	}

	var events []model.Event
	err := call.Pages(ctx, func(page *calendar.Events) error {
		for _, item := range page.Items {
			ev, err := toModelEvent(remoteID, item)
			if err != nil {
				return err
			}
			events = append(events, *ev)
		}
		return nil
	})
	if err != nil {
		return nil, classify("events.list", err)
	}
	return events, nil
}

func (g *googleCalendar) GetEvent(ctx context.Context, remoteID, eventID string) (*model.Event, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	item, err := g.svc.Events.Get(remoteID, eventID).Context(ctx).Do()
	if err != nil {
		return nil, classify("events.get", err)
	}
	return toModelEvent(remoteID, item)
}

func (g *googleCalendar) InsertEvent(ctx context.Context, remoteID string, ev *model.Event) (*model.Event, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	item := &calendar.Event{
		Summary: ev.Name,
		Start:   toEventDateTime(ev.Start),
		End:     toEventDateTime(ev.End),
	}
	if ev.Recurrence != nil && ev.Recurrence.Raw != "" {
		item.Recurrence = []string{ev.Recurrence.Raw}
	}

	created, err := g.svc.Events.Insert(remoteID, item).Context(ctx).Do()
	if err != nil {
		return nil, classify("events.insert", err)
	}
	return toModelEvent(remoteID, created)
}

// UpdateEvent は名前と開始・終了時刻のみを部分更新する。繰り返し定義などは保持される。
func (g *googleCalendar) UpdateEvent(ctx context.Context, remoteID string, ev *model.Event) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	patch := &calendar.Event{
		Summary: ev.Name,
		Start:   toEventDateTime(ev.Start),
		End:     toEventDateTime(ev.End),
	}
	if _, err := g.svc.Events.Patch(remoteID, ev.ID, patch).Context(ctx).Do(); err != nil {
		return classify("events.patch", err)
	}
	return nil
}

func (g *googleCalendar) DeleteEvent(ctx context.Context, remoteID, eventID string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.svc.Events.Delete(remoteID, eventID).Context(ctx).Do(); err != nil {
		return classify("events.delete", err)
	}
	return nil
}

// toEventDateTime はtime.TimeをAPIの日時表現に変換する。
// IANA名を持つロケーションの場合は繰り返し展開のためにタイムゾーン名も付与する。
func toEventDateTime(t time.Time) *calendar.EventDateTime {
	edt := &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); strings.Contains(name, "/") {
		edt.TimeZone = name
	}
	return edt
}

// toModelEvent はAPIのイベントをドメインのイベントに変換する。
// 日付のみのイベントは終日イベントとして扱う。
func toModelEvent(remoteID string, item *calendar.Event) (*model.Event, error) {
	ev := &model.Event{
		ID:         item.Id,
		Name:       item.Summary,
		GroupID:    remoteID,
		Recurrence: recurrence.ParseRule(item.Recurrence),
	}

	start, allDay, err := parseEventDateTime(item.Start)
	if err != nil {
		return nil, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	end, _, err := parseEventDateTime(item.End)
	if err != nil {
		return nil, fmt.Errorf("event %s end: %w", item.Id, err)
	}

	ev.Start = start
	ev.End = end
	ev.AllDay = allDay
	return ev, nil
}

func parseEventDateTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing date/time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		return t, false, err
	}
	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		return t, true, err
	}
	return time.Time{}, false, errors.New("empty date/time")
}

// classify はAPIエラーをパッケージのエラー種別に分類する。
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
		case http.StatusConflict:
			return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// compile-time interface check
var (
	_ Connector = (*GoogleConnector)(nil)
	_ Calendar  = (*googleCalendar)(nil)
)
