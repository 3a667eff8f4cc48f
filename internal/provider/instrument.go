package provider

import (
	"context"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
)

// Recorder はプロバイダー呼び出しの結果を記録する。
type Recorder interface {
	RecordProviderCall(op string, duration time.Duration, err error)
}

// Instrument はConnectorが生成するすべてのハンドルの呼び出しをRecorderに記録させる。
func Instrument(next Connector, rec Recorder) Connector {
	if rec == nil {
		return next
	}
	return &instrumentedConnector{next: next, rec: rec}
}

type instrumentedConnector struct {
	next Connector
	rec  Recorder
}

func (c *instrumentedConnector) Connect(ctx context.Context, cred model.Credential) (Calendar, error) {
	cal, err := c.next.Connect(ctx, cred)
	if err != nil {
		return nil, err
	}
	return &instrumentedCalendar{next: cal, rec: c.rec}, nil
}

type instrumentedCalendar struct {
	next Calendar
	rec  Recorder
}

func (c *instrumentedCalendar) observe(op string, start time.Time, err error) {
	c.rec.RecordProviderCall(op, time.Since(start), err)
}

func (c *instrumentedCalendar) Identity() string {
	return c.next.Identity()
}

func (c *instrumentedCalendar) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	start := time.Now()
	subs, err := c.next.ListSubscriptions(ctx)
	c.observe("list_subscriptions", start, err)
	return subs, err
}

func (c *instrumentedCalendar) CreateResource(ctx context.Context, name string) (string, error) {
	start := time.Now()
	id, err := c.next.CreateResource(ctx, name)
	c.observe("create_resource", start, err)
	return id, err
}

func (c *instrumentedCalendar) SetDefaultReadACL(ctx context.Context, remoteID string) error {
	start := time.Now()
	err := c.next.SetDefaultReadACL(ctx, remoteID)
	c.observe("set_acl", start, err)
	return err
}

func (c *instrumentedCalendar) Subscribe(ctx context.Context, remoteID string) error {
	start := time.Now()
	err := c.next.Subscribe(ctx, remoteID)
	c.observe("subscribe", start, err)
	return err
}

func (c *instrumentedCalendar) Unsubscribe(ctx context.Context, remoteID string) error {
	start := time.Now()
	err := c.next.Unsubscribe(ctx, remoteID)
	c.observe("unsubscribe", start, err)
	return err
}

func (c *instrumentedCalendar) ListEvents(ctx context.Context, remoteID string, from, to *time.Time) ([]model.Event, error) {
	start := time.Now()
	events, err := c.next.ListEvents(ctx, remoteID, from, to)
	c.observe("list_events", start, err)
	return events, err
}

func (c *instrumentedCalendar) GetEvent(ctx context.Context, remoteID, eventID string) (*model.Event, error) {
	start := time.Now()
	ev, err := c.next.GetEvent(ctx, remoteID, eventID)
	c.observe("get_event", start, err)
	return ev, err
}

func (c *instrumentedCalendar) InsertEvent(ctx context.Context, remoteID string, ev *model.Event) (*model.Event, error) {
	start := time.Now()
	created, err := c.next.InsertEvent(ctx, remoteID, ev)
	c.observe("insert_event", start, err)
	return created, err
}

func (c *instrumentedCalendar) UpdateEvent(ctx context.Context, remoteID string, ev *model.Event) error {
	start := time.Now()
	err := c.next.UpdateEvent(ctx, remoteID, ev)
	c.observe("update_event", start, err)
	return err
}

func (c *instrumentedCalendar) DeleteEvent(ctx context.Context, remoteID, eventID string) error {
	start := time.Now()
	err := c.next.DeleteEvent(ctx, remoteID, eventID)
	c.observe("delete_event", start, err)
	return err
}
