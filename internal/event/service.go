// Package event はプロバイダー上のイベントの追加・編集・削除と、
// 発生への展開を伴う一覧取得を提供する。
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/provider"
	"github.com/hitoshi/clubcal/internal/recurrence"
	"github.com/hitoshi/clubcal/internal/security"
	"github.com/hitoshi/clubcal/internal/timecodec"
)

// ProductID はICSエクスポートのPRODID。
const ProductID = "-//clubcal//events//JA"

// Binder はidentityに束縛されたプロバイダーハンドルを生成する。
type Binder interface {
	Bind(ctx context.Context, email string) (provider.Calendar, error)
}

// Groups はイベント操作が必要とするグループ機能。
type Groups interface {
	DisplayName(identity, name string) string
	EnsureGroup(ctx context.Context, cal provider.Calendar, name string) (string, error)
}

// Recorder は展開した発生数のメトリクスを記録する。
type Recorder interface {
	RecordOccurrences(horizon string, count int)
}

// Input はイベント追加・編集の入力。
// 日付は dd-mm-yyyy、時刻は hh:mm 形式。
type Input struct {
	ID        string
	Name      string
	StartDate string
	StartTime string
	EndDate   string
	EndTime   string
	Group     string
}

// Service はイベント操作のサービス層。
type Service struct {
	binder    Binder
	groups    Groups
	sanitizer security.NameSanitizer
	loc       *time.Location
	recorder  Recorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// locは入力された日付・時刻を解釈するロケーションで、nilの場合はUTCとなる。
func NewService(binder Binder, groups Groups, sanitizer security.NameSanitizer, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		binder:    binder,
		groups:    groups,
		sanitizer: sanitizer,
		loc:       loc,
		now:       time.Now,
	}
}

// SetRecorder はメトリクスの記録先を設定する。
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// List はhorizonで選ばれたグループのイベントを発生に展開し、開始日時順に並べて返す。
func (s *Service) List(ctx context.Context, identity string, h recurrence.Horizon) ([]model.Occurrence, error) {
	cal, err := s.bind(ctx, identity)
	if err != nil {
		return nil, err
	}

	subs, err := cal.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("購読一覧の取得に失敗しました", "identity", identity, "error", err)
		return nil, provider.ToAPIError("list_subscriptions", err)
	}

	now := s.now()
	from, to := h.Window(now)

	lists := make([][]model.Occurrence, 0, len(subs))
	for _, sub := range subs {
		if sub.RemoteID == provider.NotFoundSentinel {
			continue
		}
		name := s.groups.DisplayName(identity, sub.Name)
		if h.Kind == recurrence.HorizonGroup && name != h.GroupName && sub.Name != h.GroupName {
			continue
		}

		events, err := cal.ListEvents(ctx, sub.RemoteID, from, to)
		if err != nil {
			slog.Error("イベント一覧の取得に失敗しました", "identity", identity, "group", name, "remote_id", sub.RemoteID, "error", err)
			return nil, provider.ToAPIError("list_events", err)
		}

		occs := make([]model.Occurrence, 0, len(events))
		for _, ev := range events {
			expanded := recurrence.Expand(ev, name, now)
			if len(expanded) == 0 && ev.Recurrence != nil {
				slog.Debug("未対応の繰り返しルールのイベントを除外しました", "identity", identity, "group", name, "event_id", ev.ID, "rrule", ev.Recurrence.Raw)
			}
			occs = append(occs, expanded...)
		}
		lists = append(lists, occs)
	}

	merged := recurrence.Merge(lists...)
	if s.recorder != nil {
		s.recorder.RecordOccurrences(string(h.Kind), len(merged))
	}
	return merged, nil
}

// Add はイベントを作成する。
// グループ名が空またはprimaryの場合はidentity自身のカレンダーに追加し、
// 購読していないグループ名の場合はidentity所有の非公開グループを作成してから追加する。
func (s *Service) Add(ctx context.Context, identity string, in Input) (*model.Event, error) {
	ev, err := s.buildEvent(in)
	if err != nil {
		return nil, err
	}

	cal, err := s.bind(ctx, identity)
	if err != nil {
		return nil, err
	}

	remoteID, err := s.resolveTarget(ctx, cal, in.Group, true)
	if err != nil {
		return nil, err
	}
	ev.GroupID = remoteID

	created, err := cal.InsertEvent(ctx, remoteID, ev)
	if err != nil {
		slog.Error("イベントの作成に失敗しました", "identity", identity, "remote_id", remoteID, "error", err)
		return nil, provider.ToAPIError("insert_event", err)
	}
	return created, nil
}

// Edit は既存イベントの開始・終了日時を更新し、名前が異なる場合は名前も変更する。
func (s *Service) Edit(ctx context.Context, identity string, in Input) error {
	if in.ID == "" {
		return model.NewInvalidRequestError("イベントIDを指定してください")
	}
	update, err := s.buildEvent(in)
	if err != nil {
		return err
	}

	cal, err := s.bind(ctx, identity)
	if err != nil {
		return err
	}
	remoteID, err := s.resolveTarget(ctx, cal, in.Group, false)
	if err != nil {
		return err
	}

	current, err := cal.GetEvent(ctx, remoteID, in.ID)
	if err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return model.NewEventNotFoundError(in.ID)
		}
		slog.Error("イベントの取得に失敗しました", "identity", identity, "remote_id", remoteID, "event_id", in.ID, "error", err)
		return provider.ToAPIError("get_event", err)
	}

	current.Start = update.Start
	current.End = update.End
	current.AllDay = false
	if current.Name != update.Name {
		current.Name = update.Name
	}

	if err := cal.UpdateEvent(ctx, remoteID, current); err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return model.NewEventNotFoundError(in.ID)
		}
		slog.Error("イベントの更新に失敗しました", "identity", identity, "remote_id", remoteID, "event_id", in.ID, "error", err)
		return provider.ToAPIError("update_event", err)
	}
	return nil
}

// Delete はイベントを削除する。
func (s *Service) Delete(ctx context.Context, identity, group, eventID string) error {
	if eventID == "" {
		return model.NewInvalidRequestError("イベントIDを指定してください")
	}
	cal, err := s.bind(ctx, identity)
	if err != nil {
		return err
	}
	remoteID, err := s.resolveTarget(ctx, cal, group, false)
	if err != nil {
		return err
	}

	if err := cal.DeleteEvent(ctx, remoteID, eventID); err != nil {
		if errors.Is(err, provider.ErrNotFound) {
			return model.NewEventNotFoundError(eventID)
		}
		slog.Error("イベントの削除に失敗しました", "identity", identity, "remote_id", remoteID, "event_id", eventID, "error", err)
		return provider.ToAPIError("delete_event", err)
	}
	return nil
}

// ExportICS はListと同じ発生列をiCalendar形式で返す。
func (s *Service) ExportICS(ctx context.Context, identity string, h recurrence.Horizon) (string, error) {
	occs, err := s.List(ctx, identity, h)
	if err != nil {
		return "", err
	}

	stamp := s.now().UTC()
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	for _, occ := range occs {
		uid := fmt.Sprintf("%s-%s@clubcal", occ.EventID, occ.Start.UTC().Format("20060102T150405Z"))
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(occ.Start)
		ve.SetEndAt(occ.End)
		ve.SetSummary(occ.Name)
		if occ.GroupName != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, occ.GroupName)
		}
	}
	return cal.Serialize(), nil
}

func (s *Service) bind(ctx context.Context, identity string) (provider.Calendar, error) {
	cal, err := s.binder.Bind(ctx, identity)
	if err != nil {
		slog.Warn("プロバイダーハンドルの生成に失敗しました", "identity", identity, "error", err)
		return nil, provider.ToAPIError("bind", err)
	}
	return cal, nil
}

// buildEvent は入力を検証し、名前と開始・終了時刻を持つイベントを組み立てる。
func (s *Service) buildEvent(in Input) (*model.Event, error) {
	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return nil, model.NewInvalidRequestError("イベント名を指定してください")
	}

	start, err := timecodec.EncodeIn(in.StartDate, in.StartTime, s.loc)
	if err != nil {
		return nil, model.NewInvalidDateTimeError(timecodec.Join(in.StartDate, in.StartTime))
	}
	end, err := timecodec.EncodeIn(in.EndDate, in.EndTime, s.loc)
	if err != nil {
		return nil, model.NewInvalidDateTimeError(timecodec.Join(in.EndDate, in.EndTime))
	}
	if end.Before(start) {
		return nil, model.NewInvalidRequestError("終了日時は開始日時以降を指定してください")
	}

	return &model.Event{Name: name, Start: start, End: end}, nil
}

// resolveTarget はグループ名をイベント操作対象のリソースIDに解決する。
// 空またはprimaryはidentity自身のカレンダーを指す。
// createがfalseで該当する購読がない場合はGROUP_NOT_FOUNDを返す。
func (s *Service) resolveTarget(ctx context.Context, cal provider.Calendar, group string, create bool) (string, error) {
	identity := cal.Identity()
	if group == "" || strings.EqualFold(group, model.PrimaryGroupName) {
		return identity, nil
	}

	subs, err := cal.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("購読一覧の取得に失敗しました", "identity", identity, "error", err)
		return "", provider.ToAPIError("list_subscriptions", err)
	}
	for _, sub := range subs {
		if sub.RemoteID == provider.NotFoundSentinel {
			continue
		}
		if sub.Name == group || s.groups.DisplayName(identity, sub.Name) == group {
			return sub.RemoteID, nil
		}
	}

	if !create {
		return "", model.NewGroupNotFoundError(group)
	}
	return s.groups.EnsureGroup(ctx, cal, group)
}
