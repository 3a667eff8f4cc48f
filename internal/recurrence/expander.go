package recurrence

import (
	"time"

	"github.com/hitoshi/clubcal/internal/model"
	"github.com/hitoshi/clubcal/internal/timecodec"
)

// 頻度ごとに生成する将来の発生数。
// 年次の12件は月次と同じ件数をそのまま引き継いでいる。
const (
	WeeklyCount  = 52
	MonthlyCount = 12
	YearlyCount  = 12
)

// Expand は1件のイベントを発生列に展開する。
//
// 繰り返しなしのイベントは、開始オフセットを用いてTimeCodecでデコードした1件を返す。
// 繰り返しイベントは、開始が now より前である間は1周期ずつ進めて現在に追いつかせ、
// そこから頻度ごとの固定件数を1周期間隔で生成する。
// 未対応の頻度のイベントは0件を返す。
func Expand(ev model.Event, groupName string, now time.Time) []model.Occurrence {
	if ev.Recurrence == nil {
		occ, ok := single(ev, groupName)
		if !ok {
			return nil
		}
		return []model.Occurrence{occ}
	}

	step, count, ok := periodOf(ev.Recurrence.Frequency)
	if !ok {
		return nil
	}

	start, end := ev.Start, ev.End
	for start.Before(now) {
		start, end = step(start), step(end)
	}

	out := make([]model.Occurrence, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, model.Occurrence{
			EventID:   ev.ID,
			Name:      ev.Name,
			GroupID:   ev.GroupID,
			GroupName: groupName,
			Start:     start,
			End:       end,
			StartText: timecodec.Format(start),
			EndText:   timecodec.Format(end),
		})
		start, end = step(start), step(end)
	}
	return out
}

// single は繰り返しなしのイベントを1件の発生に変換する。
// 終日イベントは開始日の 00:00 を開始・終了の両方に用いる。
// 時刻付きイベントは開始時刻のオフセットを開始・終了の両方に適用する。
func single(ev model.Event, groupName string) (model.Occurrence, bool) {
	var startText, endText string

	if ev.AllDay {
		date, clock, err := timecodec.Decode(ev.Start.Format("2006-01-02"), 0)
		if err != nil {
			return model.Occurrence{}, false
		}
		startText = timecodec.Join(date, clock)
		endText = startText
	} else {
		offset := timecodec.OffsetMinutes(ev.Start)
		sd, sc, err := timecodec.Decode(ev.Start.Format(time.RFC3339), offset)
		if err != nil {
			return model.Occurrence{}, false
		}
		ed, ec, err := timecodec.Decode(ev.End.Format(time.RFC3339), offset)
		if err != nil {
			return model.Occurrence{}, false
		}
		startText = timecodec.Join(sd, sc)
		endText = timecodec.Join(ed, ec)
	}

	return model.Occurrence{
		EventID:   ev.ID,
		Name:      ev.Name,
		GroupID:   ev.GroupID,
		GroupName: groupName,
		Start:     ev.Start,
		End:       ev.End,
		StartText: startText,
		EndText:   endText,
	}, true
}

// periodOf は頻度に対応する1周期の加算関数と生成件数を返す。
func periodOf(freq model.Frequency) (func(time.Time) time.Time, int, bool) {
	switch freq {
	case model.FrequencyWeekly:
		return func(t time.Time) time.Time { return t.AddDate(0, 0, 7) }, WeeklyCount, true
	case model.FrequencyMonthly:
		return func(t time.Time) time.Time { return AddMonths(t, 1) }, MonthlyCount, true
	case model.FrequencyYearly:
		return func(t time.Time) time.Time { return AddMonths(t, 12) }, YearlyCount, true
	default:
		return nil, 0, false
	}
}

// AddMonths はtにnヶ月を加算する。
// 加算先の月に同じ日が存在しない場合は月末日に丸める（1月31日 + 1ヶ月 = 2月28日または29日）。
// time.AddDateのような翌月への繰り越しは行わない。
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
