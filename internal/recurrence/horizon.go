package recurrence

import (
	"fmt"
	"strings"
	"time"
)

// HorizonKind はイベント取得対象の期間種別を表す。
type HorizonKind string

const (
	HorizonAll   HorizonKind = "all"
	HorizonWeek  HorizonKind = "week"
	HorizonMonth HorizonKind = "month"
	HorizonGroup HorizonKind = "group"
)

const groupHorizonPrefix = "group:"

// Horizon は展開器に渡すイベントを選ぶ条件。
// HorizonGroupの場合のみGroupNameを持つ。
type Horizon struct {
	Kind      HorizonKind
	GroupName string
}

// ParseHorizon は "all"、"week"、"month"、"group:<name>" を解析する。
// 空文字は "all" として扱う。
func ParseHorizon(s string) (Horizon, error) {
	switch s {
	case "", string(HorizonAll):
		return Horizon{Kind: HorizonAll}, nil
	case string(HorizonWeek):
		return Horizon{Kind: HorizonWeek}, nil
	case string(HorizonMonth):
		return Horizon{Kind: HorizonMonth}, nil
	}

	if strings.HasPrefix(s, groupHorizonPrefix) {
		name := strings.TrimPrefix(s, groupHorizonPrefix)
		if name == "" {
			return Horizon{}, fmt.Errorf("horizon %q: group name is empty", s)
		}
		return Horizon{Kind: HorizonGroup, GroupName: name}, nil
	}

	return Horizon{}, fmt.Errorf("unknown horizon %q", s)
}

// String はHorizonを解析可能な文字列表現で返す。
func (h Horizon) String() string {
	if h.Kind == HorizonGroup {
		return groupHorizonPrefix + h.GroupName
	}
	return string(h.Kind)
}

// Window はプロバイダーへのイベント一覧要求に使う期間を返す。
// 上限・下限がない場合はnilを返す。
//   - all, group: 期間指定なし
//   - week: now から 7日後まで
//   - month: now から暦上の1ヶ月後まで（30日固定ではない）
func (h Horizon) Window(now time.Time) (from, to *time.Time) {
	switch h.Kind {
	case HorizonWeek:
		end := now.AddDate(0, 0, 7)
		return &now, &end
	case HorizonMonth:
		end := AddMonths(now, 1)
		return &now, &end
	default:
		return nil, nil
	}
}
