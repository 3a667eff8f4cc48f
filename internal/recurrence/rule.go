// Package recurrence は保存されたイベント（繰り返しを含む）を
// 有限個の発生（Occurrence）列に展開し、時系列順に並べ替える。
package recurrence

import (
	"strings"

	"github.com/teambition/rrule-go"

	"github.com/hitoshi/clubcal/internal/model"
)

const rrulePrefix = "RRULE:"

// ParseRule はプロバイダーが返す繰り返し定義行（RRULE/EXRULE/RDATE/EXDATE）から
// 繰り返しルールを取り出す。繰り返し定義がない場合はnilを返す。
// 週次・月次・年次以外の頻度は、展開時に0件となる頻度として保持する。
func ParseRule(lines []string) *model.RecurrenceRule {
	if len(lines) == 0 {
		return nil
	}

	raw := lines[0]
	for _, line := range lines {
		if strings.HasPrefix(strings.ToUpper(line), rrulePrefix) {
			raw = line
			break
		}
	}

	return &model.RecurrenceRule{
		Frequency: frequencyOf(raw),
		Raw:       raw,
	}
}

// frequencyOf はRRULE文字列の頻度を判定する。
// rrule-goで解析できない行はキーワードの包含で判定する。
func frequencyOf(raw string) model.Frequency {
	body := raw
	if strings.HasPrefix(strings.ToUpper(body), rrulePrefix) {
		body = body[len(rrulePrefix):]
	}

	opt, err := rrule.StrToROption(body)
	if err == nil {
		switch opt.Freq {
		case rrule.WEEKLY:
			return model.FrequencyWeekly
		case rrule.MONTHLY:
			return model.FrequencyMonthly
		case rrule.YEARLY:
			return model.FrequencyYearly
		case rrule.DAILY:
			return model.Frequency("daily")
		case rrule.HOURLY:
			return model.Frequency("hourly")
		default:
			return model.Frequency("unsupported")
		}
	}

	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "WEEKLY"):
		return model.FrequencyWeekly
	case strings.Contains(upper, "MONTHLY"):
		return model.FrequencyMonthly
	case strings.Contains(upper, "YEARLY"):
		return model.FrequencyYearly
	default:
		return model.Frequency("")
	}
}
