package recurrence

import (
	"sort"

	"github.com/hitoshi/clubcal/internal/model"
)

// Less は発生の開始日時テキスト（dd-mm-yyyyThh:mm）を
// 年、月、日、時分の順に部分文字列で比較する。
// 各フィールドがゼロ埋め固定幅であるため、この比較は時系列順と一致する。
func Less(a, b model.Occurrence) bool {
	return compareText(a.StartText, b.StartText) < 0
}

func compareText(a, b string) int {
	if len(a) < 16 || len(b) < 16 {
		return compareString(a, b)
	}
	for _, r := range [][2]int{{6, 10}, {3, 5}, {0, 2}, {11, 16}} {
		if c := compareString(a[r[0]:r[1]], b[r[0]:r[1]]); c != 0 {
			return c
		}
	}
	return 0
}

func compareString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Sort は発生列を開始日時の昇順に安定ソートする。
func Sort(occs []model.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		return Less(occs[i], occs[j])
	})
}

// Merge は複数グループの発生列を連結して並べ替えた新しいスライスを返す。
func Merge(lists ...[]model.Occurrence) []model.Occurrence {
	total := 0
	for _, l := range lists {
		total += len(l)
	}
	out := make([]model.Occurrence, 0, total)
	for _, l := range lists {
		out = append(out, l...)
	}
	Sort(out)
	return out
}
