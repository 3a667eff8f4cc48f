package model

import "time"

// Frequency はイベントの繰り返し頻度を表す。
type Frequency string

const (
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// RecurrenceRule はイベントの繰り返しルール。
// Rawにはプロバイダーから取得した元のRRULE文字列を保持する。
// Frequencyが未対応の値の場合、展開結果は0件となる。
type RecurrenceRule struct {
	Frequency Frequency
	Raw       string
}

// Event はプロバイダーに保存されているイベントを表す。
// イベントはローカル台帳には複製されない。
type Event struct {
	ID      string
	Name    string
	GroupID string

	// Start/Endはプロバイダーが返したオフセット付きの時刻。
	Start time.Time
	End   time.Time

	// AllDay は日付のみ（時刻なし）のイベントであることを示す。
	AllDay bool

	Recurrence *RecurrenceRule
}

// Occurrence はイベントの具体的な1回分の発生を表す。
// 読み取り時に都度計算され、永続化されない。
// StartText/EndTextは "dd-mm-yyyyThh:mm" 形式のゼロ埋め固定幅文字列。
type Occurrence struct {
	EventID   string
	Name      string
	GroupID   string
	GroupName string
	Start     time.Time
	End       time.Time
	StartText string
	EndText   string
}
