// Package timecodec はアプリケーションのコンパクトな日付・時刻テキストと
// プロバイダーのオフセット付きタイムスタンプ表現を相互変換する。
//
// アプリケーション側の形式:
//   - 日付: dd-mm-yyyy
//   - 時刻: hh:mm
//   - 日時: dd-mm-yyyyThh:mm
//
// いずれもゼロ埋めの固定幅で、部分文字列の辞書順比較が時系列順と一致する。
package timecodec

import (
	"fmt"
	"time"
)

const (
	// DateLayout はアプリケーションの日付形式。
	DateLayout = "02-01-2006"
	// TimeLayout はアプリケーションの時刻形式。
	TimeLayout = "15:04"
	// CompactLayout はアプリケーションの日時形式。
	CompactLayout = DateLayout + "T" + TimeLayout
	// ZonedLayout はEncodeが返すプロバイダー向けの日時形式（オフセットなし）。
	ZonedLayout = "2006-01-02T15:04:05"
)

// Encode は dd-mm-yyyy と hh:mm をプロバイダーの yyyy-mm-ddThh:mm:00 形式に並べ替える。
func Encode(date, clock string) (string, error) {
	if !validDate(date) {
		return "", fmt.Errorf("invalid date %q: want dd-mm-yyyy", date)
	}
	if !validClock(clock) {
		return "", fmt.Errorf("invalid time %q: want hh:mm", clock)
	}
	return date[6:10] + date[2:6] + date[0:2] + "T" + clock + ":00", nil
}

// EncodeIn はEncodeの結果を指定ロケーションの壁時計時刻として解釈したtime.Timeを返す。
func EncodeIn(date, clock string, loc *time.Location) (time.Time, error) {
	zoned, err := Encode(date, clock)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(ZonedLayout, zoned, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q: %w", zoned, err)
	}
	return t, nil
}

// Decode はプロバイダーのタイムスタンプ文字列から日付と時刻を取り出す。
// 時・分には offsetMinutes を符号反転して加算する。
// 日付のみ（yyyy-mm-dd）の場合は 00:00 として扱う。
// 加算で日付をまたぐ場合は日付も繰り上げ・繰り下げる。
func Decode(ts string, offsetMinutes int) (date, clock string, err error) {
	if len(ts) < 16 {
		ts += "T00:00"
	}
	if len(ts) < 16 || ts[4] != '-' || ts[7] != '-' || ts[13] != ':' {
		return "", "", fmt.Errorf("invalid timestamp %q", ts)
	}
	wall, err := time.Parse("2006-01-02T15:04", ts[:16])
	if err != nil {
		return "", "", fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	shifted := wall.Add(-time.Duration(offsetMinutes) * time.Minute)
	return shifted.Format(DateLayout), shifted.Format(TimeLayout), nil
}

// Format はtime.Timeの壁時計時刻を dd-mm-yyyyThh:mm 形式で返す。
func Format(t time.Time) string {
	return t.Format(CompactLayout)
}

// Join は日付と時刻を dd-mm-yyyyThh:mm 形式に結合する。
func Join(date, clock string) string {
	return date + "T" + clock
}

// OffsetMinutes はtime.Timeのタイムゾーンオフセットを分単位で返す。
func OffsetMinutes(t time.Time) int {
	_, offset := t.Zone()
	return offset / 60
}

// ValidDate は dd-mm-yyyy 形式の実在する日付かを返す。
func ValidDate(date string) bool {
	return validDate(date)
}

// ValidClock は hh:mm 形式の時刻かを返す。
func ValidClock(clock string) bool {
	return validClock(clock)
}

func validDate(date string) bool {
	if len(date) != 10 || date[2] != '-' || date[5] != '-' {
		return false
	}
	_, err := time.Parse(DateLayout, date)
	return err == nil
}

func validClock(clock string) bool {
	if len(clock) != 5 || clock[2] != ':' {
		return false
	}
	_, err := time.Parse(TimeLayout, clock)
	return err == nil
}
