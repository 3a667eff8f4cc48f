// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NameSanitizer はグループ名・イベント名からマークアップを除去し、
// プロバイダーと台帳に保存される表示名をプレーンテキストに正規化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxNameLength は表示名の最大文字数（rune数）。
const MaxNameLength = 255

// NameSanitizer は表示名のサニタイズ機能のインターフェースを定義する。
type NameSanitizer interface {
	// Sanitize はタグを除去し、連続する空白を1つにまとめ、前後の空白を取り除いた名前を返す。
	// MaxNameLengthを超える部分は切り詰める。
	Sanitize(name string) string
}

// nameSanitizer はbluemondayのStrictPolicyでタグをすべて除去する実装。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *nameSanitizer) Sanitize(name string) string {
	if name == "" {
		return ""
	}

	// StrictPolicyは & などをエスケープするため元の文字に戻す
	stripped := html.UnescapeString(s.policy.Sanitize(name))
	cleaned := strings.Join(strings.Fields(stripped), " ")

	if r := []rune(cleaned); len(r) > MaxNameLength {
		cleaned = strings.TrimSpace(string(r[:MaxNameLength]))
	}
	return cleaned
}
