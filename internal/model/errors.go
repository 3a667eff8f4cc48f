// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, group, event, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeInvalidDateTime      = "INVALID_DATE_TIME"
	ErrCodeInvalidHorizon       = "INVALID_HORIZON"
	ErrCodeGroupNotFound        = "GROUP_NOT_FOUND"
	ErrCodeEventNotFound        = "EVENT_NOT_FOUND"
	ErrCodeNotGroupMember       = "NOT_GROUP_MEMBER"
	ErrCodeCredentialNotFound   = "CREDENTIAL_NOT_FOUND"
	ErrCodeProviderFailed       = "PROVIDER_FAILED"
	ErrCodeProviderUnauthorized = "PROVIDER_UNAUTHORIZED"
	ErrCodeLedgerFailed         = "LEDGER_FAILED"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeCSRFTokenInvalid     = "CSRF_TOKEN_INVALID"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエスト形式の不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewInvalidDateTimeError は日付・時刻形式の不正エラーを生成する。
func NewInvalidDateTimeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateTime,
		Message:  fmt.Sprintf("日付または時刻の形式が不正です: %s", value),
		Category: "validation",
		Action:   "日付は dd-mm-yyyy、時刻は hh:mm 形式で指定してください。",
	}
}

// NewInvalidHorizonError は無効な表示期間エラーを生成する。
func NewInvalidHorizonError(horizon string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidHorizon,
		Message:  fmt.Sprintf("無効な表示期間です: %s", horizon),
		Category: "validation",
		Action:   "表示期間には all、week、month、group:<グループ名> のいずれかを指定してください。",
	}
}

// NewGroupNotFoundError はグループ未検出エラーを生成する。
func NewGroupNotFoundError(ref string) *APIError {
	return &APIError{
		Code:     ErrCodeGroupNotFound,
		Message:  fmt.Sprintf("指定されたグループが見つかりません: %s", ref),
		Category: "group",
		Action:   "グループ名またはIDを確認してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", id),
		Category: "event",
		Action:   "イベント一覧を再読み込みしてください。",
	}
}

// NewNotGroupMemberError はグループ非メンバーエラーを生成する。
func NewNotGroupMemberError(groupName string) *APIError {
	return &APIError{
		Code:     ErrCodeNotGroupMember,
		Message:  fmt.Sprintf("グループのメンバーではありません: %s", groupName),
		Category: "group",
		Action:   "グループ一覧を再読み込みしてください。",
	}
}

// NewCredentialNotFoundError はトークン未登録エラーを生成する。
func NewCredentialNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeCredentialNotFound,
		Message:  fmt.Sprintf("カレンダーへのアクセストークンが登録されていません: %s", email),
		Category: "auth",
		Action:   "対象のユーザーに一度ログインしてもらってください。",
	}
}

// NewProviderFailedError はカレンダープロバイダー呼び出し失敗エラーを生成する。
func NewProviderFailedError(op string) *APIError {
	return &APIError{
		Code:     ErrCodeProviderFailed,
		Message:  fmt.Sprintf("カレンダーサービスの呼び出しに失敗しました: %s", op),
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProviderUnauthorizedError はトークン失効などによる認可エラーを生成する。
func NewProviderUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderUnauthorized,
		Message:  "カレンダーサービスへのアクセスが拒否されました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewLedgerFailedError は台帳（データベース）操作失敗エラーを生成する。
func NewLedgerFailedError(op string) *APIError {
	return &APIError{
		Code:     ErrCodeLedgerFailed,
		Message:  fmt.Sprintf("データの保存に失敗しました: %s", op),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewProfileNotFoundError はプロフィール未登録エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが登録されていません。",
		Category: "validation",
		Action:   "プロフィールを登録してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
