package provider

import (
	"errors"

	"github.com/hitoshi/clubcal/internal/model"
)

// ToAPIError はプロバイダー呼び出しやハンドル生成のエラーをAPIErrorに変換する。
// 既にAPIErrorの場合はそのまま返す。
func ToAPIError(op string, err error) *model.APIError {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrUnauthorized):
		return model.NewProviderUnauthorizedError()
	default:
		return model.NewProviderFailedError(op)
	}
}
