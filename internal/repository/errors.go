package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrDuplicate は一意制約に違反する登録を示す。
	ErrDuplicate = errors.New("repository: duplicate")
	// ErrNotFound は更新・削除の対象が存在しないことを示す。
	ErrNotFound = errors.New("repository: not found")
)

// pqUniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
