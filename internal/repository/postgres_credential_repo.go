package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// Find はidentityの資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) Find(ctx context.Context, email string) (*model.Credential, error) {
	cred := &model.Credential{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT email, access_token, expiry, updated_at FROM credentials WHERE email = $1`,
		email,
	).Scan(&cred.Email, &cred.AccessToken, &expiry, &cred.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("資格情報の取得に失敗しました: %w", err)
	}
	if expiry.Valid {
		cred.Expiry = expiry.Time
	}
	return cred, nil
}

// Upsert は資格情報を保存する。既存の資格情報は上書きされる。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, cred *model.Credential) error {
	var expiry sql.NullTime
	if !cred.Expiry.IsZero() {
		expiry = sql.NullTime{Time: cred.Expiry, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (email, access_token, expiry, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE
		 SET access_token = EXCLUDED.access_token,
		     expiry = EXCLUDED.expiry,
		     updated_at = EXCLUDED.updated_at`,
		cred.Email, cred.AccessToken, expiry, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("資格情報の保存に失敗しました: %w", err)
	}
	return nil
}

// DeleteByEmail はidentityの資格情報を削除する。
func (r *PostgresCredentialRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE email = $1`,
		email,
	)
	if err != nil {
		return fmt.Errorf("資格情報の削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteExpired は基準時刻までに期限切れとなった資格情報を削除し、削除件数を返す。
func (r *PostgresCredentialRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM credentials WHERE expiry IS NOT NULL AND expiry <= $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ資格情報の削除に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
