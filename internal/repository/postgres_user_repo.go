package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/clubcal/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Register はユーザーと既定の通知設定を同一トランザクションで作成する。
// 既に存在する場合は何もせずfalseを返す。
func (r *PostgresUserRepo) Register(ctx context.Context, email string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`,
		email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notification_settings (email) VALUES ($1) ON CONFLICT (email) DO NOTHING`,
		email,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert notification settings: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// FindByEmail はユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT email, premium, created_at, updated_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.Email, &user.Premium, &user.CreatedAt, &user.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// SetPremium はプレミアムフラグを更新する。
func (r *PostgresUserRepo) SetPremium(ctx context.Context, email string, premium bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET premium = $2, updated_at = now() WHERE email = $1`,
		email, premium,
	)
	if err != nil {
		return fmt.Errorf("failed to update premium: %w", err)
	}
	return requireAffected(result, "user", email)
}

// FindNotifications は通知設定を取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindNotifications(ctx context.Context, email string) (*model.NotificationSettings, error) {
	s := &model.NotificationSettings{}
	err := r.db.QueryRowContext(ctx,
		`SELECT email, event_notify, gym_notify FROM notification_settings WHERE email = $1`,
		email,
	).Scan(&s.Email, &s.EventNotify, &s.GymNotify)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find notification settings: %w", err)
	}
	return s, nil
}

// UpdateNotifications は通知設定を更新する。
func (r *PostgresUserRepo) UpdateNotifications(ctx context.Context, settings *model.NotificationSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_settings (email, event_notify, gym_notify, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (email) DO UPDATE
		 SET event_notify = EXCLUDED.event_notify,
		     gym_notify = EXCLUDED.gym_notify,
		     updated_at = EXCLUDED.updated_at`,
		settings.Email, settings.EventNotify, settings.GymNotify,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification settings: %w", err)
	}
	return nil
}

// Delete はユーザーを削除する。
// 関連するnotification_settings、profilesはCASCADE削除される。
func (r *PostgresUserRepo) Delete(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE email = $1`,
		email,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireAffected(result, "user", email)
}

// requireAffected は更新対象が1件もない場合にErrNotFoundを返す。
func requireAffected(result sql.Result, kind, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
