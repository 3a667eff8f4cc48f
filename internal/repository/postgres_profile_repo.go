package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/clubcal/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// Find はプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) Find(ctx context.Context, email string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT email, name, age, height, weight, bmi FROM profiles WHERE email = $1`,
		email,
	).Scan(&p.Email, &p.Name, &p.Age, &p.Height, &p.Weight, &p.BMI)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return p, nil
}

// Upsert はプロフィールを保存する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (email, name, age, height, weight, bmi, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name,
		     age = EXCLUDED.age,
		     height = EXCLUDED.height,
		     weight = EXCLUDED.weight,
		     bmi = EXCLUDED.bmi,
		     updated_at = EXCLUDED.updated_at`,
		p.Email, p.Name, p.Age, p.Height, p.Weight, p.BMI,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete はプロフィールを削除する。
func (r *PostgresProfileRepo) Delete(ctx context.Context, email string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM profiles WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}
	return requireAffected(result, "profile", email)
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
