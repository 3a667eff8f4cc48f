package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/clubcal/internal/model"
)

// PostgresGroupRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// Exists はリソースIDのグループが登録済みかを返す。
func (r *PostgresGroupRepo) Exists(ctx context.Context, remoteID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE remote_id = $1)`,
		remoteID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("グループの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はグループを登録する。
func (r *PostgresGroupRepo) Create(ctx context.Context, group *model.Group) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO groups (remote_id, name, owner_email, is_private, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		group.RemoteID, group.Name, group.OwnerEmail, group.IsPrivate, group.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("グループ %s は登録済みです: %w", group.RemoteID, ErrDuplicate)
		}
		return fmt.Errorf("グループの登録に失敗しました: %w", err)
	}
	return nil
}

// FindByRemoteID はリソースIDでグループを取得する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByRemoteID(ctx context.Context, remoteID string) (*model.Group, error) {
	g := &model.Group{}
	err := r.db.QueryRowContext(ctx,
		`SELECT remote_id, name, owner_email, is_private, created_at
		 FROM groups WHERE remote_id = $1`,
		remoteID,
	).Scan(&g.RemoteID, &g.Name, &g.OwnerEmail, &g.IsPrivate, &g.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("グループの取得に失敗しました: %w", err)
	}
	return g, nil
}

// OwnerOf はグループ名の所有者を返す。同名のグループが複数ある場合は最も古いものを採用する。
func (r *PostgresGroupRepo) OwnerOf(ctx context.Context, name string) (string, error) {
	var owner string
	err := r.db.QueryRowContext(ctx,
		`SELECT owner_email FROM groups WHERE name = $1 ORDER BY created_at ASC LIMIT 1`,
		name,
	).Scan(&owner)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("グループ所有者の取得に失敗しました: %w", err)
	}
	return owner, nil
}

// ListPublic は公開グループの一覧を名前順で返す。
func (r *PostgresGroupRepo) ListPublic(ctx context.Context) ([]*model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT remote_id, name, owner_email, is_private, created_at
		 FROM groups WHERE is_private = false
		 ORDER BY name ASC, created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("公開グループ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		g := &model.Group{}
		if err := rows.Scan(&g.RemoteID, &g.Name, &g.OwnerEmail, &g.IsPrivate, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("公開グループのスキャンに失敗しました: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("公開グループ一覧の走査に失敗しました: %w", err)
	}
	return groups, nil
}

// DeleteByOwnerAndName は所有者とグループ名に一致するグループを削除する。
func (r *PostgresGroupRepo) DeleteByOwnerAndName(ctx context.Context, owner, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM groups WHERE owner_email = $1 AND name = $2`,
		owner, name,
	)
	if err != nil {
		return fmt.Errorf("グループの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
