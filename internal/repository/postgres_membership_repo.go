package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/clubcal/internal/model"
)

// PostgresMembershipRepo はPostgreSQLを使用したメンバーシップリポジトリ。
type PostgresMembershipRepo struct {
	db *sql.DB
}

// NewPostgresMembershipRepo はPostgresMembershipRepoを生成する。
func NewPostgresMembershipRepo(db *sql.DB) *PostgresMembershipRepo {
	return &PostgresMembershipRepo{db: db}
}

// Exists は(identity, groupName)のメンバーシップが存在するかを返す。
func (r *PostgresMembershipRepo) Exists(ctx context.Context, email, groupName string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM memberships WHERE member_email = $1 AND group_name = $2)`,
		email, groupName,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("メンバーシップの存在確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はメンバーシップを作成する。(identity, groupName)が重複する場合は何もしない。
func (r *PostgresMembershipRepo) Create(ctx context.Context, m *model.Membership) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (id, member_email, group_name, remote_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (member_email, group_name) DO NOTHING`,
		m.ID, m.MemberEmail, m.GroupName, m.RemoteID, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("メンバーシップの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete は(identity, groupName)のメンバーシップを削除する。
func (r *PostgresMembershipRepo) Delete(ctx context.Context, email, groupName string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE member_email = $1 AND group_name = $2`,
		email, groupName,
	)
	if err != nil {
		return fmt.Errorf("メンバーシップの削除に失敗しました: %w", err)
	}
	return nil
}

// ListMembers はリソースIDのグループに所属するメンバーの一覧を返す。
func (r *PostgresMembershipRepo) ListMembers(ctx context.Context, remoteID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT member_email FROM memberships WHERE remote_id = $1 ORDER BY member_email`,
		remoteID,
	)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("メンバーのスキャンに失敗しました: %w", err)
		}
		members = append(members, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メンバー一覧の走査に失敗しました: %w", err)
	}
	return members, nil
}

// DeleteByEmail はidentityの全メンバーシップを削除する。
func (r *PostgresMembershipRepo) DeleteByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE member_email = $1`,
		email,
	)
	if err != nil {
		return fmt.Errorf("メンバーシップの一括削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MembershipRepository = (*PostgresMembershipRepo)(nil)
