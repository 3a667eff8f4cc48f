package model

import "time"

// PrimaryGroupName は各ユーザーが暗黙に持つ個人カレンダーのグループ名。
// GroupRegistrarでは作成されず、一覧からも除外される。
const PrimaryGroupName = "Primary"

// Group はプロバイダー側のカレンダーリソースに1対1で対応するグループを表す。
// RemoteIDはプロバイダーが割り当てる唯一のグローバルキーで、
// Nameは所有者ごとに一意となる。
type Group struct {
	Name       string
	RemoteID   string
	OwnerEmail string
	IsPrivate  bool
	CreatedAt  time.Time
}

// Membership はメンバーのプロバイダーアカウントがグループのリソースを
// 購読していることを表す。所有者も自分のグループのMembershipを持つ。
type Membership struct {
	ID          string
	MemberEmail string
	GroupName   string
	RemoteID    string
	CreatedAt   time.Time
}

// Credential は外部で発行されたアクセストークンを表す。
// 1つのidentityにつき有効なCredentialは1件のみで、再ログインで上書きされる。
type Credential struct {
	Email       string
	AccessToken string
	Expiry      time.Time
	UpdatedAt   time.Time
}

// Expired は基準時刻においてトークンの有効期限が切れているかを返す。
// Expiryがゼロ値の場合は期限なしとして扱う。
func (c *Credential) Expired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Before(c.Expiry)
}
