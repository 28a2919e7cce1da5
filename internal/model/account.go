package model

import "time"

// Session はバックエンド固有の認証・セッションハンドル。
// 内容は不透明に扱い、永続化とアダプタへの受け渡しのみを行う。
// 失効後はnilとなり、アカウント切り替え時に遅延再確立される。
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired はセッションが失効しているかを返す。
func (s *Session) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && now.After(s.ExpiresAt))
}

// Preferences はアカウントごとの通知設定を保持する。
// グローバルフラグとドメイン別フラグの両方が有効な場合のみ通知が発火する。
type Preferences struct {
	NotificationsEnabled bool            `json:"notifications_enabled"`
	NotifyDomains        map[Domain]bool `json:"notify_domains"`
}

// NotifyFor はドメインの通知が有効かを返す。
func (p Preferences) NotifyFor(d Domain) bool {
	return p.NotificationsEnabled && p.NotifyDomains[d]
}

// Account は設定済みのバックエンド接続または仮想スペースを表す。
type Account struct {
	// LocalID はクライアント生成の安定した識別子。
	// 永続化キー ${LocalID}-${domain}-storage の前半部分になる。
	LocalID string `json:"local_id"`

	// Service はバックエンドサービスの種別。
	Service Service `json:"service"`

	// Name は表示名（生徒名など）。
	Name string `json:"name"`

	// SchoolName は学校名。
	SchoolName string `json:"school_name"`

	// ProfilePicture はプロフィール画像のURLまたはデータURI。
	ProfilePicture string `json:"profile_picture"`

	// Session はバックエンド固有のセッションハンドル。未確立の場合はnil。
	Session *Session `json:"session,omitempty"`

	// Preferences は通知設定。
	Preferences Preferences `json:"preferences"`

	// NewsFeedURL はローカルアカウントが購読する学校の公開フィードURL。
	// 設定されている場合、ローカルサービスのnewsドメインがこのフィードから取得される。
	NewsFeedURL string `json:"news_feed_url,omitempty"`

	// External は支払い・食堂専用の外部アカウントかどうか。
	// 外部アカウントはバックグラウンド同期の対象から除外される。
	External bool `json:"external"`

	// LinkedExternalIDs は食堂残高等の機能で使用する外部アカウントのLocalID。
	LinkedExternalIDs []string `json:"linked_external_ids,omitempty"`

	// AssociatedIDs はマルチサービススペースに参加している実アカウントのLocalID。
	// Service == ServiceMultiService の場合のみ使用される。
	AssociatedIDs []string `json:"associated_ids,omitempty"`

	// Delegates はマルチサービススペースのドメイン別委譲先（ドメイン → 実アカウントのLocalID）。
	Delegates map[Domain]string `json:"delegates,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsMultiService はマルチサービス仮想スペースかを返す。
func (a *Account) IsMultiService() bool {
	return a.Service == ServiceMultiService
}

// DelegateFor はドメインに設定された委譲先アカウントのLocalIDを返す。
// 未設定の場合は第2戻り値がfalseになる。
func (a *Account) DelegateFor(d Domain) (string, bool) {
	if a.Delegates == nil {
		return "", false
	}
	id, ok := a.Delegates[d]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// RemoveDelegate は指定アカウントへの委譲設定を全ドメインから取り除き、
// 取り除いた件数を返す。
func (a *Account) RemoveDelegate(localID string) int {
	removed := 0
	for d, id := range a.Delegates {
		if id == localID {
			delete(a.Delegates, d)
			removed++
		}
	}
	for i, id := range a.AssociatedIDs {
		if id == localID {
			a.AssociatedIDs = append(a.AssociatedIDs[:i], a.AssociatedIDs[i+1:]...)
			break
		}
	}
	return removed
}

// StorageKey はアカウントとドメインに対応する永続化キーを返す。
// 形式: ${LocalID}-${domain}-storage
func StorageKey(localID string, d Domain) string {
	return localID + "-" + string(d) + "-storage"
}

// AccountsStorageKey はアカウント一覧ドキュメントの永続化キー。
const AccountsStorageKey = "accounts-storage"
