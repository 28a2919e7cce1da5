// Package account はアカウントレジストリを提供する。
// 設定済みアカウントの一覧・アクティブアカウント・切り替えライフサイクル
// （ドメインストアの一括再バインド）を管理し、accounts-storageキーで永続化する。
package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/repository"
	"github.com/hitoshi/cartable/internal/store"
)

// Authenticator はバックエンドセッションの再確立のインターフェース。
// 実装はサービスごとの認証プロトコルを担う外部コラボレータ。
type Authenticator interface {
	// Reload はアカウントのセッションを再確立して返す。
	Reload(ctx context.Context, account *model.Account) (*model.Session, error)
}

// Registry はアカウントレジストリ。
// アカウントはレジストリ順（追加順）で保持され、バックグラウンド同期も
// この順で巡回する。
type Registry struct {
	repo   repository.StateRepository
	stores *store.Stores
	auth   Authenticator // nilの場合はセッション再確立をスキップ
	logger *slog.Logger

	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time

	mu        sync.RWMutex
	accounts  []*model.Account
	currentID string
}

// NewRegistry はRegistryを生成する。
func NewRegistry(repo repository.StateRepository, stores *store.Stores, auth Authenticator, logger *slog.Logger) *Registry {
	return &Registry{
		repo:   repo,
		stores: stores,
		auth:   auth,
		logger: logger,
		now:    time.Now,
	}
}

// Load は永続化済みのアカウント一覧を読み込む。
// ドキュメントが存在しない場合は空のレジストリで初期化する。
func (r *Registry) Load(ctx context.Context) error {
	raw, err := r.repo.Get(ctx, model.AccountsStorageKey)
	if err != nil {
		return fmt.Errorf("アカウント一覧の読み込みに失敗: %w", err)
	}

	var accounts []*model.Account
	if raw != nil {
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return fmt.Errorf("アカウント一覧の復元に失敗: %w", err)
		}
	}

	r.mu.Lock()
	r.accounts = accounts
	r.mu.Unlock()

	return nil
}

// persistLocked はアカウント一覧を永続化する。呼び出し側がr.muを保持していること。
// マルチサービスアカウントの継承プロフィール画像は永続化しない。
func (r *Registry) persistLocked(ctx context.Context) error {
	stored := make([]*model.Account, len(r.accounts))
	for i, a := range r.accounts {
		if a.IsMultiService() && a.ProfilePicture != "" {
			clone := *a
			clone.ProfilePicture = ""
			stored[i] = &clone
		} else {
			stored[i] = a
		}
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("アカウント一覧のシリアライズに失敗: %w", err)
	}
	if err := r.repo.Set(ctx, model.AccountsStorageKey, raw); err != nil {
		return fmt.Errorf("アカウント一覧の永続化に失敗: %w", err)
	}

	return nil
}

// ListAccounts はバックグラウンド同期の対象となる全アカウントをレジストリ順で返す。
// 外部（支払い専用）アカウントは除外される。
func (r *Registry) ListAccounts() []*model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if a.External {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Get は指定LocalIDのアカウントを返す。
func (r *Registry) Get(localID string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(localID)
}

// findLocked は指定LocalIDのアカウントを検索する。呼び出し側がr.muを保持していること。
func (r *Registry) findLocked(localID string) (*model.Account, error) {
	for _, a := range r.accounts {
		if a.LocalID == localID {
			return a, nil
		}
	}
	return nil, model.ErrAccountNotFound
}

// Current はアクティブなアカウントを返す。
func (r *Registry) Current() (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentID == "" {
		return nil, model.ErrNoCurrentAccount
	}
	return r.findLocked(r.currentID)
}

// Add はアカウントを登録して永続化する。
func (r *Registry) Add(ctx context.Context, account *model.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.findLocked(account.LocalID); err == nil {
		return fmt.Errorf("アカウントは既に登録されています: %s", account.LocalID)
	}

	now := r.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	r.accounts = append(r.accounts, account)
	return r.persistLocked(ctx)
}

// SwitchTo はアクティブアカウントを切り替える。
// 全ドメインストアの永続化キーを ${localID}-${domain}-storage に張り替えて
// 一括再水和し、バックエンドセッションが未確立の場合は遅延再確立する。
// 連携済みの外部アカウントとマルチサービススペースの参加アカウントの
// セッションも先行して再読み込みする（失敗はログのみ）。
// 再水和が1つでも失敗した場合、切り替えは失敗として扱われる。
func (r *Registry) SwitchTo(ctx context.Context, localID string) error {
	r.mu.Lock()
	account, err := r.findLocked(localID)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	linked := append([]string{}, account.LinkedExternalIDs...)
	associated := append([]string{}, account.AssociatedIDs...)
	r.mu.Unlock()

	// 本体アカウントのセッションを遅延再確立する
	if err := r.reloadSession(ctx, account); err != nil {
		return fmt.Errorf("セッションの再確立に失敗: %w", err)
	}

	// 連携外部アカウント・参加アカウントのセッションを先行読み込みする。
	// ここでの失敗は切り替え自体を妨げない。
	for _, id := range append(linked, associated...) {
		other, err := r.Get(id)
		if err != nil {
			r.logger.Warn("連携アカウントが見つかりません",
				slog.String("account", localID),
				slog.String("linked", id),
			)
			continue
		}
		if err := r.reloadSession(ctx, other); err != nil {
			r.logger.Warn("連携アカウントのセッション再読み込みに失敗しました",
				slog.String("account", localID),
				slog.String("linked", id),
				slog.String("error", err.Error()),
			)
		}
	}

	// 全ドメインストアを一括で再バインドする。
	// 失敗した場合はアクティブアカウントを更新しない。
	if err := r.stores.BindTo(ctx, localID); err != nil {
		return fmt.Errorf("ストアの切り替えに失敗: %w", err)
	}

	r.mu.Lock()
	r.currentID = localID
	r.mu.Unlock()

	r.logger.Info("アクティブアカウントを切り替えました",
		slog.String("account", localID),
		slog.String("service", string(account.Service)),
	)

	return nil
}

// reloadSession はセッションが未確立または失効している場合に再確立する。
// ローカル・マルチサービスアカウントはバックエンドセッションを持たない。
func (r *Registry) reloadSession(ctx context.Context, account *model.Account) error {
	if account.Service == model.ServiceLocal || account.IsMultiService() {
		return nil
	}
	if !account.Session.Expired(r.now()) {
		return nil
	}
	if r.auth == nil {
		r.logger.Warn("認証機能が未構成のためセッション再確立をスキップしました",
			slog.String("account", account.LocalID),
		)
		return nil
	}

	session, err := r.auth.Reload(ctx, account)
	if err != nil {
		return err
	}

	r.mu.Lock()
	account.Session = session
	r.mu.Unlock()

	return nil
}

// MutateProperty はアカウントの1プロパティを更新し、永続化する。
// マルチサービスアカウントのプロフィール画像はメモリ上のみ更新され、
// 永続化ドキュメントには含まれない（persistLocked側で常に除外される）。
func (r *Registry) MutateProperty(ctx context.Context, localID, key string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, err := r.findLocked(localID)
	if err != nil {
		return err
	}

	switch key {
	case "name":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("プロパティ %s には文字列を指定してください", key)
		}
		account.Name = s
	case "school_name":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("プロパティ %s には文字列を指定してください", key)
		}
		account.SchoolName = s
	case "profile_picture":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("プロパティ %s には文字列を指定してください", key)
		}
		account.ProfilePicture = s
	case "news_feed_url":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("プロパティ %s には文字列を指定してください", key)
		}
		account.NewsFeedURL = s
	case "notifications_enabled":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("プロパティ %s には真偽値を指定してください", key)
		}
		account.Preferences.NotificationsEnabled = b
	case "notify_domains":
		m, ok := value.(map[string]bool)
		if !ok {
			return fmt.Errorf("プロパティ %s にはドメイン別真偽値マップを指定してください", key)
		}
		domains := make(map[model.Domain]bool, len(m))
		for k, v := range m {
			if !model.IsValidDomain(k) {
				return fmt.Errorf("無効なドメインです: %s", k)
			}
			domains[model.Domain(k)] = v
		}
		account.Preferences.NotifyDomains = domains
	default:
		return fmt.Errorf("サポートされていないプロパティです: %s", key)
	}

	account.UpdatedAt = r.now()
	return r.persistLocked(ctx)
}

// Remove はアカウントを削除する（ログアウト）。
// 削除対象をマルチサービススペースが委譲先として参照している場合は参照を
// 取り除き、この削除によって委譲先が1つも残らなくなったスペースはスペースごと
// 削除する。削除対象を参照していなかったスペースには影響しない。
// 削除対象がアクティブアカウントだった場合、アクティブアカウントは未設定になる。
func (r *Registry) Remove(ctx context.Context, localID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.findLocked(localID); err != nil {
		return err
	}

	kept := make([]*model.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		if a.LocalID == localID {
			continue
		}

		if a.IsMultiService() {
			removed := a.RemoveDelegate(localID)
			if removed > 0 && len(a.Delegates) == 0 {
				// 委譲先を全て失ったスペースは維持できないため削除する
				r.logger.Info("委譲先を失ったマルチサービススペースを削除します",
					slog.String("space", a.LocalID),
					slog.String("removed_delegate", localID),
				)
				if r.currentID == a.LocalID {
					r.currentID = ""
				}
				continue
			}
		}

		kept = append(kept, a)
	}
	r.accounts = kept

	if r.currentID == localID {
		r.currentID = ""
	}

	r.logger.Info("アカウントを削除しました",
		slog.String("account", localID),
	)

	return r.persistLocked(ctx)
}
