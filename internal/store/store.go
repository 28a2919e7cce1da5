// Package store はアカウントごと・ドメインごとのキャッシュストアを提供する。
// 各ストアはピリオドキー（週番号または学期名）からアイテム集合へのマッピングを
// 1アカウント分だけメモリに保持し、書き込みのたびに永続化層へライトスルーする。
// アカウント切り替え時はBindToで永続化キーを張り替え、新アカウントの
// ドキュメントから再水和する。
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/repository"
)

// Store は1ドメイン分のキャッシュストア。
// アイテム型Tはドメインごとに異なる（宿題・成績・授業など）。
// 全メソッドは要求元アカウントのLocalIDを明示的に受け取り、
// バインド先と一致しない場合はErrNotBoundを返す。これにより
// アカウント切り替えと更新処理の交錯が別アカウントのデータを
// 静かに返すことを防ぐ。
type Store[T any] struct {
	domain model.Domain
	repo   repository.StateRepository

	mu      sync.RWMutex
	boundTo string // バインド中のアカウントLocalID。未バインドは空文字。
	data    map[string][]T
}

// New は指定ドメインのストアを生成する。生成直後は未バインド状態。
func New[T any](domain model.Domain, repo repository.StateRepository) *Store[T] {
	return &Store[T]{
		domain: domain,
		repo:   repo,
		data:   make(map[string][]T),
	}
}

// Domain はストアが担当するドメインを返す。
func (s *Store[T]) Domain() model.Domain {
	return s.domain
}

// BoundTo はバインド中のアカウントLocalIDを返す。未バインドは空文字。
func (s *Store[T]) BoundTo() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundTo
}

// BindTo はストアを指定アカウントの永続化キーに張り替え、
// 永続化済みドキュメントから再水和する。旧アカウントのメモリ上データは
// 破棄される（ライトスルーのため永続化側は常に最新）。
// ドキュメントが存在しない場合は空のマッピングで初期化する。
func (s *Store[T]) BindTo(ctx context.Context, localID string) error {
	raw, err := s.repo.Get(ctx, model.StorageKey(localID, s.domain))
	if err != nil {
		return fmt.Errorf("ストアの再水和に失敗 (%s): %w", s.domain, err)
	}

	data := make(map[string][]T)
	if raw != nil {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("ストアドキュメントの復元に失敗 (%s): %w", s.domain, err)
		}
	}

	s.mu.Lock()
	s.boundTo = localID
	s.data = data
	s.mu.Unlock()

	return nil
}

// Read は指定ピリオドのキャッシュ済みアイテムを返す。
// ピリオドが存在しない場合は空スライスを返す（nilは返さない）。
// 返り値は内部状態のコピーであり、呼び出し側で安全に変更できる。
func (s *Store[T]) Read(localID, periodKey string) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.boundTo != localID {
		return nil, model.ErrNotBound
	}

	items := s.data[periodKey]
	out := make([]T, len(items))
	copy(out, items)
	return out, nil
}

// Replace は指定ピリオドのアイテム集合をアトミックに上書きし、
// ドキュメント全体を永続化層へライトスルーする。
func (s *Store[T]) Replace(ctx context.Context, localID, periodKey string, items []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.boundTo != localID {
		return model.ErrNotBound
	}

	stored := make([]T, len(items))
	copy(stored, items)
	s.data[periodKey] = stored

	return s.persistLocked(ctx)
}

// Mutate は指定ピリオドのアイテム集合に増分変更を適用し、永続化する。
// fnは現在の集合を受け取り、変更後の集合を返す。
func (s *Store[T]) Mutate(ctx context.Context, localID, periodKey string, fn func(items []T) []T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.boundTo != localID {
		return model.ErrNotBound
	}

	s.data[periodKey] = fn(s.data[periodKey])

	return s.persistLocked(ctx)
}

// persistLocked はドキュメント全体をJSONシリアライズして書き込む。
// 呼び出し側がs.muを保持していること。
func (s *Store[T]) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return fmt.Errorf("ストアドキュメントのシリアライズに失敗 (%s): %w", s.domain, err)
	}
	if err := s.repo.Set(ctx, model.StorageKey(s.boundTo, s.domain), raw); err != nil {
		return fmt.Errorf("ストアドキュメントの永続化に失敗 (%s): %w", s.domain, err)
	}
	return nil
}

// MergeLocalAdditions はバックエンドから取得したアイテムと、更新前キャッシュに
// 含まれていたユーザー作成アイテムをマージする。バックエンド側が同一性で優先され、
// 同一性が衝突しないローカルアイテムのみ末尾に追加される。
// identityはアイテムの同一性キー、isLocalはユーザー作成アイテム判定を返す。
func MergeLocalAdditions[T any](backend, previous []T, identity func(T) string, isLocal func(T) bool) []T {
	merged := make([]T, len(backend))
	copy(merged, backend)

	seen := make(map[string]struct{}, len(backend))
	for _, item := range backend {
		seen[identity(item)] = struct{}{}
	}

	for _, item := range previous {
		if !isLocal(item) {
			continue
		}
		if _, ok := seen[identity(item)]; ok {
			continue
		}
		merged = append(merged, item)
	}

	return merged
}
