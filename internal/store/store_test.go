package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/cartable/internal/diff"
	"github.com/hitoshi/cartable/internal/model"
)

// memoryStateRepo はテスト用のインメモリStateRepository実装。
type memoryStateRepo struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryStateRepo() *memoryStateRepo {
	return &memoryStateRepo{data: make(map[string][]byte)}
}

func (r *memoryStateRepo) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (r *memoryStateRepo) Set(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	r.data[key] = stored
	return nil
}

func (r *memoryStateRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, key)
	return nil
}

func (r *memoryStateRepo) ListKeys(_ context.Context, prefix string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func TestStore_Read_Unbound_ReturnsErrNotBound(t *testing.T) {
	s := New[model.Homework](model.DomainHomework, newMemoryStateRepo())

	if _, err := s.Read("acct-1", "245"); !errors.Is(err, model.ErrNotBound) {
		t.Errorf("err = %v, want ErrNotBound", err)
	}
}

func TestStore_Read_EmptyPeriod_ReturnsEmptySlice(t *testing.T) {
	s := New[model.Homework](model.DomainHomework, newMemoryStateRepo())
	if err := s.BindTo(context.Background(), "acct-1"); err != nil {
		t.Fatalf("BindTo: %v", err)
	}

	items, err := s.Read("acct-1", "245")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if items == nil {
		t.Fatal("Read should return an empty slice, not nil")
	}
	if len(items) != 0 {
		t.Errorf("len = %d, want 0", len(items))
	}
}

func TestStore_Replace_WritesThroughAndReads(t *testing.T) {
	repo := newMemoryStateRepo()
	ctx := context.Background()

	s := New[model.Homework](model.DomainHomework, repo)
	if err := s.BindTo(ctx, "acct-1"); err != nil {
		t.Fatalf("BindTo: %v", err)
	}

	hw := model.Homework{ID: "hw-1", Subject: "Maths", Content: "Exercices p.42"}
	if err := s.Replace(ctx, "acct-1", "245", []model.Homework{hw}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	items, err := s.Read("acct-1", "245")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(items) != 1 || items[0].ID != "hw-1" {
		t.Errorf("items = %v, want [hw-1]", items)
	}

	// ライトスルーされたドキュメントから別インスタンスが再水和できる
	s2 := New[model.Homework](model.DomainHomework, repo)
	if err := s2.BindTo(ctx, "acct-1"); err != nil {
		t.Fatalf("BindTo(2nd): %v", err)
	}
	items2, err := s2.Read("acct-1", "245")
	if err != nil {
		t.Fatalf("Read(2nd): %v", err)
	}
	if len(items2) != 1 || items2[0].Content != "Exercices p.42" {
		t.Errorf("rehydrated items = %v", items2)
	}
}

func TestStore_BindTo_SwitchesAccountDocuments(t *testing.T) {
	repo := newMemoryStateRepo()
	ctx := context.Background()

	s := New[model.Homework](model.DomainHomework, repo)
	if err := s.BindTo(ctx, "acct-a"); err != nil {
		t.Fatalf("BindTo: %v", err)
	}
	if err := s.Replace(ctx, "acct-a", "245", []model.Homework{{ID: "hw-a"}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	// 別アカウントに切り替えると前アカウントのデータは見えない
	if err := s.BindTo(ctx, "acct-b"); err != nil {
		t.Fatalf("BindTo(b): %v", err)
	}
	items, err := s.Read("acct-b", "245")
	if err != nil {
		t.Fatalf("Read(b): %v", err)
	}
	if len(items) != 0 {
		t.Errorf("account b should start empty, got %v", items)
	}

	// 旧アカウントのLocalIDでの読み出しはErrNotBound
	if _, err := s.Read("acct-a", "245"); !errors.Is(err, model.ErrNotBound) {
		t.Errorf("err = %v, want ErrNotBound", err)
	}

	// 元のアカウントに戻すとデータが再水和される
	if err := s.BindTo(ctx, "acct-a"); err != nil {
		t.Fatalf("BindTo(a again): %v", err)
	}
	items, err = s.Read("acct-a", "245")
	if err != nil {
		t.Fatalf("Read(a): %v", err)
	}
	if len(items) != 1 || items[0].ID != "hw-a" {
		t.Errorf("items = %v, want [hw-a]", items)
	}
}

func TestStore_Mutate_AppliesIncrementalChange(t *testing.T) {
	ctx := context.Background()
	s := New[model.Homework](model.DomainHomework, newMemoryStateRepo())
	if err := s.BindTo(ctx, "acct-1"); err != nil {
		t.Fatalf("BindTo: %v", err)
	}
	if err := s.Replace(ctx, "acct-1", "245", []model.Homework{{ID: "hw-1", Done: false}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	err := s.Mutate(ctx, "acct-1", "245", func(items []model.Homework) []model.Homework {
		for i := range items {
			if items[i].ID == "hw-1" {
				items[i].Done = true
			}
		}
		return items
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	items, _ := s.Read("acct-1", "245")
	if !items[0].Done {
		t.Error("homework should be marked done")
	}
}

func TestMergeLocalAdditions_LocalItemsSurvive(t *testing.T) {
	due := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

	backend := []model.Homework{
		{ID: "b-1", Content: "Exercices p.42", Due: due},
	}
	previous := []model.Homework{
		{ID: "b-old", Content: "Exercices p.42", Due: due},       // バックエンド側と同一性が衝突
		{ID: "l-1", Content: "Réviser le contrôle", Due: due, Local: true},
		{ID: "b-2", Content: "Ancien devoir", Due: due},          // ローカルでないものは引き継がない
	}

	merged := MergeLocalAdditions(backend, previous, diff.HomeworkKey,
		func(h model.Homework) bool { return h.Local })

	if len(merged) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(merged), merged)
	}
	if merged[0].ID != "b-1" {
		t.Errorf("backend item should come first, got %s", merged[0].ID)
	}
	if merged[1].ID != "l-1" {
		t.Errorf("local addition should survive, got %s", merged[1].ID)
	}
}

func TestMergeLocalAdditions_CollidingLocalYieldsToBackend(t *testing.T) {
	due := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

	backend := []model.Homework{
		{ID: "b-1", Content: "Exercices p.42", Due: due},
	}
	previous := []model.Homework{
		// 同一性（期限, 内容）がバックエンドと衝突するローカルアイテムは消える
		{ID: "l-1", Content: "Exercices p.42", Due: due, Local: true},
	}

	merged := MergeLocalAdditions(backend, previous, diff.HomeworkKey,
		func(h model.Homework) bool { return h.Local })

	if len(merged) != 1 || merged[0].ID != "b-1" {
		t.Errorf("merged = %v, want only backend item", merged)
	}
}

func TestStores_BindTo_BindsAllDomains(t *testing.T) {
	repo := newMemoryStateRepo()
	stores := NewStores(repo)

	if err := stores.BindTo(context.Background(), "acct-1"); err != nil {
		t.Fatalf("BindTo: %v", err)
	}

	if stores.News.BoundTo() != "acct-1" {
		t.Error("news store not bound")
	}
	if stores.Chat.BoundTo() != "acct-1" {
		t.Error("chat store not bound")
	}
	if stores.Attendance.BoundTo() != "acct-1" {
		t.Error("attendance store not bound")
	}
}
