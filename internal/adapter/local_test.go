package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/cartable/internal/model"
)

// fakeNewsSource は固定の応答を返すNewsSource実装。
type fakeNewsSource struct {
	items      []model.NewsItem
	err        error
	fetchedURL string
}

func (s *fakeNewsSource) Fetch(_ context.Context, feedURL string) ([]model.NewsItem, error) {
	s.fetchedURL = feedURL
	return s.items, s.err
}

func TestLocalAdapter_FetchNews_UsesConfiguredFeed(t *testing.T) {
	source := &fakeNewsSource{items: []model.NewsItem{{ID: "n-1", Title: "Sortie scolaire"}}}
	a := NewLocalAdapter(source)
	acct := &model.Account{LocalID: "acct-1", Service: model.ServiceLocal, NewsFeedURL: "https://college.example.fr/feed.xml"}

	items, err := a.FetchNews(context.Background(), acct)
	if err != nil {
		t.Fatalf("FetchNews: %v", err)
	}
	if len(items) != 1 || items[0].ID != "n-1" {
		t.Errorf("items = %v", items)
	}
	if source.fetchedURL != "https://college.example.fr/feed.xml" {
		t.Errorf("fetchedURL = %q", source.fetchedURL)
	}
}

func TestLocalAdapter_FetchNews_NoFeedURL_Empty(t *testing.T) {
	source := &fakeNewsSource{}
	a := NewLocalAdapter(source)
	acct := &model.Account{LocalID: "acct-1", Service: model.ServiceLocal}

	items, err := a.FetchNews(context.Background(), acct)
	if err != nil {
		t.Fatalf("FetchNews: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Errorf("items = %v, want empty slice", items)
	}
	if source.fetchedURL != "" {
		t.Error("source should not be called without a feed URL")
	}
}

func TestLocalAdapter_FetchNews_NilSource_Empty(t *testing.T) {
	a := NewLocalAdapter(nil)
	acct := &model.Account{LocalID: "acct-1", Service: model.ServiceLocal, NewsFeedURL: "https://college.example.fr/feed.xml"}

	items, err := a.FetchNews(context.Background(), acct)
	if err != nil {
		t.Fatalf("FetchNews: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("items = %v, want empty slice", items)
	}
}

func TestLocalAdapter_EmptyDomains(t *testing.T) {
	a := NewLocalAdapter(nil)
	acct := &model.Account{LocalID: "acct-1", Service: model.ServiceLocal}
	ctx := context.Background()

	if hw, err := a.FetchHomework(ctx, acct, 245); err != nil || len(hw) != 0 {
		t.Errorf("FetchHomework = (%v, %v), want empty", hw, err)
	}
	if g, err := a.FetchGrades(ctx, acct, "Trimestre 1"); err != nil || len(g) != 0 {
		t.Errorf("FetchGrades = (%v, %v), want empty", g, err)
	}
	if l, err := a.FetchTimetable(ctx, acct, 245); err != nil || len(l) != 0 {
		t.Errorf("FetchTimetable = (%v, %v), want empty", l, err)
	}
	if att, err := a.FetchAttendance(ctx, acct, "Trimestre 1"); err != nil || len(att.Absences) != 0 || len(att.Delays) != 0 {
		t.Errorf("FetchAttendance = (%+v, %v), want empty aggregate", att, err)
	}
	if e, err := a.FetchEvaluations(ctx, acct, "Trimestre 1"); err != nil || len(e) != 0 {
		t.Errorf("FetchEvaluations = (%v, %v), want empty", e, err)
	}
}

func TestLocalAdapter_FetchChats_NotSupported(t *testing.T) {
	a := NewLocalAdapter(nil)
	acct := &model.Account{LocalID: "acct-1", Service: model.ServiceLocal}

	if _, err := a.FetchChats(context.Background(), acct); !errors.Is(err, model.ErrNotSupported) {
		t.Errorf("err = %v, want ErrNotSupported", err)
	}
}

func TestRegistry_Resolve(t *testing.T) {
	a := NewLocalAdapter(nil)
	reg := NewRegistry(a)

	if got, ok := reg.Resolve(model.ServiceLocal); !ok || got != Adapter(a) {
		t.Error("registered adapter should resolve")
	}
	if _, ok := reg.Resolve(model.ServicePronote); ok {
		t.Error("unregistered service should not resolve")
	}
}
