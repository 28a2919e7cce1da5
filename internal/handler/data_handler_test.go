package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/store"
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

// fakeAccountProvider は固定のアクティブアカウントを返すAccountProvider実装。
type fakeAccountProvider struct {
	account *model.Account
	err     error
}

func (p *fakeAccountProvider) Current() (*model.Account, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.account, nil
}

// fakeDataService は応答を設定できるDataServiceInterface実装。
type fakeDataService struct {
	news       []model.NewsItem
	refreshErr error
	toggled    model.Homework
	toggleErr  error
}

func (s *fakeDataService) RefreshNews(_ context.Context, _ *model.Account) ([]model.NewsItem, error) {
	return s.news, s.refreshErr
}

func (s *fakeDataService) RefreshHomework(_ context.Context, _ *model.Account, _ int) ([]model.Homework, error) {
	return nil, s.refreshErr
}

func (s *fakeDataService) RefreshGrades(_ context.Context, _ *model.Account, _ string) ([]model.Grade, error) {
	return nil, s.refreshErr
}

func (s *fakeDataService) RefreshTimetable(_ context.Context, _ *model.Account, _ int) ([]model.Lesson, error) {
	return nil, s.refreshErr
}

func (s *fakeDataService) RefreshAttendance(_ context.Context, _ *model.Account, _ string) (model.Attendance, error) {
	return model.Attendance{}, s.refreshErr
}

func (s *fakeDataService) RefreshEvaluations(_ context.Context, _ *model.Account, _ string) ([]model.Evaluation, error) {
	return nil, s.refreshErr
}

func (s *fakeDataService) RefreshChats(_ context.Context, _ *model.Account) ([]model.Chat, error) {
	return nil, s.refreshErr
}

func (s *fakeDataService) ToggleHomeworkDone(_ context.Context, _ *model.Account, _ int, _ string) (model.Homework, error) {
	return s.toggled, s.toggleErr
}

type dataFixture struct {
	handler *DataHandler
	service *fakeDataService
	stores  *store.Stores
	router  chi.Router
}

func newDataFixture(t *testing.T) *dataFixture {
	t.Helper()

	stores := store.NewStores(newMemoryStateRepo())
	if err := stores.BindTo(context.Background(), "acct-1"); err != nil {
		t.Fatalf("BindTo: %v", err)
	}

	provider := &fakeAccountProvider{account: &model.Account{LocalID: "acct-1", Service: model.ServicePronote}}
	service := &fakeDataService{}
	h := NewDataHandler(provider, service, stores)

	r := chi.NewRouter()
	r.Get("/api/news", h.GetNews)
	r.Get("/api/homework", h.GetHomework)
	r.Post("/api/homework", h.CreateHomework)
	r.Put("/api/homework/{id}/done", h.ToggleHomeworkDone)
	r.Get("/api/grades", h.GetGrades)
	r.Post("/api/refresh", h.Refresh)

	return &dataFixture{handler: h, service: service, stores: stores, router: r}
}

func errCodeOf(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var resp apiErrorResponse
	if err := json.Unmarshal(body.Bytes(), &resp); err != nil {
		t.Fatalf("error body unmarshal: %v", err)
	}
	return resp.Code
}

func TestGetNews_ReturnsCachedItems(t *testing.T) {
	f := newDataFixture(t)

	seed := []model.NewsItem{{ID: "n-1", Title: "Sortie scolaire"}}
	if err := f.stores.News.Replace(context.Background(), "acct-1", model.PeriodKeyAll, seed); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		News []model.NewsItem `json:"news"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.News) != 1 || resp.News[0].ID != "n-1" {
		t.Errorf("news = %v", resp.News)
	}
}

func TestGetNews_NoCurrentAccount_Conflict(t *testing.T) {
	stores := store.NewStores(newMemoryStateRepo())
	provider := &fakeAccountProvider{err: model.ErrNoCurrentAccount}
	h := NewDataHandler(provider, &fakeDataService{}, stores)

	rec := httptest.NewRecorder()
	h.GetNews(rec, httptest.NewRequest(http.MethodGet, "/api/news", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if code := errCodeOf(t, rec.Body); code != model.ErrCodeNoCurrentAccount {
		t.Errorf("code = %s", code)
	}
}

func TestGetHomework_ExplicitWeek(t *testing.T) {
	f := newDataFixture(t)

	seed := []model.Homework{{ID: "hw-1", Content: "Exercices p.42"}}
	if err := f.stores.Homework.Replace(context.Background(), "acct-1", model.WeekKey(245), seed); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/homework?week=245", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Week     int              `json:"week"`
		Homework []model.Homework `json:"homework"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Week != 245 || len(resp.Homework) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetHomework_InvalidWeekParam(t *testing.T) {
	f := newDataFixture(t)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/homework?week=abc", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRefresh_InvalidDomain(t *testing.T) {
	f := newDataFixture(t)

	body := strings.NewReader(`{"domain":"finance"}`)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", body))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := errCodeOf(t, rec.Body); code != model.ErrCodeInvalidDomain {
		t.Errorf("code = %s", code)
	}
}

func TestRefresh_News_ReturnsFreshData(t *testing.T) {
	f := newDataFixture(t)
	f.service.news = []model.NewsItem{{ID: "n-1", Title: "Sortie scolaire"}}

	body := strings.NewReader(`{"domain":"news"}`)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Domain string           `json:"domain"`
		Data   []model.NewsItem `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Domain != "news" || len(resp.Data) != 1 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRefresh_FetchFailure_BadGateway(t *testing.T) {
	f := newDataFixture(t)
	f.service.refreshErr = errors.New("backend unreachable")

	body := strings.NewReader(`{"domain":"news"}`)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/refresh", body))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if code := errCodeOf(t, rec.Body); code != model.ErrCodeRefreshFailed {
		t.Errorf("code = %s", code)
	}
}

func TestCreateHomework_StoresLocalItem(t *testing.T) {
	f := newDataFixture(t)

	due := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	payload, _ := json.Marshal(map[string]any{
		"subject": "Maths",
		"content": "Réviser le contrôle",
		"due":     due,
	})

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/homework", bytes.NewReader(payload)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created model.Homework
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.ID == "" {
		t.Error("created homework should have a generated ID")
	}
	if !created.Local {
		t.Error("created homework should be flagged local")
	}

	// 期限の属する週のキャッシュに追加される
	week := model.EpochWeekNumber(due)
	items, err := f.stores.Homework.Read("acct-1", model.WeekKey(week))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(items) != 1 || items[0].Content != "Réviser le contrôle" {
		t.Errorf("items = %v", items)
	}
}

func TestCreateHomework_MissingContent(t *testing.T) {
	f := newDataFixture(t)

	body := strings.NewReader(`{"subject":"Maths","due":"2026-03-02T08:00:00Z"}`)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/homework", body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestToggleHomeworkDone_OK(t *testing.T) {
	f := newDataFixture(t)
	f.service.toggled = model.Homework{ID: "hw-1", Done: true}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/homework/hw-1/done?week=245", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var hw model.Homework
	if err := json.Unmarshal(rec.Body.Bytes(), &hw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if hw.ID != "hw-1" || !hw.Done {
		t.Errorf("hw = %+v", hw)
	}
}

func TestToggleHomeworkDone_NotFound(t *testing.T) {
	f := newDataFixture(t)
	f.service.toggleErr = model.NewHomeworkNotFoundError("missing")

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/homework/missing/done?week=245", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if code := errCodeOf(t, rec.Body); code != model.ErrCodeHomeworkNotFound {
		t.Errorf("code = %s", code)
	}
}
