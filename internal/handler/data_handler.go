package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/store"
)

// AccountProvider はアクティブアカウントの取得のインターフェース。
type AccountProvider interface {
	Current() (*model.Account, error)
}

// DataServiceInterface はデータハンドラーが必要とするディスパッチャ操作のインターフェース。
type DataServiceInterface interface {
	RefreshNews(ctx context.Context, account *model.Account) ([]model.NewsItem, error)
	RefreshHomework(ctx context.Context, account *model.Account, week int) ([]model.Homework, error)
	RefreshGrades(ctx context.Context, account *model.Account, period string) ([]model.Grade, error)
	RefreshTimetable(ctx context.Context, account *model.Account, week int) ([]model.Lesson, error)
	RefreshAttendance(ctx context.Context, account *model.Account, period string) (model.Attendance, error)
	RefreshEvaluations(ctx context.Context, account *model.Account, period string) ([]model.Evaluation, error)
	RefreshChats(ctx context.Context, account *model.Account) ([]model.Chat, error)
	ToggleHomeworkDone(ctx context.Context, account *model.Account, week int, homeworkID string) (model.Homework, error)
}

// DataHandler はドメインデータのHTTPハンドラー。
// 読み出しはアクティブアカウントのキャッシュストアから行い、
// 更新はディスパッチャ経由のフォアグラウンド更新になる。
type DataHandler struct {
	accounts AccountProvider
	service  DataServiceInterface
	stores   *store.Stores

	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// NewDataHandler はDataHandlerを生成する。
func NewDataHandler(accounts AccountProvider, service DataServiceInterface, stores *store.Stores) *DataHandler {
	return &DataHandler{
		accounts: accounts,
		service:  service,
		stores:   stores,
		now:      time.Now,
	}
}

// --- リクエスト型 ---

// refreshRequest はフォアグラウンド更新リクエストのボディ。
type refreshRequest struct {
	Domain string `json:"domain"`
	Week   *int   `json:"week,omitempty"`
	Period string `json:"period,omitempty"`
}

// createHomeworkRequest はローカル宿題作成リクエストのボディ。
type createHomeworkRequest struct {
	Subject string    `json:"subject"`
	Content string    `json:"content"`
	Due     time.Time `json:"due"`
}

// weekParam はクエリパラメータから週番号を取得する。未指定は現在の週。
func (h *DataHandler) weekParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("week")
	if v == "" {
		return model.EpochWeekNumber(h.now()), nil
	}
	return strconv.Atoi(v)
}

// periodParam はクエリパラメータから学期名を取得する。未指定は現在の学期。
func (h *DataHandler) periodParam(r *http.Request) string {
	if v := r.URL.Query().Get("period"); v != "" {
		return v
	}
	return model.CurrentPeriod(h.now())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// GetNews はキャッシュ済みのお知らせ一覧を取得する。
// GET /api/news
func (h *DataHandler) GetNews(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items, err := h.stores.News.Read(account.LocalID, model.PeriodKeyAll)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"news": items})
}

// GetHomework はキャッシュ済みの宿題一覧を取得する。
// GET /api/homework?week=N
func (h *DataHandler) GetHomework(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	week, err := h.weekParam(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPeriodError(r.URL.Query().Get("week")))
		return
	}

	items, err := h.stores.Homework.Read(account.LocalID, model.WeekKey(week))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"week": week, "homework": items})
}

// GetGrades はキャッシュ済みの成績一覧を取得する。
// GET /api/grades?period=xxx
func (h *DataHandler) GetGrades(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	period := h.periodParam(r)
	items, err := h.stores.Grades.Read(account.LocalID, period)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"period": period, "grades": items})
}

// GetTimetable はキャッシュ済みの時間割を取得する。
// GET /api/timetable?week=N
func (h *DataHandler) GetTimetable(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	week, err := h.weekParam(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPeriodError(r.URL.Query().Get("week")))
		return
	}

	items, err := h.stores.Timetable.Read(account.LocalID, model.WeekKey(week))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"week": week, "timetable": items})
}

// GetAttendance はキャッシュ済みの出欠集約を取得する。
// GET /api/attendance?period=xxx
func (h *DataHandler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	period := h.periodParam(r)
	items, err := h.stores.Attendance.Read(account.LocalID, period)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var attendance model.Attendance
	if len(items) > 0 {
		attendance = items[0]
	}
	writeJSON(w, map[string]any{"period": period, "attendance": attendance})
}

// GetEvaluations はキャッシュ済みのコンピテンシー評価一覧を取得する。
// GET /api/evaluations?period=xxx
func (h *DataHandler) GetEvaluations(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	period := h.periodParam(r)
	items, err := h.stores.Evaluation.Read(account.LocalID, period)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"period": period, "evaluations": items})
}

// GetChats はキャッシュ済みのメッセージスレッド一覧を取得する。
// GET /api/chats
func (h *DataHandler) GetChats(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	items, err := h.stores.Chat.Read(account.LocalID, model.PeriodKeyAll)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"chats": items})
}

// Refresh は指定ドメインのフォアグラウンド更新を実行し、更新後のデータを返す。
// POST /api/refresh
func (h *DataHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if !model.IsValidDomain(req.Domain) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidDomainError(req.Domain))
		return
	}

	week := model.EpochWeekNumber(h.now())
	if req.Week != nil {
		week = *req.Week
	}
	period := req.Period
	if period == "" {
		period = model.CurrentPeriod(h.now())
	}

	ctx := r.Context()
	var payload any

	switch model.Domain(req.Domain) {
	case model.DomainNews:
		payload, err = h.service.RefreshNews(ctx, account)
	case model.DomainHomework:
		payload, err = h.service.RefreshHomework(ctx, account, week)
	case model.DomainGrades:
		payload, err = h.service.RefreshGrades(ctx, account, period)
	case model.DomainTimetable:
		payload, err = h.service.RefreshTimetable(ctx, account, week)
	case model.DomainAttendance:
		payload, err = h.service.RefreshAttendance(ctx, account, period)
	case model.DomainEvaluation:
		payload, err = h.service.RefreshEvaluations(ctx, account, period)
	case model.DomainChat:
		payload, err = h.service.RefreshChats(ctx, account)
	}
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadGateway, model.NewRefreshFailedError(req.Domain))
		return
	}

	writeJSON(w, map[string]any{"domain": req.Domain, "data": payload})
}

// CreateHomework はユーザー作成のローカル宿題を追加する。
// POST /api/homework
func (h *DataHandler) CreateHomework(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var req createHomeworkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" || req.Due.IsZero() {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "contentとdueを指定してください。",
			Category: "validation",
			Action:   "宿題の内容と提出期限を指定してください。",
		})
		return
	}

	hw := model.Homework{
		ID:      uuid.New().String(),
		Subject: req.Subject,
		Content: req.Content,
		Due:     req.Due,
		Local:   true,
	}

	week := model.EpochWeekNumber(req.Due)
	err = h.stores.Homework.Mutate(r.Context(), account.LocalID, model.WeekKey(week), func(items []model.Homework) []model.Homework {
		return append(items, hw)
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(hw)
}

// ToggleHomeworkDone は宿題の完了状態を反転する。
// PUT /api/homework/:id/done?week=N
func (h *DataHandler) ToggleHomeworkDone(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	week, err := h.weekParam(r)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidPeriodError(r.URL.Query().Get("week")))
		return
	}

	homeworkID := chi.URLParam(r, "id")

	hw, err := h.service.ToggleHomeworkDone(r.Context(), account, week, homeworkID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, hw)
}
