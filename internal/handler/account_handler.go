package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/cartable/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするレジストリ操作のインターフェース。
type AccountServiceInterface interface {
	// ListAccounts は同期対象の全アカウントをレジストリ順で返す。
	ListAccounts() []*model.Account
	// Current はアクティブなアカウントを返す。
	Current() (*model.Account, error)
	// Add はアカウントを登録して永続化する。
	Add(ctx context.Context, account *model.Account) error
	// SwitchTo はアクティブアカウントを切り替え、全ストアを再バインドする。
	SwitchTo(ctx context.Context, localID string) error
	// MutateProperty はアカウントの1プロパティを更新する。
	MutateProperty(ctx context.Context, localID, key string, value any) error
	// Remove はアカウントを削除する。委譲参照の解消を含む。
	Remove(ctx context.Context, localID string) error
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service AccountServiceInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface) *AccountHandler {
	return &AccountHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// accountResponse はアカウントのレスポンス。セッションハンドルは含めない。
type accountResponse struct {
	LocalID        string                  `json:"local_id"`
	Service        model.Service           `json:"service"`
	Name           string                  `json:"name"`
	SchoolName     string                  `json:"school_name"`
	ProfilePicture string                  `json:"profile_picture,omitempty"`
	External       bool                    `json:"external"`
	Delegates      map[model.Domain]string `json:"delegates,omitempty"`
	Preferences    model.Preferences       `json:"preferences"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// createAccountRequest はアカウント登録リクエストのボディ。
type createAccountRequest struct {
	Service        model.Service           `json:"service"`
	Name           string                  `json:"name"`
	SchoolName     string                  `json:"school_name"`
	ProfilePicture string                  `json:"profile_picture"`
	NewsFeedURL    string                  `json:"news_feed_url"`
	External       bool                    `json:"external"`
	AssociatedIDs  []string                `json:"associated_ids"`
	Delegates      map[model.Domain]string `json:"delegates"`
}

// mutatePropertyRequest はプロパティ更新リクエストのボディ。
type mutatePropertyRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		LocalID:        a.LocalID,
		Service:        a.Service,
		Name:           a.Name,
		SchoolName:     a.SchoolName,
		ProfilePicture: a.ProfilePicture,
		External:       a.External,
		Delegates:      a.Delegates,
		Preferences:    a.Preferences,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

// ListAccounts はアカウント一覧を取得する。
// GET /api/accounts
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := h.service.ListAccounts()

	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"accounts": out})
}

// CreateAccount はアカウントを登録する。
// POST /api/accounts
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	account := &model.Account{
		LocalID:        uuid.New().String(),
		Service:        req.Service,
		Name:           req.Name,
		SchoolName:     req.SchoolName,
		ProfilePicture: req.ProfilePicture,
		NewsFeedURL:    req.NewsFeedURL,
		External:       req.External,
		AssociatedIDs:  req.AssociatedIDs,
		Delegates:      req.Delegates,
	}

	if err := h.service.Add(r.Context(), account); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// GetCurrent はアクティブなアカウントを取得する。
// GET /api/accounts/current
func (h *AccountHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// Switch はアクティブアカウントを切り替える。
// POST /api/accounts/:id/switch
func (h *AccountHandler) Switch(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")

	if err := h.service.SwitchTo(r.Context(), localID); err != nil {
		handleServiceError(w, err)
		return
	}

	account, err := h.service.Current()
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toAccountResponse(account))
}

// MutateProperty はアカウントの1プロパティを更新する。
// PATCH /api/accounts/:id
func (h *AccountHandler) MutateProperty(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")

	var req mutatePropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "keyとvalueを指定してください。",
			Category: "validation",
			Action:   "更新するプロパティ名と値を指定してください。",
		})
		return
	}

	value, err := decodePropertyValue(req.Key, req.Value)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "valueの形式が不正です。",
			Category: "validation",
			Action:   "プロパティに対応する型の値を指定してください。",
		})
		return
	}

	if err := h.service.MutateProperty(r.Context(), localID, req.Key, value); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodePropertyValue はプロパティキーに応じてJSON値を型付きの値に変換する。
func decodePropertyValue(key string, raw json.RawMessage) (any, error) {
	switch key {
	case "notifications_enabled":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return b, nil
	case "notify_domains":
		var m map[string]bool
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Delete はアカウントを削除する。
// DELETE /api/accounts/:id
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "id")

	if err := h.service.Remove(r.Context(), localID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
