package handler

import (
	"encoding/json"
	"net/http"
)

// HealthChecker はヘルスチェックが依存するDB疎通確認のインターフェース。
// *sql.DB が実装する。
type HealthChecker interface {
	Ping() error
}

// HealthHandler はヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Health はプロセスとDB接続の健全性を返す。
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if h.checker != nil {
		if err := h.checker.Ping(); err != nil {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
