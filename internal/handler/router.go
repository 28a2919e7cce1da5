package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/cartable/internal/metrics"
	"github.com/hitoshi/cartable/internal/middleware"
	"github.com/hitoshi/cartable/internal/store"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger      *slog.Logger
	RateLimiter *middleware.RateLimiter

	// アカウント
	AccountService AccountServiceInterface

	// ドメインデータ
	AccountProvider AccountProvider
	DataService     DataServiceInterface
	Stores          *store.Stores

	// ヘルスチェック
	HealthChecker HealthChecker

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → RateLimit(General)
//
// ヘルスチェック（/health）とメトリクス（/metrics）はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	accountHandler := NewAccountHandler(deps.AccountService)
	dataHandler := NewDataHandler(deps.AccountProvider, deps.DataService, deps.Stores)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- レート制限の外のルート ---

	r.Get("/health", healthHandler.Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- API ルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// アカウント管理
		r.Route("/api/accounts", func(r chi.Router) {
			r.Get("/", accountHandler.ListAccounts)
			r.Post("/", accountHandler.CreateAccount)
			r.Get("/current", accountHandler.GetCurrent)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/switch", accountHandler.Switch)
				r.Patch("/", accountHandler.MutateProperty)
				r.Delete("/", accountHandler.Delete)
			})
		})

		// ドメインデータの読み出し（アクティブアカウントのキャッシュ）
		r.Get("/api/news", dataHandler.GetNews)
		r.Get("/api/grades", dataHandler.GetGrades)
		r.Get("/api/timetable", dataHandler.GetTimetable)
		r.Get("/api/attendance", dataHandler.GetAttendance)
		r.Get("/api/evaluations", dataHandler.GetEvaluations)
		r.Get("/api/chats", dataHandler.GetChats)

		// 宿題
		r.Route("/api/homework", func(r chi.Router) {
			r.Get("/", dataHandler.GetHomework)
			r.Post("/", dataHandler.CreateHomework)
			r.Put("/{id}/done", dataHandler.ToggleHomeworkDone)
		})

		// フォアグラウンド更新
		r.Post("/api/refresh", dataHandler.Refresh)
	})

	return r
}
