// Package adapter はバックエンドサービスごとのフェッチ実装の境界を定義する。
// 各アダプタは自サービスのプロトコル・パース処理を内部に閉じ込め、
// 正規化済みのドメインアイテムだけを返す。Pronote等の具象プロトコル
// クライアントはこのリポジトリの外にあり、同一インターフェースを実装する。
package adapter

import (
	"context"

	"github.com/hitoshi/cartable/internal/model"
)

// Adapter は1バックエンドサービス分のフェッチ能力を表す。
// サポートしないドメインの操作はmodel.ErrNotSupportedを返すこと。
// ディスパッチャはそれをエラーではなくスキップとして扱う。
type Adapter interface {
	// Service は担当するサービス種別を返す。
	Service() model.Service

	// FetchNews はお知らせ一覧を取得する。
	FetchNews(ctx context.Context, account *model.Account) ([]model.NewsItem, error)

	// FetchHomework は指定週の宿題一覧を取得する。
	FetchHomework(ctx context.Context, account *model.Account, week int) ([]model.Homework, error)

	// FetchGrades は指定学期の成績一覧を取得する。
	FetchGrades(ctx context.Context, account *model.Account, period string) ([]model.Grade, error)

	// FetchTimetable は指定週の時間割を取得する。
	FetchTimetable(ctx context.Context, account *model.Account, week int) ([]model.Lesson, error)

	// FetchAttendance は指定学期の出欠集約を取得する。
	FetchAttendance(ctx context.Context, account *model.Account, period string) (model.Attendance, error)

	// FetchEvaluations は指定学期のコンピテンシー評価一覧を取得する。
	FetchEvaluations(ctx context.Context, account *model.Account, period string) ([]model.Evaluation, error)

	// FetchChats はメッセージスレッド一覧を取得する。
	FetchChats(ctx context.Context, account *model.Account) ([]model.Chat, error)

	// ToggleHomeworkDone は宿題の完了状態をバックエンド側で切り替える。
	ToggleHomeworkDone(ctx context.Context, account *model.Account, hw model.Homework) error
}

// Registry はサービス種別からアダプタへの静的な対応表。
// 起動時に一度構築され、以降は読み取り専用で使用される。
type Registry struct {
	adapters map[model.Service]Adapter
}

// NewRegistry は指定アダプタ群からRegistryを構築する。
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[model.Service]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Service()] = a
	}
	return &Registry{adapters: m}
}

// Resolve はサービス種別に対応するアダプタを返す。
// 未登録の場合は第2戻り値がfalseになる。
func (r *Registry) Resolve(s model.Service) (Adapter, bool) {
	a, ok := r.adapters[s]
	return a, ok
}
