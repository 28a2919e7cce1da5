// Package service はドメインごとの更新操作を単一の入口に集約するディスパッチャを
// 提供する。呼び出し側はアカウントとドメインを指定するだけでよく、サービス種別の
// 分岐・マルチサービスの委譲解決・キャッシュストアへの書き込みはここで行う。
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/cartable/internal/adapter"
	"github.com/hitoshi/cartable/internal/diff"
	"github.com/hitoshi/cartable/internal/metrics"
	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/store"
)

// AccountResolver はLocalIDからアカウントを引くためのインターフェース。
// account.Registryが実装する。委譲先アカウントの解決に使用する。
type AccountResolver interface {
	Get(localID string) (*model.Account, error)
}

// Dispatcher はサービスディスパッチャ。
// 各Refresh操作は要求元アカウントを明示的に受け取り、フェッチ結果を
// 要求元アカウントのストアへ書き込む。マルチサービスアカウントの場合は
// ドメイン別の委譲先アカウントでフェッチし、書き込み先は要求元のままとなる。
type Dispatcher struct {
	registry  *adapter.Registry
	stores    *store.Stores
	accounts  AccountResolver
	collector metrics.MetricsCollector
	logger    *slog.Logger

	// fetchTimeout は1フェッチあたりの上限時間。
	// 応答しないバックエンドが更新サイクル全体を停止させることを防ぐ。
	fetchTimeout time.Duration
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(registry *adapter.Registry, stores *store.Stores, accounts AccountResolver, collector metrics.MetricsCollector, logger *slog.Logger, fetchTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		stores:       stores,
		accounts:     accounts,
		collector:    collector,
		logger:       logger,
		fetchTimeout: fetchTimeout,
	}
}

// resolveTarget はフェッチに使用するアカウントとアダプタを解決する。
// マルチサービスアカウントの場合はドメインの委譲先アカウントに解決する。
// 第3戻り値がtrueの場合、この操作はスキップすべきである（委譲先未設定・
// アダプタ未登録）。スキップはエラーではなく、キャッシュは現状維持となる。
func (d *Dispatcher) resolveTarget(account *model.Account, domain model.Domain) (*model.Account, adapter.Adapter, bool, error) {
	target := account

	if account.IsMultiService() {
		delegateID, ok := account.DelegateFor(domain)
		if !ok {
			// 委譲先未設定のドメインはスキップ。該当ストアは現状維持。
			d.logger.Warn("ドメインに委譲先サービスが設定されていません",
				slog.String("account", account.LocalID),
				slog.String("domain", string(domain)),
			)
			d.collector.RecordDomainSkip(string(domain))
			return nil, nil, true, nil
		}

		delegate, err := d.accounts.Get(delegateID)
		if err != nil {
			return nil, nil, false, fmt.Errorf("委譲先アカウントの解決に失敗 (%s): %w", delegateID, err)
		}
		if delegate.IsMultiService() {
			return nil, nil, false, fmt.Errorf("委譲先にマルチサービスアカウントは指定できません: %s", delegateID)
		}
		target = delegate
	}

	adp, ok := d.registry.Resolve(target.Service)
	if !ok {
		d.logger.Warn("サービスのアダプタが未登録のためスキップします",
			slog.String("account", target.LocalID),
			slog.String("service", string(target.Service)),
			slog.String("domain", string(domain)),
		)
		d.collector.RecordDomainSkip(string(domain))
		return nil, nil, true, nil
	}

	return target, adp, false, nil
}

// fetchContext は1フェッチ分のタイムアウト付きコンテキストを返す。
func (d *Dispatcher) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.fetchTimeout)
}

// logFetchFailure はフェッチ失敗をログに記録する。キャッシュは現状維持。
func (d *Dispatcher) logFetchFailure(account *model.Account, domain model.Domain, err error) {
	d.logger.Error("ドメインの取得に失敗しました。キャッシュを維持します",
		slog.String("account", account.LocalID),
		slog.String("domain", string(domain)),
		slog.String("error", err.Error()),
	)
}

// RefreshNews はお知らせを更新し、更新後のキャッシュ内容を返す。
// フェッチ失敗時・スキップ時はキャッシュを現状維持のまま返す。
func (d *Dispatcher) RefreshNews(ctx context.Context, account *model.Account) ([]model.NewsItem, error) {
	cached, err := d.stores.News.Read(account.LocalID, model.PeriodKeyAll)
	if err != nil {
		return nil, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainNews)
	if err != nil {
		return nil, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	items, err := adp.FetchNews(fctx, target)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			d.collector.RecordDomainSkip(string(model.DomainNews))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainNews, err)
		return cached, fmt.Errorf("お知らせの取得に失敗: %w", err)
	}

	if err := d.stores.News.Replace(ctx, account.LocalID, model.PeriodKeyAll, items); err != nil {
		return nil, err
	}
	return items, nil
}

// RefreshHomework は指定週の宿題を更新し、更新後のキャッシュ内容を返す。
// バックエンド結果と衝突しないユーザー作成のローカル宿題は更新を生き延びる。
func (d *Dispatcher) RefreshHomework(ctx context.Context, account *model.Account, week int) ([]model.Homework, error) {
	periodKey := model.WeekKey(week)

	cached, err := d.stores.Homework.Read(account.LocalID, periodKey)
	if err != nil {
		return nil, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainHomework)
	if err != nil {
		return nil, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	fetched, err := adp.FetchHomework(fctx, target, week)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			d.collector.RecordDomainSkip(string(model.DomainHomework))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainHomework, err)
		return cached, fmt.Errorf("宿題の取得に失敗: %w", err)
	}

	merged := store.MergeLocalAdditions(fetched, cached, diff.HomeworkKey,
		func(h model.Homework) bool { return h.Local })

	if err := d.stores.Homework.Replace(ctx, account.LocalID, periodKey, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// RefreshGrades は指定学期の成績を更新し、更新後のキャッシュ内容を返す。
func (d *Dispatcher) RefreshGrades(ctx context.Context, account *model.Account, period string) ([]model.Grade, error) {
	cached, err := d.stores.Grades.Read(account.LocalID, period)
	if err != nil {
		return nil, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainGrades)
	if err != nil {
		return nil, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	items, err := adp.FetchGrades(fctx, target, period)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			d.collector.RecordDomainSkip(string(model.DomainGrades))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainGrades, err)
		return cached, fmt.Errorf("成績の取得に失敗: %w", err)
	}

	if err := d.stores.Grades.Replace(ctx, account.LocalID, period, items); err != nil {
		return nil, err
	}
	return items, nil
}

// RefreshTimetable は指定週の時間割を更新し、更新後のキャッシュ内容を返す。
func (d *Dispatcher) RefreshTimetable(ctx context.Context, account *model.Account, week int) ([]model.Lesson, error) {
	periodKey := model.WeekKey(week)

	cached, err := d.stores.Timetable.Read(account.LocalID, periodKey)
	if err != nil {
		return nil, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainTimetable)
	if err != nil {
		return nil, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	items, err := adp.FetchTimetable(fctx, target, week)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			d.collector.RecordDomainSkip(string(model.DomainTimetable))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainTimetable, err)
		return cached, fmt.Errorf("時間割の取得に失敗: %w", err)
	}

	if err := d.stores.Timetable.Replace(ctx, account.LocalID, periodKey, items); err != nil {
		return nil, err
	}
	return items, nil
}

// RefreshAttendance は指定学期の出欠集約を更新し、更新後のキャッシュ内容を返す。
// 出欠はピリオドキーあたり集約1件として格納される。
func (d *Dispatcher) RefreshAttendance(ctx context.Context, account *model.Account, period string) (model.Attendance, error) {
	cached, err := d.readAttendance(account.LocalID, period)
	if err != nil {
		return model.Attendance{}, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainAttendance)
	if err != nil {
		return model.Attendance{}, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	attendance, err := adp.FetchAttendance(fctx, target, period)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			d.collector.RecordDomainSkip(string(model.DomainAttendance))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainAttendance, err)
		return cached, fmt.Errorf("出欠情報の取得に失敗: %w", err)
	}

	if err := d.stores.Attendance.Replace(ctx, account.LocalID, period, []model.Attendance{attendance}); err != nil {
		return model.Attendance{}, err
	}
	return attendance, nil
}

// readAttendance はキャッシュ済みの出欠集約を返す。未キャッシュは空集約。
func (d *Dispatcher) readAttendance(localID, period string) (model.Attendance, error) {
	items, err := d.stores.Attendance.Read(localID, period)
	if err != nil {
		return model.Attendance{}, err
	}
	if len(items) == 0 {
		return model.Attendance{}, nil
	}
	return items[0], nil
}

// RefreshEvaluations は指定学期のコンピテンシー評価を更新し、更新後のキャッシュ内容を返す。
func (d *Dispatcher) RefreshEvaluations(ctx context.Context, account *model.Account, period string) ([]model.Evaluation, error) {
	cached, err := d.stores.Evaluation.Read(account.LocalID, period)
	if err != nil {
		return nil, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainEvaluation)
	if err != nil {
		return nil, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	items, err := adp.FetchEvaluations(fctx, target, period)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			d.collector.RecordDomainSkip(string(model.DomainEvaluation))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainEvaluation, err)
		return cached, fmt.Errorf("評価の取得に失敗: %w", err)
	}

	if err := d.stores.Evaluation.Replace(ctx, account.LocalID, period, items); err != nil {
		return nil, err
	}
	return items, nil
}

// RefreshChats はメッセージスレッド一覧を更新し、更新後のキャッシュ内容を返す。
// chatドメインはバックグラウンド更新の対象外で、明示要求時のみ更新される。
func (d *Dispatcher) RefreshChats(ctx context.Context, account *model.Account) ([]model.Chat, error) {
	cached, err := d.stores.Chat.Read(account.LocalID, model.PeriodKeyAll)
	if err != nil {
		return nil, err
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainChat)
	if err != nil {
		return nil, err
	}
	if skip {
		return cached, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	items, err := adp.FetchChats(fctx, target)
	if err != nil {
		if errors.Is(err, model.ErrNotSupported) {
			// メッセージ機能を持たないサービスはスキップ扱い
			d.collector.RecordDomainSkip(string(model.DomainChat))
			return cached, nil
		}
		d.logFetchFailure(account, model.DomainChat, err)
		return cached, fmt.Errorf("メッセージの取得に失敗: %w", err)
	}

	if err := d.stores.Chat.Replace(ctx, account.LocalID, model.PeriodKeyAll, items); err != nil {
		return nil, err
	}
	return items, nil
}

// ToggleHomeworkDone は指定週の宿題の完了状態を反転する。
// キャッシュを増分更新し、バックエンド由来の宿題はバックエンド側にも反映を試みる。
// バックエンド反映の失敗はログのみで、ローカルの状態変更は維持される。
func (d *Dispatcher) ToggleHomeworkDone(ctx context.Context, account *model.Account, week int, homeworkID string) (model.Homework, error) {
	periodKey := model.WeekKey(week)

	var toggled model.Homework
	found := false

	err := d.stores.Homework.Mutate(ctx, account.LocalID, periodKey, func(items []model.Homework) []model.Homework {
		for i := range items {
			if items[i].ID == homeworkID {
				items[i].Done = !items[i].Done
				toggled = items[i]
				found = true
				break
			}
		}
		return items
	})
	if err != nil {
		return model.Homework{}, err
	}
	if !found {
		return model.Homework{}, model.NewHomeworkNotFoundError(homeworkID)
	}

	if toggled.Local {
		return toggled, nil
	}

	target, adp, skip, err := d.resolveTarget(account, model.DomainHomework)
	if err != nil || skip {
		return toggled, nil
	}

	fctx, cancel := d.fetchContext(ctx)
	defer cancel()

	if err := adp.ToggleHomeworkDone(fctx, target, toggled); err != nil && !errors.Is(err, model.ErrNotSupported) {
		d.logger.Warn("宿題の完了状態のバックエンド反映に失敗しました",
			slog.String("account", account.LocalID),
			slog.String("homework_id", homeworkID),
			slog.String("error", err.Error()),
		)
	}

	return toggled, nil
}
