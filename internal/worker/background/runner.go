// Package background はアカウント横断のバックグラウンド同期処理を提供する。
// ランナー、再入ガード、スケジューリング用のレジストラを含む。
package background

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hitoshi/cartable/internal/diff"
	"github.com/hitoshi/cartable/internal/metrics"
	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/store"
)

// TaskResult は同期サイクルの結果を表す。
type TaskResult string

const (
	// ResultNoData は新着なし（重複実行によるスキップを含む）。
	ResultNoData TaskResult = "no_data"
	// ResultNewData はいずれかのドメインで差分を検出した。
	ResultNewData TaskResult = "new_data"
	// ResultFailed は新着なしだが、いずれかの更新が失敗した。
	ResultFailed TaskResult = "failed"
)

// AccountSwitcher はアカウント一覧とアクティブアカウント切り替えのインターフェース。
// account.Registryが実装する。
type AccountSwitcher interface {
	ListAccounts() []*model.Account
	SwitchTo(ctx context.Context, localID string) error
}

// Refresher はドメイン更新操作のインターフェース。service.Dispatcherが実装する。
type Refresher interface {
	RefreshNews(ctx context.Context, account *model.Account) ([]model.NewsItem, error)
	RefreshHomework(ctx context.Context, account *model.Account, week int) ([]model.Homework, error)
	RefreshGrades(ctx context.Context, account *model.Account, period string) ([]model.Grade, error)
	RefreshTimetable(ctx context.Context, account *model.Account, week int) ([]model.Lesson, error)
	RefreshAttendance(ctx context.Context, account *model.Account, period string) (model.Attendance, error)
	RefreshEvaluations(ctx context.Context, account *model.Account, period string) ([]model.Evaluation, error)
}

// Notifier は差分からの通知発火のインターフェース。notify.Dispatcherが実装する。
type Notifier interface {
	NotifyNews(ctx context.Context, account *model.Account, changed []model.NewsItem) error
	NotifyHomework(ctx context.Context, account *model.Account, fresh []model.Homework) error
	NotifyGrades(ctx context.Context, account *model.Account, fresh []model.Grade) error
	NotifyEvaluations(ctx context.Context, account *model.Account, fresh []model.Evaluation) error
	NotifyAttendance(ctx context.Context, account *model.Account, ad diff.AttendanceDiff) error
	NotifyLessons(ctx context.Context, account *model.Account, todays []model.Lesson) error
}

// Runner はバックグラウンド同期サイクルを実行する。
// 1サイクルは全対象アカウントを順に巡回し、アカウントごとに固定順の
// ドメイン列を処理する。更新前後のキャッシュスナップショットから差分を
// 計算し、通知を発火する。
type Runner struct {
	accounts   AccountSwitcher
	dispatcher Refresher
	notifier   Notifier
	stores     *store.Stores
	collector  metrics.MetricsCollector
	logger     *slog.Logger

	// running は実行中ガード。CASで獲得し、獲得できなければサイクルを
	// 丸ごとスキップする。待機もキューイングもしない。
	running atomic.Bool

	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// NewRunner はRunnerを生成する。
func NewRunner(accounts AccountSwitcher, dispatcher Refresher, notifier Notifier, stores *store.Stores, collector metrics.MetricsCollector, logger *slog.Logger) *Runner {
	return &Runner{
		accounts:   accounts,
		dispatcher: dispatcher,
		notifier:   notifier,
		stores:     stores,
		collector:  collector,
		logger:     logger,
		now:        time.Now,
	}
}

// RunCycle は同期サイクルを1回実行する。
// 前回サイクルが実行中の場合は即座にResultNoDataを返す。
// アカウント間・ドメイン間で失敗は隔離され、1つの失敗が残りの処理を
// 止めることはない。
func (r *Runner) RunCycle(ctx context.Context) TaskResult {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("前回の同期サイクルが実行中のためスキップします")
		r.collector.RecordCycleOverlapSkip()
		return ResultNoData
	}
	defer r.running.Store(false)

	start := r.now()
	accounts := r.accounts.ListAccounts()

	r.logger.Info("同期サイクルを開始します",
		slog.Int("account_count", len(accounts)),
	)

	anyNew := false
	anyFailed := false

	for _, acct := range accounts {
		switch r.syncAccount(ctx, acct) {
		case ResultNewData:
			anyNew = true
		case ResultFailed:
			anyFailed = true
		}
	}

	result := ResultNoData
	if anyNew {
		result = ResultNewData
	} else if anyFailed {
		result = ResultFailed
	}

	duration := time.Since(start)
	r.collector.RecordCycleLatency(duration)
	r.collector.RecordCycleResult(string(result))

	r.logger.Info("同期サイクルが完了しました",
		slog.Int("account_count", len(accounts)),
		slog.String("result", string(result)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result
}

// syncAccount は1アカウント分の同期を実行する。
// アクティブアカウントを切り替えたうえで、固定順のドメイン列を処理する。
// chatドメインはバックグラウンド同期の対象外。
func (r *Runner) syncAccount(ctx context.Context, acct *model.Account) TaskResult {
	if err := r.accounts.SwitchTo(ctx, acct.LocalID); err != nil {
		r.logger.Error("アカウントの切り替えに失敗したためスキップします",
			slog.String("account", acct.LocalID),
			slog.String("error", err.Error()),
		)
		return ResultFailed
	}

	anyNew := false
	anyFailed := false

	for _, domain := range model.BackgroundDomains() {
		diffCount, err := r.syncDomain(ctx, acct, domain)
		if err != nil {
			// 失敗はドメイン単位で隔離し、残りのドメインの処理を続ける
			r.collector.RecordDomainFailure(string(domain))
			anyFailed = true
			continue
		}
		if diffCount > 0 {
			r.collector.RecordDiffsDetected(string(domain), diffCount)
			anyNew = true
		}
	}

	if anyNew {
		return ResultNewData
	}
	if anyFailed {
		return ResultFailed
	}
	return ResultNoData
}

// syncDomain は1ドメイン分の更新・差分計算・通知を実行し、検出差分数を返す。
func (r *Runner) syncDomain(ctx context.Context, acct *model.Account, domain model.Domain) (int, error) {
	now := r.now()

	switch domain {
	case model.DomainNews:
		return r.syncNews(ctx, acct)
	case model.DomainHomework:
		return r.syncHomework(ctx, acct, model.EpochWeekNumber(now))
	case model.DomainGrades:
		return r.syncGrades(ctx, acct, model.CurrentPeriod(now))
	case model.DomainTimetable:
		return r.syncTimetable(ctx, acct, model.EpochWeekNumber(now))
	case model.DomainAttendance:
		return r.syncAttendance(ctx, acct, model.CurrentPeriod(now))
	case model.DomainEvaluation:
		return r.syncEvaluations(ctx, acct, model.CurrentPeriod(now))
	}
	return 0, nil
}

func (r *Runner) syncNews(ctx context.Context, acct *model.Account) (int, error) {
	before, err := r.stores.News.Read(acct.LocalID, model.PeriodKeyAll)
	if err != nil {
		return 0, err
	}

	after, err := r.dispatcher.RefreshNews(ctx, acct)
	if err != nil {
		return 0, err
	}

	changed := diff.ChangedNews(before, after)
	if len(changed) == 0 {
		return 0, nil
	}

	r.notifyOrLog(acct, model.DomainNews, r.notifier.NotifyNews(ctx, acct, changed))
	return len(changed), nil
}

func (r *Runner) syncHomework(ctx context.Context, acct *model.Account, week int) (int, error) {
	before, err := r.stores.Homework.Read(acct.LocalID, model.WeekKey(week))
	if err != nil {
		return 0, err
	}

	after, err := r.dispatcher.RefreshHomework(ctx, acct, week)
	if err != nil {
		return 0, err
	}

	fresh := diff.NewHomework(before, after)
	if len(fresh) == 0 {
		return 0, nil
	}

	r.notifyOrLog(acct, model.DomainHomework, r.notifier.NotifyHomework(ctx, acct, fresh))
	return len(fresh), nil
}

func (r *Runner) syncGrades(ctx context.Context, acct *model.Account, period string) (int, error) {
	before, err := r.stores.Grades.Read(acct.LocalID, period)
	if err != nil {
		return 0, err
	}

	after, err := r.dispatcher.RefreshGrades(ctx, acct, period)
	if err != nil {
		return 0, err
	}

	fresh := diff.NewGrades(before, after)
	if len(fresh) == 0 {
		return 0, nil
	}

	r.notifyOrLog(acct, model.DomainGrades, r.notifier.NotifyGrades(ctx, acct, fresh))
	return len(fresh), nil
}

// syncTimetable は時間割を更新し、当日の状態テキスト付き授業を再計算する。
// 時間割は履歴差分を持たないため、検出数は当日のフラグ付き授業の数になる。
func (r *Runner) syncTimetable(ctx context.Context, acct *model.Account, week int) (int, error) {
	after, err := r.dispatcher.RefreshTimetable(ctx, acct, week)
	if err != nil {
		return 0, err
	}

	now := r.now()

	todays := make([]model.Lesson, 0, len(after))
	for _, lesson := range after {
		if lesson.SameDay(now) {
			todays = append(todays, lesson)
		}
	}

	flagged := diff.FlaggedLessonsToday(todays, now)
	if len(flagged) == 0 {
		return 0, nil
	}

	r.notifyOrLog(acct, model.DomainTimetable, r.notifier.NotifyLessons(ctx, acct, todays))
	return len(flagged), nil
}

func (r *Runner) syncAttendance(ctx context.Context, acct *model.Account, period string) (int, error) {
	beforeItems, err := r.stores.Attendance.Read(acct.LocalID, period)
	if err != nil {
		return 0, err
	}
	var before model.Attendance
	if len(beforeItems) > 0 {
		before = beforeItems[0]
	}

	after, err := r.dispatcher.RefreshAttendance(ctx, acct, period)
	if err != nil {
		return 0, err
	}

	ad := diff.NewAttendance(before, after)
	if ad.Total() == 0 {
		return 0, nil
	}

	r.notifyOrLog(acct, model.DomainAttendance, r.notifier.NotifyAttendance(ctx, acct, ad))
	return ad.Total(), nil
}

func (r *Runner) syncEvaluations(ctx context.Context, acct *model.Account, period string) (int, error) {
	before, err := r.stores.Evaluation.Read(acct.LocalID, period)
	if err != nil {
		return 0, err
	}

	after, err := r.dispatcher.RefreshEvaluations(ctx, acct, period)
	if err != nil {
		return 0, err
	}

	fresh := diff.NewEvaluations(before, after)
	if len(fresh) == 0 {
		return 0, nil
	}

	r.notifyOrLog(acct, model.DomainEvaluation, r.notifier.NotifyEvaluations(ctx, acct, fresh))
	return len(fresh), nil
}

// notifyOrLog は通知発火の失敗をログに記録する。
// 通知の失敗は同期結果に影響しない（差分検出自体は成功している）。
func (r *Runner) notifyOrLog(acct *model.Account, domain model.Domain, err error) {
	if err != nil {
		r.logger.Error("通知の発火に失敗しました",
			slog.String("account", acct.LocalID),
			slog.String("domain", string(domain)),
			slog.String("error", err.Error()),
		)
	}
}
