// Package cleanup は同期状態ドキュメントの自動削除ジョブを提供する。
// 削除済みアカウントに紐付く孤立ドキュメントと、保持期間（デフォルト180日）を
// 超過した古いドキュメントを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/repository"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は同期状態ドキュメントの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db            Executor
	repo          repository.StateRepository
	logger        *slog.Logger
	RetentionDays int // ドキュメントの保持日数（デフォルト: 180）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は180日。
func NewCleanupJob(db Executor, repo repository.StateRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		repo:          repo,
		logger:        logger,
		RetentionDays: 180,
	}
}

// Run は孤立ドキュメントの掃き出しと保持期間超過ドキュメントの削除を実行する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	orphaned, err := j.sweepOrphans(ctx)
	if err != nil {
		return err
	}

	expired, err := j.sweepExpired(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int("orphaned_count", orphaned),
		slog.Int64("expired_count", expired),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// sweepOrphans は登録済みアカウントのいずれにも属さないドメインドキュメントを削除する。
// アカウント削除後に残された ${localID}-${domain}-storage キーが対象になる。
func (j *CleanupJob) sweepOrphans(ctx context.Context) (int, error) {
	raw, err := j.repo.Get(ctx, model.AccountsStorageKey)
	if err != nil {
		return 0, fmt.Errorf("アカウント一覧の読み込みに失敗: %w", err)
	}

	var accounts []model.Account
	if raw != nil {
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return 0, fmt.Errorf("アカウント一覧の復元に失敗: %w", err)
		}
	}

	known := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		known[a.LocalID] = struct{}{}
	}

	keys, err := j.repo.ListKeys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("キー一覧の取得に失敗: %w", err)
	}

	deleted := 0
	for _, key := range keys {
		if key == model.AccountsStorageKey {
			continue
		}

		if !orphanedDomainKey(key, known) {
			continue
		}

		if err := j.repo.Delete(ctx, key); err != nil {
			j.logger.Error("孤立ドキュメントの削除に失敗しました",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		deleted++
	}

	return deleted, nil
}

// orphanedDomainKey はキーが削除済みアカウントのドメインドキュメントかを判定する。
// キー形式 ${localID}-${domain}-storage に一致し、かつlocalIDが登録済み
// アカウントのいずれでもない場合のみtrueを返す。ドメインドキュメントの形式に
// 一致しないキーは削除対象にならない。
func orphanedDomainKey(key string, known map[string]struct{}) bool {
	for _, d := range model.AllDomains() {
		suffix := "-" + string(d) + "-storage"
		if strings.HasSuffix(key, suffix) {
			_, ok := known[strings.TrimSuffix(key, suffix)]
			return !ok
		}
	}
	return false
}

// sweepExpired は保持期間を超過したドメインドキュメントを削除する。
// キャッシュは次回の同期で再取得されるため、古いドキュメントは安全に削除できる。
// アカウント一覧ドキュメントは対象外。
func (j *CleanupJob) sweepExpired(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.RetentionDays)

	query := `DELETE FROM sync_state WHERE updated_at < now() - $1::interval AND key <> $2`
	result, err := j.db.ExecContext(ctx, query, interval, model.AccountsStorageKey)
	if err != nil {
		j.logger.Error("保持期間超過ドキュメントの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return 0, fmt.Errorf("クリーンアップの実行に失敗: %w", err)
	}

	expired, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	return expired, nil
}
