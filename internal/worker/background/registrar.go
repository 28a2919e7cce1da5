package background

import (
	"context"
	"log/slog"
	"time"
)

// minInterval はバックグラウンド同期の最小実行間隔。
// これより短い間隔が設定された場合は切り上げる。
const minInterval = 15 * time.Minute

// Registrar は同期サイクルの定期実行を登録・駆動する。
type Registrar struct {
	runner    *Runner
	logger    *slog.Logger
	interval  time.Duration
	supported bool
}

// NewRegistrar はRegistrarを生成する。
// supportedがfalseの環境ではStartが警告を出して何もせずに戻る。
// intervalが最小間隔を下回る場合は最小間隔に切り上げる。
func NewRegistrar(runner *Runner, logger *slog.Logger, interval time.Duration, supported bool) *Registrar {
	if interval < minInterval {
		logger.Warn("同期間隔が最小値を下回るため切り上げます",
			slog.Duration("requested", interval),
			slog.Duration("effective", minInterval),
		)
		interval = minInterval
	}
	return &Registrar{
		runner:    runner,
		logger:    logger,
		interval:  interval,
		supported: supported,
	}
}

// Start はティッカーで同期サイクルを定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
// バックグラウンド実行がサポートされない環境では登録せずに戻る。
func (r *Registrar) Start(ctx context.Context) {
	if !r.supported {
		r.logger.Warn("この環境ではバックグラウンド同期がサポートされていません。登録をスキップします")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("バックグラウンド同期を開始しました",
		slog.Duration("interval", r.interval),
	)

	// 起動直後に1回実行
	r.runner.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("バックグラウンド同期を停止しました")
			return
		case <-ticker.C:
			r.runner.RunCycle(ctx)
		}
	}
}
