// Package notify は検出された差分からユーザー通知を組み立てて発火する。
// 通知チャネルの実体（プッシュ配信やカテゴリ設定）は外部コラボレータであり、
// このパッケージはChannelインターフェース越しにdisplayのみを要求する。
package notify

import (
	"context"
	"log/slog"
)

// ドメイン別の通知チャネルID。チャネルの作成・カテゴリ設定は外部構成。
const (
	ChannelNews       = "News"
	ChannelHomeworks  = "Homeworks"
	ChannelGrades     = "Grades"
	ChannelLessons    = "Lessons"
	ChannelAttendance = "Attendance"
	ChannelEvaluation = "Evaluation"
	// ChannelStatus は開発用のステータスチャネル。
	ChannelStatus = "Status"
)

// Notification は表示要求1件を表す。
type Notification struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Subtitle  string            `json:"subtitle,omitempty"`
	Body      string            `json:"body"`
	ChannelID string            `json:"channel_id"`
	Data      map[string]string `json:"data,omitempty"`
}

// Channel は通知表示機能のインターフェース。
type Channel interface {
	// Display は通知を表示する。
	Display(ctx context.Context, n Notification) error
}

// LogChannel は通知を構造化ログに出力するChannel実装。
// ワーカー単体での動作確認と、プッシュ基盤を持たない環境のフォールバックに使う。
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel はLogChannelを生成する。
func NewLogChannel(logger *slog.Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

// Display は通知内容をINFOログとして出力する。
func (c *LogChannel) Display(_ context.Context, n Notification) error {
	c.logger.Info("通知を発火しました",
		slog.String("notification_id", n.ID),
		slog.String("channel_id", n.ChannelID),
		slog.String("title", n.Title),
		slog.String("subtitle", n.Subtitle),
		slog.String("body", n.Body),
	)
	return nil
}
