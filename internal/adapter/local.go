package adapter

import (
	"context"

	"github.com/hitoshi/cartable/internal/model"
)

// NewsSource はローカルアカウント用の公開フィード取得のインターフェース。
// feednews.Sourceを抽象化してテスタビリティを向上させる。
type NewsSource interface {
	Fetch(ctx context.Context, feedURL string) ([]model.NewsItem, error)
}

// LocalAdapter はバックエンドを持たないローカルアカウントのアダプタ。
// 各ドメインは空集合を返し（ユーザー作成のローカルアイテムはキャッシュストアの
// 再マージで生き残る）、お知らせだけはアカウントに設定された公開フィードURLが
// あればそこから取得する。
type LocalAdapter struct {
	news NewsSource
}

// NewLocalAdapter はLocalAdapterを生成する。
// newsがnilの場合、newsドメインも空集合を返す。
func NewLocalAdapter(news NewsSource) *LocalAdapter {
	return &LocalAdapter{news: news}
}

// Service はServiceLocalを返す。
func (a *LocalAdapter) Service() model.Service {
	return model.ServiceLocal
}

// FetchNews はアカウントに設定された公開フィードからお知らせを取得する。
// フィードURL未設定またはソース未構成の場合は空集合を返す。
func (a *LocalAdapter) FetchNews(ctx context.Context, account *model.Account) ([]model.NewsItem, error) {
	if a.news == nil || account.NewsFeedURL == "" {
		return []model.NewsItem{}, nil
	}
	return a.news.Fetch(ctx, account.NewsFeedURL)
}

// FetchHomework は空集合を返す。ローカルの宿題はユーザー作成アイテムのみ。
func (a *LocalAdapter) FetchHomework(_ context.Context, _ *model.Account, _ int) ([]model.Homework, error) {
	return []model.Homework{}, nil
}

// FetchGrades は空集合を返す。
func (a *LocalAdapter) FetchGrades(_ context.Context, _ *model.Account, _ string) ([]model.Grade, error) {
	return []model.Grade{}, nil
}

// FetchTimetable は空集合を返す。
func (a *LocalAdapter) FetchTimetable(_ context.Context, _ *model.Account, _ int) ([]model.Lesson, error) {
	return []model.Lesson{}, nil
}

// FetchAttendance は空の出欠集約を返す。
func (a *LocalAdapter) FetchAttendance(_ context.Context, _ *model.Account, _ string) (model.Attendance, error) {
	return model.Attendance{}, nil
}

// FetchEvaluations は空集合を返す。
func (a *LocalAdapter) FetchEvaluations(_ context.Context, _ *model.Account, _ string) ([]model.Evaluation, error) {
	return []model.Evaluation{}, nil
}

// FetchChats はサポート外。ローカルアカウントにメッセージ機能はない。
func (a *LocalAdapter) FetchChats(_ context.Context, _ *model.Account) ([]model.Chat, error) {
	return nil, model.ErrNotSupported
}

// ToggleHomeworkDone は何もしない。ローカルの宿題の完了状態は
// キャッシュストア側の増分変更だけで完結する。
func (a *LocalAdapter) ToggleHomeworkDone(_ context.Context, _ *model.Account, _ model.Homework) error {
	return nil
}
