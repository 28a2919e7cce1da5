package store

import (
	"context"
	"fmt"

	"github.com/hitoshi/cartable/internal/model"
	"github.com/hitoshi/cartable/internal/repository"
)

// Stores は全ドメインのキャッシュストアを束ねる。
// 各ドメインにつきストアは常に1インスタンスで、アカウント切り替え時に
// 全ストアを一括で再バインドする。
type Stores struct {
	News       *Store[model.NewsItem]
	Homework   *Store[model.Homework]
	Grades     *Store[model.Grade]
	Timetable  *Store[model.Lesson]
	Attendance *Store[model.Attendance]
	Evaluation *Store[model.Evaluation]
	Chat       *Store[model.Chat]
}

// NewStores は全ドメインのストアを生成する。
func NewStores(repo repository.StateRepository) *Stores {
	return &Stores{
		News:       New[model.NewsItem](model.DomainNews, repo),
		Homework:   New[model.Homework](model.DomainHomework, repo),
		Grades:     New[model.Grade](model.DomainGrades, repo),
		Timetable:  New[model.Lesson](model.DomainTimetable, repo),
		Attendance: New[model.Attendance](model.DomainAttendance, repo),
		Evaluation: New[model.Evaluation](model.DomainEvaluation, repo),
		Chat:       New[model.Chat](model.DomainChat, repo),
	}
}

// binder はBindTo操作だけを束ねるための内部インターフェース。
type binder interface {
	BindTo(ctx context.Context, localID string) error
	Domain() model.Domain
}

// BindTo は全ドメインストアを指定アカウントに一括で再バインドする。
// 1つでも再水和に失敗した場合はエラーを返し、切り替えは不完全とみなされる
// （依存する読み出しは有効とみなしてはならない）。
func (s *Stores) BindTo(ctx context.Context, localID string) error {
	binders := []binder{
		s.News, s.Homework, s.Grades, s.Timetable,
		s.Attendance, s.Evaluation, s.Chat,
	}
	for _, b := range binders {
		if err := b.BindTo(ctx, localID); err != nil {
			return fmt.Errorf("ドメイン %s の再バインドに失敗: %w", b.Domain(), err)
		}
	}
	return nil
}
