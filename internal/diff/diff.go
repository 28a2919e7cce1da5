// Package diff はキャッシュの更新前後スナップショットから新着アイテムを検出する。
// 同一性判定はドメインごとに固定されたフィールド部分集合で行う。バックエンドは
// フェッチのたびにオブジェクトを再生成するため、IDや全フィールド比較は使わない。
// この規則は通知内容と重複抑止（1更新サイクルにつき検出差分あたり最大1通知）の
// 両方を支えるため、変更してはならない。
package diff

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/hitoshi/cartable/internal/model"
)

// HomeworkKey は宿題の同一性キーを返す。同一性 = (提出期限, 内容)。
func HomeworkKey(h model.Homework) string {
	return strconv.FormatInt(h.Due.UTC().Unix(), 10) + "|" + h.Content
}

// GradeKey は成績の同一性キーを返す。同一性 = (生徒の点数, 係数)。
func GradeKey(g model.Grade) string {
	return gradeValueKey(g.Student) + "|" + formatFloat(g.Coefficient)
}

// gradeValueKey は点数を安定した文字列キーに変換する。
func gradeValueKey(v model.GradeValue) string {
	if v.Disabled {
		return "disabled"
	}
	return formatFloat(v.Value) + "/" + formatFloat(v.OutOf)
}

// EvaluationKey はコンピテンシー評価の同一性キーを返す。同一性 = (評価レベル列, 係数)。
func EvaluationKey(e model.Evaluation) string {
	key := ""
	for i, level := range e.Levels {
		if i > 0 {
			key += ","
		}
		key += level
	}
	return key + "|" + formatFloat(e.Coefficient)
}

// AbsenceKey は欠席の同一性キーを返す。同一性 = (開始時刻, 終了時刻)。
func AbsenceKey(a model.Absence) string {
	return strconv.FormatInt(a.From.UTC().Unix(), 10) + "|" + strconv.FormatInt(a.To.UTC().Unix(), 10)
}

// DelayKey は遅刻の同一性キーを返す。同一性 = (時刻, 遅刻時間)。
func DelayKey(d model.Delay) string {
	return strconv.FormatInt(d.Timestamp.UTC().Unix(), 10) + "|" + strconv.Itoa(d.Duration)
}

// ObservationKey は観察記録の同一性キーを返す。同一性 = (時刻, セクション名)。
func ObservationKey(o model.Observation) string {
	return strconv.FormatInt(o.Timestamp.UTC().Unix(), 10) + "|" + o.SectionName
}

// PunishmentKey は処分の同一性キーを返す。同一性 = (時刻, 処分時間)。
func PunishmentKey(p model.Punishment) string {
	return strconv.FormatInt(p.Timestamp.UTC().Unix(), 10) + "|" + strconv.Itoa(p.Duration)
}

// NewsContentHash はお知らせの全内容のSHA-256ハッシュを返す。
// ID一致でもこのハッシュが異なる場合は編集されたものとして差分にカウントする。
func NewsContentHash(n model.NewsItem) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		n.Title, n.Content, n.Author, n.Category,
		n.Date.UTC().Format(time.RFC3339),
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// formatFloat は浮動小数点数を安定した最短表記の文字列に変換する。
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// newItems は同一性キーに基づき、afterに存在しbeforeに存在しないアイテムを返す。
// after内の出現順を保持する。
func newItems[T any](before, after []T, key func(T) string) []T {
	known := make(map[string]struct{}, len(before))
	for _, item := range before {
		known[key(item)] = struct{}{}
	}

	var fresh []T
	for _, item := range after {
		if _, ok := known[key(item)]; !ok {
			fresh = append(fresh, item)
		}
	}
	return fresh
}

// NewHomework は更新前後の宿題スライスから新着宿題を返す。
func NewHomework(before, after []model.Homework) []model.Homework {
	return newItems(before, after, HomeworkKey)
}

// NewGrades は更新前後の成績スライスから新着成績を返す。
func NewGrades(before, after []model.Grade) []model.Grade {
	return newItems(before, after, GradeKey)
}

// NewEvaluations は更新前後の評価スライスから新着評価を返す。
func NewEvaluations(before, after []model.Evaluation) []model.Evaluation {
	return newItems(before, after, EvaluationKey)
}

// AttendanceDiff は出欠ドメインの4種の独立したサブ差分を保持する。
type AttendanceDiff struct {
	Absences     []model.Absence
	Delays       []model.Delay
	Observations []model.Observation
	Punishments  []model.Punishment
}

// Total は4つのサブ差分の合計件数を返す。
func (d AttendanceDiff) Total() int {
	return len(d.Absences) + len(d.Delays) + len(d.Observations) + len(d.Punishments)
}

// NewAttendance は更新前後の出欠集約から4種のサブ差分を計算する。
func NewAttendance(before, after model.Attendance) AttendanceDiff {
	return AttendanceDiff{
		Absences:     newItems(before.Absences, after.Absences, AbsenceKey),
		Delays:       newItems(before.Delays, after.Delays, DelayKey),
		Observations: newItems(before.Observations, after.Observations, ObservationKey),
		Punishments:  newItems(before.Punishments, after.Punishments, PunishmentKey),
	}
}

// ChangedNews は新着または編集されたお知らせを返す。
// 同一性はIDだが、ID一致でも内容ハッシュが変わっていれば編集として差分に含める
// （到着検出だけでなく編集検出も行う）。
func ChangedNews(before, after []model.NewsItem) []model.NewsItem {
	knownHash := make(map[string]string, len(before))
	for _, item := range before {
		knownHash[item.ID] = NewsContentHash(item)
	}

	var changed []model.NewsItem
	for _, item := range after {
		prevHash, ok := knownHash[item.ID]
		if !ok || prevHash != NewsContentHash(item) {
			changed = append(changed, item)
		}
	}
	return changed
}

// FlaggedLessonsToday は最新フェッチ結果から、状態テキスト付きの当日授業を返す。
// 時間割ドメインは履歴差分を持たず、更新のたびにこの集合を再計算する。
func FlaggedLessonsToday(lessons []model.Lesson, now time.Time) []model.Lesson {
	var flagged []model.Lesson
	for _, lesson := range lessons {
		if lesson.HasStatus() && lesson.SameDay(now) {
			flagged = append(flagged, lesson)
		}
	}
	return flagged
}
