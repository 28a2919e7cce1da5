package diff

import (
	"testing"
	"time"

	"github.com/hitoshi/cartable/internal/model"
)

func TestNewHomework_DetectsOnlyFreshItems(t *testing.T) {
	due := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

	before := []model.Homework{
		{ID: "old-1", Content: "Exercices p.42", Due: due},
	}
	after := []model.Homework{
		// 同じ（期限, 内容）はIDが変わっても新着ではない
		{ID: "new-id-for-old-1", Content: "Exercices p.42", Due: due},
		{ID: "hw-2", Content: "Lecture chapitre 3", Due: due},
	}

	fresh := NewHomework(before, after)
	if len(fresh) != 1 {
		t.Fatalf("len = %d, want 1: %v", len(fresh), fresh)
	}
	if fresh[0].Content != "Lecture chapitre 3" {
		t.Errorf("fresh = %v", fresh[0])
	}
}

func TestNewHomework_Idempotent(t *testing.T) {
	due := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	items := []model.Homework{
		{ID: "hw-1", Content: "Exercices p.42", Due: due},
		{ID: "hw-2", Content: "Lecture chapitre 3", Due: due},
	}

	// 同一スナップショット同士の差分は常に空
	if fresh := NewHomework(items, items); len(fresh) != 0 {
		t.Errorf("diff of identical snapshots = %v, want empty", fresh)
	}
}

func TestNewGrades_IdentityIsStudentValueAndCoefficient(t *testing.T) {
	before := []model.Grade{
		{ID: "g-1", Subject: "Maths", Student: model.GradeValue{Value: 15, OutOf: 20}, Coefficient: 1},
	}
	after := []model.Grade{
		// 点数・係数が同じならIDや科目説明の違いは新着扱いしない
		{ID: "g-refetched", Subject: "Maths", Student: model.GradeValue{Value: 15, OutOf: 20}, Coefficient: 1},
		{ID: "g-2", Subject: "Histoire", Student: model.GradeValue{Value: 12, OutOf: 20}, Coefficient: 2},
	}

	fresh := NewGrades(before, after)
	if len(fresh) != 1 || fresh[0].Subject != "Histoire" {
		t.Errorf("fresh = %v, want only Histoire grade", fresh)
	}
}

func TestGradeKey_DisabledValue(t *testing.T) {
	disabled := model.Grade{Student: model.GradeValue{Disabled: true}, Coefficient: 1}
	scored := model.Grade{Student: model.GradeValue{Value: 0, OutOf: 20}, Coefficient: 1}

	if GradeKey(disabled) == GradeKey(scored) {
		t.Error("disabled grade should not collide with a scored zero")
	}
}

func TestNewEvaluations_IdentityIsLevelsAndCoefficient(t *testing.T) {
	before := []model.Evaluation{
		{ID: "e-1", Levels: []string{"A", "B"}, Coefficient: 1},
	}
	after := []model.Evaluation{
		{ID: "e-1-refetched", Levels: []string{"A", "B"}, Coefficient: 1},
		{ID: "e-2", Levels: []string{"A", "A"}, Coefficient: 1},
	}

	fresh := NewEvaluations(before, after)
	if len(fresh) != 1 || fresh[0].ID != "e-2" {
		t.Errorf("fresh = %v, want only e-2", fresh)
	}
}

func TestNewAttendance_SubDiffsAndTotal(t *testing.T) {
	t1 := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC)

	before := model.Attendance{
		Absences: []model.Absence{{From: t1, To: t1.Add(2 * time.Hour)}},
	}
	after := model.Attendance{
		Absences: []model.Absence{
			{From: t1, To: t1.Add(2 * time.Hour)},
			{From: t2, To: t2.Add(time.Hour)},
			{From: t2.Add(4 * time.Hour), To: t2.Add(5 * time.Hour)},
		},
		Delays: []model.Delay{{Timestamp: t2, Duration: 10}},
	}

	ad := NewAttendance(before, after)
	if len(ad.Absences) != 2 {
		t.Errorf("absences = %d, want 2", len(ad.Absences))
	}
	if len(ad.Delays) != 1 {
		t.Errorf("delays = %d, want 1", len(ad.Delays))
	}
	if ad.Total() != 3 {
		t.Errorf("Total = %d, want 3", ad.Total())
	}
}

func TestChangedNews_DetectsArrivalAndEdit(t *testing.T) {
	date := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

	before := []model.NewsItem{
		{ID: "n-1", Title: "Sortie scolaire", Content: "Départ à 8h", Date: date},
		{ID: "n-2", Title: "Cantine", Content: "Menu de la semaine", Date: date},
	}
	after := []model.NewsItem{
		// n-1は内容が編集された
		{ID: "n-1", Title: "Sortie scolaire", Content: "Départ à 8h30", Date: date},
		// n-2は変更なし
		{ID: "n-2", Title: "Cantine", Content: "Menu de la semaine", Date: date},
		// n-3は新着
		{ID: "n-3", Title: "Grève", Content: "Cours annulés jeudi", Date: date},
	}

	changed := ChangedNews(before, after)
	if len(changed) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(changed), changed)
	}
	ids := map[string]bool{}
	for _, n := range changed {
		ids[n.ID] = true
	}
	if !ids["n-1"] || !ids["n-3"] {
		t.Errorf("changed ids = %v, want n-1 and n-3", ids)
	}
}

func TestFlaggedLessonsToday_FiltersStatusAndDay(t *testing.T) {
	now := time.Date(2026, time.March, 2, 7, 0, 0, 0, time.Local)
	today := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.Local)
	tomorrow := today.AddDate(0, 0, 1)

	lessons := []model.Lesson{
		{ID: "l-1", Subject: "Maths", Start: today, End: today.Add(time.Hour), Status: "Cours annulé", Canceled: true},
		{ID: "l-2", Subject: "Histoire", Start: today.Add(time.Hour), End: today.Add(2 * time.Hour)},
		{ID: "l-3", Subject: "SVT", Start: tomorrow, End: tomorrow.Add(time.Hour), Status: "Changement de salle"},
	}

	flagged := FlaggedLessonsToday(lessons, now)
	if len(flagged) != 1 || flagged[0].ID != "l-1" {
		t.Errorf("flagged = %v, want only l-1", flagged)
	}
}
