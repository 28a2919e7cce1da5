package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/cartable/internal/diff"
	"github.com/hitoshi/cartable/internal/metrics"
	"github.com/hitoshi/cartable/internal/model"
)

// lessonLeadWindow は授業通知を発火する、当日最初の授業開始前のリード時間。
const lessonLeadWindow = 15 * time.Minute

// Dispatcher は差分から通知を組み立てて発火する。
// 通知はアカウントのグローバルフラグとドメイン別フラグの両方が有効な場合のみ
// 発火し、差分の件数に関わらず1ドメイン・1更新サイクルにつき最大1件となる。
type Dispatcher struct {
	channel   Channel
	collector metrics.MetricsCollector
	logger    *slog.Logger

	// now は現在時刻の取得関数。テストで差し替える。
	now func() time.Time
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(channel Channel, collector metrics.MetricsCollector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		channel:   channel,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// emit は通知を1件発火する。IDは生成し、サブタイトルにはアカウント表示名を入れる。
func (d *Dispatcher) emit(ctx context.Context, account *model.Account, channelID, title, body string) error {
	n := Notification{
		ID:        uuid.New().String(),
		Title:     title,
		Subtitle:  account.Name,
		Body:      body,
		ChannelID: channelID,
		Data:      map[string]string{"account": account.LocalID},
	}
	if err := d.channel.Display(ctx, n); err != nil {
		return fmt.Errorf("通知の表示に失敗: %w", err)
	}
	d.collector.RecordNotificationEmitted(channelID)
	return nil
}

// gate は通知設定による発火可否を判定し、スキップ時はデバッグログを出力する。
func (d *Dispatcher) gate(account *model.Account, domain model.Domain) bool {
	if account.Preferences.NotifyFor(domain) {
		return true
	}
	d.logger.Debug("通知設定により通知をスキップしました",
		slog.String("account", account.LocalID),
		slog.String("domain", string(domain)),
	)
	return false
}

// NotifyNews は新着・編集されたお知らせの通知を発火する。
func (d *Dispatcher) NotifyNews(ctx context.Context, account *model.Account, changed []model.NewsItem) error {
	if len(changed) == 0 || !d.gate(account, model.DomainNews) {
		return nil
	}

	if len(changed) == 1 {
		item := changed[0]
		return d.emit(ctx, account, ChannelNews,
			"Nouvelle actualité",
			fmt.Sprintf("« %s » vient d'être publiée.", item.Title),
		)
	}

	breakdown := subjectBreakdown(len(changed), func(i int) string {
		if changed[i].Category != "" {
			return changed[i].Category
		}
		return "Général"
	}, "actualité", "actualités")

	return d.emit(ctx, account, ChannelNews,
		fmt.Sprintf("%d nouvelles actualités", len(changed)),
		breakdown,
	)
}

// NotifyHomework は新着宿題の通知を発火する。
func (d *Dispatcher) NotifyHomework(ctx context.Context, account *model.Account, fresh []model.Homework) error {
	if len(fresh) == 0 || !d.gate(account, model.DomainHomework) {
		return nil
	}

	if len(fresh) == 1 {
		hw := fresh[0]
		return d.emit(ctx, account, ChannelHomeworks,
			"Nouveau devoir",
			fmt.Sprintf("Un nouveau devoir en %s a été ajouté pour le %s.",
				hw.Subject, hw.Due.Local().Format("02/01")),
		)
	}

	breakdown := subjectBreakdown(len(fresh), func(i int) string {
		return fresh[i].Subject
	}, "devoir", "devoirs")

	return d.emit(ctx, account, ChannelHomeworks,
		fmt.Sprintf("%d nouveaux devoirs", len(fresh)),
		breakdown,
	)
}

// NotifyGrades は新着成績の通知を発火する。
func (d *Dispatcher) NotifyGrades(ctx context.Context, account *model.Account, fresh []model.Grade) error {
	if len(fresh) == 0 || !d.gate(account, model.DomainGrades) {
		return nil
	}

	if len(fresh) == 1 {
		g := fresh[0]
		return d.emit(ctx, account, ChannelGrades,
			"Nouvelle note",
			fmt.Sprintf("Nouvelle note en %s : %s", g.Subject, formatGradeValue(g.Student)),
		)
	}

	breakdown := subjectBreakdown(len(fresh), func(i int) string {
		return fresh[i].Subject
	}, "nouvelle note", "nouvelles notes")

	return d.emit(ctx, account, ChannelGrades,
		fmt.Sprintf("%d nouvelles notes", len(fresh)),
		breakdown,
	)
}

// NotifyEvaluations は新着評価の通知を発火する。
func (d *Dispatcher) NotifyEvaluations(ctx context.Context, account *model.Account, fresh []model.Evaluation) error {
	if len(fresh) == 0 || !d.gate(account, model.DomainEvaluation) {
		return nil
	}

	if len(fresh) == 1 {
		e := fresh[0]
		return d.emit(ctx, account, ChannelEvaluation,
			"Nouvelle évaluation",
			fmt.Sprintf("Nouvelle évaluation de compétences en %s : %s", e.Subject, e.Name),
		)
	}

	breakdown := subjectBreakdown(len(fresh), func(i int) string {
		return fresh[i].Subject
	}, "nouvelle évaluation", "nouvelles évaluations")

	return d.emit(ctx, account, ChannelEvaluation,
		fmt.Sprintf("%d nouvelles évaluations", len(fresh)),
		breakdown,
	)
}

// NotifyAttendance は出欠の4種サブ差分から通知を発火する。
// 合計1件の場合は該当種別の単独通知、複数件の場合は種別ごとの件数を
// 列挙する要約通知になる。
func (d *Dispatcher) NotifyAttendance(ctx context.Context, account *model.Account, ad diff.AttendanceDiff) error {
	total := ad.Total()
	if total == 0 || !d.gate(account, model.DomainAttendance) {
		return nil
	}

	if total == 1 {
		switch {
		case len(ad.Absences) == 1:
			a := ad.Absences[0]
			return d.emit(ctx, account, ChannelAttendance,
				"Nouvelle absence",
				fmt.Sprintf("Une absence a été enregistrée le %s.", a.From.Local().Format("02/01")),
			)
		case len(ad.Delays) == 1:
			dl := ad.Delays[0]
			return d.emit(ctx, account, ChannelAttendance,
				"Nouveau retard",
				fmt.Sprintf("Un retard de %d min a été enregistré le %s.",
					dl.Duration, dl.Timestamp.Local().Format("02/01")),
			)
		case len(ad.Observations) == 1:
			o := ad.Observations[0]
			return d.emit(ctx, account, ChannelAttendance,
				"Nouvelle observation",
				fmt.Sprintf("Nouvelle observation : %s.", o.SectionName),
			)
		case len(ad.Punishments) == 1:
			p := ad.Punishments[0]
			return d.emit(ctx, account, ChannelAttendance,
				"Nouvelle punition",
				fmt.Sprintf("Une punition de %d min a été enregistrée le %s.",
					p.Duration, p.Timestamp.Local().Format("02/01")),
			)
		}
	}

	var parts []string
	if n := len(ad.Absences); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, pluralize(n, "nouvelle absence", "nouvelles absences")))
	}
	if n := len(ad.Delays); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, pluralize(n, "nouveau retard", "nouveaux retards")))
	}
	if n := len(ad.Observations); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, pluralize(n, "nouvelle observation", "nouvelles observations")))
	}
	if n := len(ad.Punishments); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", n, pluralize(n, "nouvelle punition", "nouvelles punitions")))
	}

	return d.emit(ctx, account, ChannelAttendance,
		"Vie scolaire",
		strings.Join(parts, ", "),
	)
}

// NotifyLessons は当日の時間割変更の通知を発火する。
// 当日最初の授業開始前の固定リード時間（15分）内でのみ発火し、
// 状態テキスト付きの授業だけが対象になる。
func (d *Dispatcher) NotifyLessons(ctx context.Context, account *model.Account, todays []model.Lesson) error {
	if len(todays) == 0 || !d.gate(account, model.DomainTimetable) {
		return nil
	}

	now := d.now()

	// 当日最初の授業を特定する
	first := todays[0]
	for _, lesson := range todays[1:] {
		if lesson.Start.Before(first.Start) {
			first = lesson
		}
	}

	// リード窓の外では発火しない
	windowStart := first.Start.Add(-lessonLeadWindow)
	if now.Before(windowStart) || now.After(first.Start) {
		return nil
	}

	flagged := diff.FlaggedLessonsToday(todays, now)
	if len(flagged) == 0 {
		return nil
	}

	if len(flagged) == 1 {
		return d.emit(ctx, account, ChannelLessons,
			"Emploi du temps",
			lessonStatusBody(flagged[0]),
		)
	}

	var parts []string
	for _, lesson := range flagged {
		parts = append(parts, fmt.Sprintf("%s (%s)", lesson.Subject, lesson.Status))
	}
	return d.emit(ctx, account, ChannelLessons,
		fmt.Sprintf("%d cours modifiés aujourd'hui", len(flagged)),
		strings.Join(parts, ", "),
	)
}

// lessonStatusBody は授業の状態に応じた本文を返す。
// 休講・教室変更・その他の状態テキストで分岐する。
func lessonStatusBody(l model.Lesson) string {
	start := l.Start.Local().Format("15h04")
	switch {
	case l.Canceled:
		return fmt.Sprintf("Le cours de %s de %s est annulé.", l.Subject, start)
	case strings.Contains(strings.ToLower(l.Status), "salle"):
		return fmt.Sprintf("Changement de salle pour le cours de %s de %s : salle %s.", l.Subject, start, l.Room)
	default:
		return fmt.Sprintf("%s (%s) : %s", l.Subject, start, l.Status)
	}
}

// pluralize は件数に応じて単数形・複数形を返す。
func pluralize(n int, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// subjectBreakdown は科目（またはカテゴリ）ごとの件数内訳を組み立てる。
// 例: "2 devoirs en Mathématiques, 1 devoir en Histoire"
// 件数の多い順、同数は名前順で並べる。
func subjectBreakdown(total int, subjectAt func(i int) string, singular, plural string) string {
	counts := make(map[string]int)
	for i := 0; i < total; i++ {
		subject := subjectAt(i)
		if subject == "" {
			subject = "Autre"
		}
		counts[subject]++
	}

	subjects := make([]string, 0, len(counts))
	for subject := range counts {
		subjects = append(subjects, subject)
	}
	sort.Slice(subjects, func(i, j int) bool {
		if counts[subjects[i]] != counts[subjects[j]] {
			return counts[subjects[i]] > counts[subjects[j]]
		}
		return subjects[i] < subjects[j]
	})

	parts := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		n := counts[subject]
		parts = append(parts, fmt.Sprintf("%d %s en %s", n, pluralize(n, singular, plural), subject))
	}

	return strings.Join(parts, ", ")
}

// formatGradeValue は点数を「15/20」形式で整形する。
func formatGradeValue(v model.GradeValue) string {
	if v.Disabled {
		return "Abs"
	}
	return fmt.Sprintf("%s/%s",
		trimFloat(v.Value), trimFloat(v.OutOf))
}

// trimFloat は小数点以下の冗長なゼロを除いた表記を返す。
func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
