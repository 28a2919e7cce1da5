// Package model はドメインモデルを定義する。
package model

// Domain は同期対象のデータ領域を表す。
// キャッシュストア、ディスパッチャ、通知設定のキーとして使用される。
type Domain string

const (
	// DomainNews は学校からのお知らせ。
	DomainNews Domain = "news"
	// DomainHomework は宿題。週番号でキーイングされる。
	DomainHomework Domain = "homework"
	// DomainGrades は成績。学期名でキーイングされる。
	DomainGrades Domain = "grades"
	// DomainTimetable は時間割。週番号でキーイングされる。
	DomainTimetable Domain = "timetable"
	// DomainAttendance は出欠（欠席・遅刻・観察記録・処分）。学期名でキーイングされる。
	DomainAttendance Domain = "attendance"
	// DomainEvaluation はコンピテンシー評価。学期名でキーイングされる。
	DomainEvaluation Domain = "evaluation"
	// DomainChat はメッセージスレッド。バックグラウンド同期の対象外。
	DomainChat Domain = "chat"
)

// BackgroundDomains はバックグラウンド同期で処理するドメインを固定順で返す。
// この順序は通知の再現性に影響するため変更してはならない。
func BackgroundDomains() []Domain {
	return []Domain{
		DomainNews,
		DomainHomework,
		DomainGrades,
		DomainTimetable,
		DomainAttendance,
		DomainEvaluation,
	}
}

// AllDomains はキャッシュストアを持つ全ドメインを返す。
func AllDomains() []Domain {
	return append(BackgroundDomains(), DomainChat)
}

// IsValidDomain は文字列が定義済みドメインかを検証する。
func IsValidDomain(s string) bool {
	for _, d := range AllDomains() {
		if Domain(s) == d {
			return true
		}
	}
	return false
}

// Service はアカウントが接続するバックエンドサービスの種別を表す。
type Service string

const (
	// ServicePronote はPronoteアカウント。
	ServicePronote Service = "pronote"
	// ServiceEcoleDirecte はEcoleDirecteアカウント。
	ServiceEcoleDirecte Service = "ecoledirecte"
	// ServiceSkolengo はSkolengoアカウント。
	ServiceSkolengo Service = "skolengo"
	// ServiceLocal はローカル専用アカウント（外部バックエンドなし）。
	ServiceLocal Service = "local"
	// ServiceMultiService は複数アカウントを束ねる仮想スペース。
	// ドメインごとに設定された委譲先アカウントへ転送される。
	ServiceMultiService Service = "multiservice"
)

// PeriodKeyAll は学期・週に紐付かないドメイン（news, chat）の固定ピリオドキー。
const PeriodKeyAll = "all"
