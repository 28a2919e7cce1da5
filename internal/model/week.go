package model

import (
	"strconv"
	"time"
)

// weekEpoch は週番号の起点となる月曜日（2020年ISO第1週の月曜）。
// 週スコープのドメイン（宿題・時間割）のピリオドキーはこの起点からの週数で表す。
var weekEpoch = time.Date(2019, time.December, 30, 0, 0, 0, 0, time.UTC)

// EpochWeekNumber は指定時刻が属する週の番号を返す。
// 週は月曜始まりで、起点より前の時刻には負の値を返す。
func EpochWeekNumber(t time.Time) int {
	// 日数は暦日単位で切り下げる。起点前の1日未満の端数も前日に属する。
	secs := t.UTC().Unix() - weekEpoch.Unix()
	days := int(secs / 86400)
	if secs < 0 && secs%86400 != 0 {
		days--
	}
	if days < 0 {
		// 負方向は週境界で切り下げる
		return (days - 6) / 7
	}
	return days / 7
}

// WeekStart は週番号に対応する週の開始時刻（月曜0時UTC）を返す。
func WeekStart(week int) time.Time {
	return weekEpoch.AddDate(0, 0, week*7)
}

// WeekKey は週番号をピリオドキー文字列に変換する。
func WeekKey(week int) string {
	return strconv.Itoa(week)
}

// ParseWeekKey はピリオドキー文字列を週番号に変換する。
func ParseWeekKey(key string) (int, error) {
	return strconv.Atoi(key)
}
