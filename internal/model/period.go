package model

import (
	"fmt"
	"time"
)

// CurrentPeriod は指定時刻が属する学期名を返す。
// 学期スコープのドメイン（成績・出欠・評価）のデフォルトのピリオドキーになる。
// フランスの学校暦の3学期制に従う: 9〜11月が第1学期、12〜2月が第2学期、
// 3月以降が第3学期。
func CurrentPeriod(t time.Time) string {
	switch m := t.Month(); {
	case m >= time.September && m <= time.November:
		return "Trimestre 1"
	case m == time.December || m <= time.February:
		return "Trimestre 2"
	default:
		return "Trimestre 3"
	}
}

// ValidatePeriodKey はドメインに対するピリオドキーの形式を検証する。
// 週スコープのドメインには数値の週番号、news/chatには固定キーallを要求する。
// 学期スコープのドメインは空でない任意の学期名を受け付ける。
func ValidatePeriodKey(d Domain, key string) error {
	switch d {
	case DomainHomework, DomainTimetable:
		if _, err := ParseWeekKey(key); err != nil {
			return fmt.Errorf("週番号が不正です: %s", key)
		}
	case DomainNews, DomainChat:
		if key != PeriodKeyAll {
			return fmt.Errorf("ピリオドキーは %s を指定してください", PeriodKeyAll)
		}
	default:
		if key == "" {
			return fmt.Errorf("学期名を指定してください")
		}
	}
	return nil
}
