package model

import "time"

// GradeValue は1つの点数を表す。欠席等で点数が存在しない場合はDisabledがtrueになる。
type GradeValue struct {
	Value    float64 `json:"value"`
	OutOf    float64 `json:"out_of"`
	Disabled bool    `json:"disabled"`
}

// Grade は成績1件を表す。
// 同一性は (Student, Coefficient) で判定される。
type Grade struct {
	ID           string     `json:"id"`
	Subject      string     `json:"subject"`
	Description  string     `json:"description"`
	Coefficient  float64    `json:"coefficient"`
	Student      GradeValue `json:"student"`
	ClassAverage GradeValue `json:"class_average"`
	Min          GradeValue `json:"min"`
	Max          GradeValue `json:"max"`
	Date         time.Time  `json:"date"`

	// Period は成績が属する学期名（ピリオドキー）。
	Period string `json:"period"`
}

// Evaluation はコンピテンシー評価1件を表す。
// 同一性は (Levels, Coefficient) で判定される。
type Evaluation struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	Name        string    `json:"name"`
	Coefficient float64   `json:"coefficient"`
	Levels      []string  `json:"levels"`
	Date        time.Time `json:"date"`
	Period      string    `json:"period"`
}
