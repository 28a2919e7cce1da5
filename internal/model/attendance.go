package model

import "time"

// Absence は欠席1件を表す。同一性は (From, To) で判定される。
type Absence struct {
	ID        string    `json:"id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Justified bool      `json:"justified"`
	Reason    string    `json:"reason,omitempty"`
}

// Delay は遅刻1件を表す。同一性は (Timestamp, Duration) で判定される。
type Delay struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// Duration は遅刻時間（分）。
	Duration  int    `json:"duration"`
	Justified bool   `json:"justified"`
	Reason    string `json:"reason,omitempty"`
}

// Observation は観察記録1件を表す。同一性は (Timestamp, SectionName) で判定される。
type Observation struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	SectionName string    `json:"section_name"`
	Subject     string    `json:"subject,omitempty"`
	Reason      string    `json:"reason,omitempty"`
}

// Punishment は処分1件を表す。同一性は (Timestamp, Duration) で判定される。
type Punishment struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// Duration は処分時間（分）。
	Duration int    `json:"duration"`
	Nature   string `json:"nature,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Attendance は1学期分の出欠集計を表す。
// 出欠ドメインのキャッシュは学期ごとにこの集約1件を保持する。
type Attendance struct {
	Absences     []Absence     `json:"absences"`
	Delays       []Delay       `json:"delays"`
	Observations []Observation `json:"observations"`
	Punishments  []Punishment  `json:"punishments"`
}
