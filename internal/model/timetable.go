package model

import "time"

// Lesson は時間割の授業1コマを表す。
type Lesson struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Teacher string    `json:"teacher"`
	Room    string    `json:"room"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// Status は休講・教室変更などの状態テキスト。通常授業の場合は空。
	Status string `json:"status,omitempty"`

	// Canceled は授業が取り消されたかどうか。
	Canceled bool `json:"canceled"`
}

// HasStatus は授業に状態テキストが付いているかを返す。
// 時間割ドメインの差分検出は履歴比較ではなく、最新フェッチ結果のうち
// 状態付きの当日授業を毎回再計算する方式をとる。
func (l Lesson) HasStatus() bool {
	return l.Status != ""
}

// SameDay は授業の開始時刻が指定日と同じ日付（ローカルタイム）かを返す。
func (l Lesson) SameDay(t time.Time) bool {
	y1, m1, d1 := l.Start.Local().Date()
	y2, m2, d2 := t.Local().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
