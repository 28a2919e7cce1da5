package model

import "time"

// Homework は宿題1件を表す。
// 同一性は (Due, Content) で判定される。IDはバックエンドのフェッチごとに
// 再生成される可能性があるため同一性判定には使用しない。
type Homework struct {
	ID      string    `json:"id"`
	Subject string    `json:"subject"`
	Content string    `json:"content"`
	Due     time.Time `json:"due"`
	Done    bool      `json:"done"`

	// Local はユーザーがアプリ内で手動作成した宿題かどうか。
	// trueの場合、バックエンドフェッチによる上書き後も再マージで生き残る。
	Local bool `json:"local"`

	// ReturnType は提出形式（紙・オンライン等）。バックエンド依存の任意項目。
	ReturnType string `json:"return_type,omitempty"`
}
