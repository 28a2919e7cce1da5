package model

import "time"

// NewsItem は学校からのお知らせ1件を表す。
// 同一性はIDで判定されるが、ID一致でも本文ハッシュが異なる場合は
// 編集されたものとして差分にカウントされる。
type NewsItem struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"` // サニタイズ済みHTML
	Author   string    `json:"author,omitempty"`
	Category string    `json:"category,omitempty"`
	Date     time.Time `json:"date"`
	Read     bool      `json:"read"`
}

// Chat はメッセージスレッド1件を表す。
type Chat struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Creator   string    `json:"creator,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Unread    int       `json:"unread"`
	UpdatedAt time.Time `json:"updated_at"`
}
