// Package repository はデータ永続化のインターフェースを定義する。
package repository

import "context"

// StateRepository は同期コアが使用する不透明なキー・バリュー永続化インターフェース。
// 値はJSONシリアライズ済みのドキュメントとして扱い、内容には関知しない。
// キャッシュストアは ${localID}-${domain}-storage 形式のキーで、
// アカウントレジストリは accounts-storage キーでこのインターフェースを使用する。
type StateRepository interface {
	// Get は指定キーのドキュメントを取得する。見つからない場合はnilを返す。
	Get(ctx context.Context, key string) ([]byte, error)

	// Set は指定キーにドキュメントを冪等に書き込む（UPSERT）。
	Set(ctx context.Context, key string, value []byte) error

	// Delete は指定キーのドキュメントを削除する。存在しない場合もエラーにならない。
	Delete(ctx context.Context, key string) error

	// ListKeys は指定プレフィックスに一致する全キーを返す。
	// クリーンアップジョブが孤立ドキュメントの検出に使用する。
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
