package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStateRepo はPostgreSQLを使用した同期状態リポジトリ。
// sync_stateテーブル（key → jsonbドキュメント）の単純なUPSERTで実装する。
type PostgresStateRepo struct {
	db *sql.DB
}

// NewPostgresStateRepo はPostgresStateRepoを生成する。
func NewPostgresStateRepo(db *sql.DB) *PostgresStateRepo {
	return &PostgresStateRepo{db: db}
}

// Get は指定キーのドキュメントを取得する。見つからない場合はnilを返す。
func (r *PostgresStateRepo) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE key = $1`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("同期状態の取得に失敗しました: %w", err)
	}

	return value, nil
}

// Set は指定キーにドキュメントを冪等に書き込む。
// key主キーを利用したINSERT ON CONFLICTで実装する。
func (r *PostgresStateRepo) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_state (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("同期状態の書き込みに失敗しました: %w", err)
	}

	return nil
}

// Delete は指定キーのドキュメントを削除する。冪等。
func (r *PostgresStateRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sync_state WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("同期状態の削除に失敗しました: %w", err)
	}

	return nil
}

// ListKeys は指定プレフィックスに一致する全キーをキー昇順で返す。
func (r *PostgresStateRepo) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT key FROM sync_state WHERE key LIKE $1 || '%' ORDER BY key`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("同期状態キーの一覧取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("同期状態キーの読み取りに失敗しました: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("同期状態キーの走査に失敗しました: %w", err)
	}

	return keys, nil
}
