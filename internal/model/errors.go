package model

import (
	"errors"
	"fmt"
)

// 同期コア全体で使用するセンチネルエラー。
var (
	// ErrNotSupported はバックエンドがドメインをサポートしていないことを示す。
	// ディスパッチャはこのエラーをスキップとして扱い、警告ログのみ出力する。
	ErrNotSupported = errors.New("domain not supported by this service")

	// ErrNoDelegate はマルチサービススペースに委譲先が未設定であることを示す。
	// スキップとして扱われ、エラーにはならない。
	ErrNoDelegate = errors.New("no delegate account set for this domain")

	// ErrNoCurrentAccount はアクティブなアカウントが存在しないことを示す。
	ErrNoCurrentAccount = errors.New("no current account")

	// ErrAccountNotFound は指定LocalIDのアカウントが存在しないことを示す。
	ErrAccountNotFound = errors.New("account not found")

	// ErrNotBound はストアが要求されたアカウントにバインドされていないことを示す。
	// アカウント切り替え中の誤読み出しを型レベルではなく実行時に防ぐ最終防衛線。
	ErrNotBound = errors.New("store not bound to requested account")
)

// APIError はHTTP APIの統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: account, validation, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAccountNotFound  = "ACCOUNT_NOT_FOUND"
	ErrCodeNoCurrentAccount = "NO_CURRENT_ACCOUNT"
	ErrCodeInvalidDomain    = "INVALID_DOMAIN"
	ErrCodeInvalidPeriod    = "INVALID_PERIOD"
	ErrCodeRefreshFailed    = "REFRESH_FAILED"
	ErrCodeHomeworkNotFound = "HOMEWORK_NOT_FOUND"
)

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(localID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", localID),
		Category: "account",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewNoCurrentAccountError はアクティブアカウント不在エラーを生成する。
func NewNoCurrentAccountError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCurrentAccount,
		Message:  "アクティブなアカウントがありません。",
		Category: "account",
		Action:   "先にアカウントを選択してください。",
	}
}

// NewInvalidDomainError は無効なドメインエラーを生成する。
func NewInvalidDomainError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDomain,
		Message:  fmt.Sprintf("無効なドメインです: %s", domain),
		Category: "validation",
		Action:   "news, homework, grades, timetable, attendance, evaluation, chat のいずれかを指定してください。",
	}
}

// NewInvalidPeriodError は無効なピリオドキーエラーを生成する。
func NewInvalidPeriodError(period string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPeriod,
		Message:  fmt.Sprintf("無効なピリオドキーです: %s", period),
		Category: "validation",
		Action:   "週スコープのドメインには週番号、学期スコープのドメインには学期名を指定してください。",
	}
}

// NewRefreshFailedError はフォアグラウンド更新失敗エラーを生成する。
func NewRefreshFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRefreshFailed,
		Message:  fmt.Sprintf("データの更新に失敗しました: %s", reason),
		Category: "sync",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewHomeworkNotFoundError は宿題未検出エラーを生成する。
func NewHomeworkNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeHomeworkNotFound,
		Message:  fmt.Sprintf("指定された宿題が見つかりません: %s", id),
		Category: "validation",
		Action:   "宿題IDを確認してください。",
	}
}
