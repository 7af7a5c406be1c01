package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: content, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeContentNotFound = "CONTENT_NOT_FOUND"
	ErrCodeInvalidContent  = "INVALID_CONTENT"
	ErrCodeInvalidSurface  = "INVALID_SURFACE"
	ErrCodeSyncFailed      = "SYNC_FAILED"

	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeAdminDisabled     = "ADMIN_DISABLED"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewContentNotFoundError はコンテンツ未検出エラーを生成する。
// keyにはIDまたはスラッグを渡す。
func NewContentNotFoundError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeContentNotFound,
		Message:  fmt.Sprintf("指定されたコンテンツが見つかりません: %s", key),
		Category: "content",
		Action:   "URLまたはIDを確認してください。",
	}
}

// NewInvalidContentError は入力内容が不正な場合のエラーを生成する。
func NewInvalidContentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidContent,
		Message:  fmt.Sprintf("コンテンツの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidSurfaceError は未知の掲載面が指定された場合のエラーを生成する。
func NewInvalidSurfaceError(surface string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSurface,
		Message:  fmt.Sprintf("無効な掲載面です: %s", surface),
		Category: "validation",
		Action:   "trending_home、featured_edmonton などの定義済みの掲載面を指定してください。",
	}
}

// NewSyncFailedError は同期処理が失敗した場合のエラーを生成する。
func NewSyncFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  "リモートストアからの同期に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディを解釈できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewAdminDisabledError は管理APIが無効化されている場合のエラーを生成する。
func NewAdminDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminDisabled,
		Message:  "管理APIは無効化されています。",
		Category: "auth",
		Action:   "ADMIN_TOKENを設定してください。",
	}
}

// NewUnauthorizedError は管理APIの認証に失敗した場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証に失敗しました。",
		Category: "auth",
		Action:   "Authorizationヘッダーに正しいトークンを指定してください。",
	}
}

// NewRateLimitExceededError はレート制限を超過した場合のエラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "指定された時間が経過してから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
