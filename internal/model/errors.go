// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 画面に表示する原因カテゴリと対処方法を含む。
// カテゴリ: auth（認証失敗）, validation（入力検証）, lending（貸出・蔵書）,
// network（リモート呼び出し失敗）, system（内部エラー）。
// 権限による非表示（AuthorizationDenied）はエラーではなくpolicyの判定として扱う。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, lending, network, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeQuantityOutOfRange   = "QUANTITY_OUT_OF_RANGE"
	ErrCodeOutOfStock           = "OUT_OF_STOCK"
	ErrCodeBookNotFound         = "BOOK_NOT_FOUND"
	ErrCodeLoanNotFound         = "LOAN_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeLoanAlreadyReturned  = "LOAN_ALREADY_RETURNED"
	ErrCodeInvalidRole          = "INVALID_ROLE"
	ErrCodeUnsafeCoverURL       = "UNSAFE_COVER_URL"
	ErrCodeISBNNotFound         = "ISBN_NOT_FOUND"
	ErrCodeRemoteFailure        = "REMOTE_FAILURE"
	ErrCodeNoSession            = "NO_SESSION"
)

// NewAuthenticationFailedError は認証失敗エラーを生成する。
// セッションには影響を与えず、ログインフォーム上のメッセージとして表示される。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewNoSessionError は未ログイン状態でログイン必須操作を行った場合のエラーを生成する。
func NewNoSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSession,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "login コマンドでログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewQuantityOutOfRangeError は貸出数量の範囲外エラーを生成する。
// 数量は1以上かつ現在の在庫数以下でなければならない。
func NewQuantityOutOfRangeError(quantity, stock int) *APIError {
	return &APIError{
		Code:     ErrCodeQuantityOutOfRange,
		Message:  fmt.Sprintf("貸出数量が範囲外です: %d（指定可能: 1〜%d）", quantity, stock),
		Category: "validation",
		Action:   "在庫数以内の数量を指定してください。",
	}
}

// NewOutOfStockError は在庫不足エラーを生成する。
// remainingは現時点の残り在庫数。
func NewOutOfStockError(remaining int) *APIError {
	return &APIError{
		Code:     ErrCodeOutOfStock,
		Message:  fmt.Sprintf("在庫が不足しています。残り%d冊です。", remaining),
		Category: "lending",
		Action:   "在庫が戻るまでお待ちいただくか、数量を減らしてください。",
	}
}

// NewBookNotFoundError は蔵書未検出エラーを生成する。
func NewBookNotFoundError(bookID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookNotFound,
		Message:  fmt.Sprintf("指定された蔵書が見つかりません: %s", bookID),
		Category: "lending",
		Action:   "蔵書IDを確認してください。",
	}
}

// NewLoanNotFoundError は貸出記録未検出エラーを生成する。
func NewLoanNotFoundError(loanID string) *APIError {
	return &APIError{
		Code:     ErrCodeLoanNotFound,
		Message:  fmt.Sprintf("指定された貸出記録が見つかりません: %s", loanID),
		Category: "lending",
		Action:   "貸出IDを確認してください。",
	}
}

// NewUserNotFoundError は利用者未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "利用者が見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewLoanAlreadyReturnedError は返却済み貸出の再返却エラーを生成する。
func NewLoanAlreadyReturnedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoanAlreadyReturned,
		Message:  "この貸出はすでに返却済みです。",
		Category: "lending",
		Action:   "貸出一覧を再読み込みしてください。",
	}
}

// NewInvalidRoleError は未知の役割が指定された場合のエラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("無効な役割です: %s", role),
		Category: "validation",
		Action:   "Student、Teacher、Librarian のいずれかを指定してください。",
	}
}

// NewUnsafeCoverURLError は表紙URLがセキュリティポリシーに違反する場合のエラーを生成する。
func NewUnsafeCoverURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsafeCoverURL,
		Message:  fmt.Sprintf("表紙URLが許可されていません: %s", reason),
		Category: "validation",
		Action:   "公開されているWebサイトの http/https URLを指定してください。",
	}
}

// NewISBNNotFoundError はISBN検索で該当書誌が見つからない場合のエラーを生成する。
func NewISBNNotFoundError(isbn string) *APIError {
	return &APIError{
		Code:     ErrCodeISBNNotFound,
		Message:  fmt.Sprintf("ISBNに該当する書誌情報が見つかりません: %s", isbn),
		Category: "lending",
		Action:   "ISBNを確認するか、書誌情報を手動で入力してください。",
	}
}

// NewRemoteFailureError はリモートサービス呼び出し失敗エラーを生成する。
// ローカル状態はこのエラーによって変更されない。
func NewRemoteFailureError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRemoteFailure,
		Message:  fmt.Sprintf("サーバーとの通信に失敗しました: %s", reason),
		Category: "network",
		Action:   "接続状態を確認し、しばらく待ってから再度お試しください。",
	}
}
