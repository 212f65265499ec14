// Package model はドメインモデルを定義する。
package model

import "time"

// LoanStatus は貸出の状態を表す。
type LoanStatus string

const (
	// LoanStatusActive は貸出中の状態。
	LoanStatusActive LoanStatus = "Active"
	// LoanStatusReturned は返却済みの状態。返却処理は司書のみが行う。
	LoanStatusReturned LoanStatus = "Returned"
)

// Loan は貸出記録を表す。
// 貸出成功時に作成され、返却時にReturnedへ遷移する。削除されることはない。
// DueDateがnilの貸出は返却期限なしとして扱い、延滞判定の対象外とする。
type Loan struct {
	ID         string
	BookID     string
	UserID     string
	LoanDate   time.Time
	DueDate    *time.Time
	ReturnedAt *time.Time
	Status     LoanStatus
}

// LoanWithBook は貸出記録に一覧表示用の蔵書・利用者情報を付加したもの。
type LoanWithBook struct {
	Loan
	BookTitle string
	BookCover string
	Username  string
}
