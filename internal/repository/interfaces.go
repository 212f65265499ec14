// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/toshokan/internal/model"
)

// ErrInsufficientStock は貸出数量が在庫を超えた場合に返される。
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrLoanAlreadyReturned は返却済みの貸出を再度返却しようとした場合に返される。
var ErrLoanAlreadyReturned = errors.New("loan already returned")

// UserRepository は利用者データの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDの利用者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名で利用者を検索する。見つからない場合はnilを返す。
	// 認証に使用するためパスワードハッシュも併せて返す。
	FindByUsername(ctx context.Context, username string) (*model.User, string, error)

	// Create は利用者を作成する。
	Create(ctx context.Context, user *model.User, passwordHash string) error

	// List は全利用者を作成日時順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// DeleteByID は指定IDの利用者を削除する。
	// 関連する貸出はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)

	// List は全カテゴリを名前順で返す。
	List(ctx context.Context) ([]*model.Category, error)

	// Create はカテゴリを作成する。
	Create(ctx context.Context, category *model.Category) error
}

// BookRepository は蔵書データの永続化インターフェース。
type BookRepository interface {
	// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Book, error)

	// List は全蔵書をタイトル順で返す。
	List(ctx context.Context) ([]*model.Book, error)

	// Create は蔵書を作成する。
	Create(ctx context.Context, book *model.Book) error

	// Update は蔵書情報を更新する。
	Update(ctx context.Context, book *model.Book) error

	// UpdateCover は蔵書の書影データを更新する。
	UpdateCover(ctx context.Context, bookID string, coverData []byte, coverMime string) error

	// DeleteByID は指定IDの蔵書を削除する。
	// 関連する貸出はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// LoanRepository は貸出データの永続化インターフェース。
type LoanRepository interface {
	// FindByID は指定IDの貸出を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Loan, error)

	// Borrow は同一トランザクション内で在庫を減算し、冊数分の貸出行を作成する。
	// 在庫行をFOR UPDATEでロックし、数量が在庫を超える場合はErrInsufficientStockを返す。
	Borrow(ctx context.Context, bookID, userID string, quantity int, loanDate time.Time, dueDate *time.Time) ([]*model.Loan, error)

	// Return は貸出を返却済みにし、同一トランザクション内で在庫を1戻す。
	// 見つからない場合はnilを返す。既に返却済みの場合はErrLoanAlreadyReturnedを返す。
	Return(ctx context.Context, loanID string, returnedAt time.Time) (*model.Loan, error)

	// ListByUserID は指定利用者の貸出一覧を蔵書情報付きで貸出日降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.LoanWithBook, error)

	// ListActive は全利用者の貸出中一覧を蔵書・利用者情報付きで貸出日降順で返す。
	ListActive(ctx context.Context) ([]*model.LoanWithBook, error)
}

// StatsRepository はダッシュボード統計の集計インターフェース。
type StatsRepository interface {
	// CountBooks は蔵書の総冊数（在庫合計）とタイトル数を返す。
	CountBooks(ctx context.Context) (totalStock, titleCount int, err error)

	// CountActiveLoans は貸出中の件数を返す。
	CountActiveLoans(ctx context.Context) (int, error)

	// CountUsers は利用者数を返す。
	CountUsers(ctx context.Context) (int, error)

	// PopularBooks は貸出回数の多い蔵書を上位limit件返す。
	PopularBooks(ctx context.Context, limit int) ([]PopularBook, error)

	// CountLoansByRole は貸出中の件数を利用者の役割別に集計して返す。
	CountLoansByRole(ctx context.Context) (map[string]int, error)
}

// PopularBook は貸出回数の集計結果。
type PopularBook struct {
	BookID    string
	Title     string
	LoanCount int
}
