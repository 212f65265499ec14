// Package lending は貸出・返却・統計のドメインロジックを提供する。
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/toshokan/internal/loanstatus"
	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
)

// popularBooksLimit はダッシュボードに表示する人気蔵書の件数。
const popularBooksLimit = 5

// Config は貸出サービスの設定。
type Config struct {
	LoanPeriodDays int // 返却期限の標準日数
}

// Stats はダッシュボード統計。
type Stats struct {
	TotalStock   int
	TitleCount   int
	ActiveLoans  int
	OverdueLoans int
	UserCount    int
	PopularBooks []repository.PopularBook
	LoansByRole  map[string]int
}

// Service は貸出・返却のビジネスロジックを提供する。
type Service struct {
	loanRepo  repository.LoanRepository
	bookRepo  repository.BookRepository
	userRepo  repository.UserRepository
	statsRepo repository.StatsRepository
	config    Config
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	loanRepo repository.LoanRepository,
	bookRepo repository.BookRepository,
	userRepo repository.UserRepository,
	statsRepo repository.StatsRepository,
	config Config,
) *Service {
	return &Service{
		loanRepo:  loanRepo,
		bookRepo:  bookRepo,
		userRepo:  userRepo,
		statsRepo: statsRepo,
		config:    config,
		now:       time.Now,
	}
}

// Borrow は貸出を実行する。
// 返却期限の指定は教員のみ有効で、それ以外は貸出日+標準日数を適用する。
// 在庫の減算と貸出行の作成はリポジトリ側で同一トランザクションで行われる。
func (s *Service) Borrow(ctx context.Context, bookID, userID string, quantity int, dueDate *time.Time) ([]*model.Loan, error) {
	if quantity < 1 {
		return nil, model.NewQuantityOutOfRangeError(quantity, 0)
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	book, err := s.bookRepo.FindByID(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}

	loanDate := s.now()
	if dueDate == nil || user.Role != model.RoleTeacher {
		d := loanDate.AddDate(0, 0, s.config.LoanPeriodDays)
		dueDate = &d
	}

	loans, err := s.loanRepo.Borrow(ctx, bookID, userID, quantity, loanDate, dueDate)
	if errors.Is(err, repository.ErrInsufficientStock) {
		// ロック下で再確認された在庫を残数として返す
		latest, findErr := s.bookRepo.FindByID(ctx, bookID)
		remaining := 0
		if findErr == nil && latest != nil {
			remaining = latest.Stock
		}
		return nil, model.NewOutOfStockError(remaining)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to borrow book: %w", err)
	}
	if loans == nil {
		return nil, model.NewBookNotFoundError(bookID)
	}

	slog.Info("book borrowed",
		slog.String("book_id", bookID),
		slog.String("user_id", userID),
		slog.Int("quantity", quantity),
	)
	return loans, nil
}

// Return は貸出を返却済みにする。
func (s *Service) Return(ctx context.Context, loanID string) (*model.Loan, error) {
	loan, err := s.loanRepo.Return(ctx, loanID, s.now())
	if errors.Is(err, repository.ErrLoanAlreadyReturned) {
		return nil, model.NewLoanAlreadyReturnedError()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to return loan: %w", err)
	}
	if loan == nil {
		return nil, model.NewLoanNotFoundError(loanID)
	}

	slog.Info("loan returned",
		slog.String("loan_id", loanID),
		slog.String("book_id", loan.BookID),
	)
	return loan, nil
}

// MyLoans は指定利用者の貸出一覧を返す。
func (s *Service) MyLoans(ctx context.Context, userID string) ([]*model.LoanWithBook, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	loans, err := s.loanRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	return loans, nil
}

// ActiveLoans は全利用者の貸出中一覧を返す。
func (s *Service) ActiveLoans(ctx context.Context) ([]*model.LoanWithBook, error) {
	loans, err := s.loanRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active loans: %w", err)
	}
	return loans, nil
}

// DashboardStats はダッシュボード統計を集計する。
// 延滞件数は貸出中一覧に対して期限判定を適用して数える。
func (s *Service) DashboardStats(ctx context.Context) (*Stats, error) {
	totalStock, titleCount, err := s.statsRepo.CountBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count books: %w", err)
	}

	activeLoans, err := s.statsRepo.CountActiveLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active loans: %w", err)
	}

	userCount, err := s.statsRepo.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	active, err := s.loanRepo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active loans: %w", err)
	}
	loans := make([]model.Loan, len(active))
	for i, l := range active {
		loans[i] = l.Loan
	}
	overdue := loanstatus.CountOverdue(loans, s.now())

	popular, err := s.statsRepo.PopularBooks(ctx, popularBooksLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular books: %w", err)
	}

	byRole, err := s.statsRepo.CountLoansByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count loans by role: %w", err)
	}

	return &Stats{
		TotalStock:   totalStock,
		TitleCount:   titleCount,
		ActiveLoans:  activeLoans,
		OverdueLoans: overdue,
		UserCount:    userCount,
		PopularBooks: popular,
		LoansByRole:  byRole,
	}, nil
}
