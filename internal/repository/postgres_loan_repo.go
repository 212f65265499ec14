package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toshokan/internal/model"
)

// PostgresLoanRepo はPostgreSQLを使用した貸出リポジトリ。
type PostgresLoanRepo struct {
	db *sql.DB
}

// NewPostgresLoanRepo はPostgresLoanRepoを生成する。
func NewPostgresLoanRepo(db *sql.DB) *PostgresLoanRepo {
	return &PostgresLoanRepo{db: db}
}

// FindByID は指定IDの貸出を取得する。見つからない場合はnilを返す。
func (r *PostgresLoanRepo) FindByID(ctx context.Context, id string) (*model.Loan, error) {
	loan := &model.Loan{}
	var dueDate, returnedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, book_id, user_id, loan_date, due_date, returned_at, status
		 FROM loans WHERE id = $1`, id,
	).Scan(&loan.ID, &loan.BookID, &loan.UserID, &loan.LoanDate, &dueDate, &returnedAt, &loan.Status)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("貸出の取得に失敗しました: %w", err)
	}

	loan.DueDate = nullTimeValue(dueDate)
	loan.ReturnedAt = nullTimeValue(returnedAt)
	return loan, nil
}

// Borrow は同一トランザクション内で在庫を減算し、冊数分の貸出行を作成する。
// 在庫行をFOR UPDATEでロックするため、並行する貸出が同じ在庫を二重に消費することはない。
func (r *PostgresLoanRepo) Borrow(ctx context.Context, bookID, userID string, quantity int, loanDate time.Time, dueDate *time.Time) ([]*model.Loan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	var stock int
	err = tx.QueryRowContext(ctx,
		`SELECT stock FROM books WHERE id = $1 FOR UPDATE`, bookID,
	).Scan(&stock)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("在庫の取得に失敗しました: %w", err)
	}

	if stock < quantity {
		return nil, ErrInsufficientStock
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET stock = stock - $2, updated_at = now() WHERE id = $1`,
		bookID, quantity,
	); err != nil {
		return nil, fmt.Errorf("在庫の減算に失敗しました: %w", err)
	}

	// 冊数分の貸出行を作成する（1冊 = 1行）
	loans := make([]*model.Loan, 0, quantity)
	for i := 0; i < quantity; i++ {
		loan := &model.Loan{
			ID:       uuid.New().String(),
			BookID:   bookID,
			UserID:   userID,
			LoanDate: loanDate,
			DueDate:  dueDate,
			Status:   model.LoanStatusActive,
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO loans (id, book_id, user_id, loan_date, due_date, status)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			loan.ID, loan.BookID, loan.UserID, loan.LoanDate, nullTime(loan.DueDate), loan.Status,
		); err != nil {
			return nil, fmt.Errorf("貸出の作成に失敗しました: %w", err)
		}
		loans = append(loans, loan)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return loans, nil
}

// Return は貸出を返却済みにし、同一トランザクション内で在庫を1戻す。
// 見つからない場合はnilを返す。既に返却済みの場合はErrLoanAlreadyReturnedを返す。
func (r *PostgresLoanRepo) Return(ctx context.Context, loanID string, returnedAt time.Time) (*model.Loan, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	loan := &model.Loan{}
	var dueDate, prevReturnedAt sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT id, book_id, user_id, loan_date, due_date, returned_at, status
		 FROM loans WHERE id = $1 FOR UPDATE`, loanID,
	).Scan(&loan.ID, &loan.BookID, &loan.UserID, &loan.LoanDate, &dueDate, &prevReturnedAt, &loan.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("貸出の取得に失敗しました: %w", err)
	}

	if loan.Status == model.LoanStatusReturned {
		return nil, ErrLoanAlreadyReturned
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE loans SET status = $2, returned_at = $3 WHERE id = $1`,
		loanID, model.LoanStatusReturned, returnedAt,
	); err != nil {
		return nil, fmt.Errorf("貸出の更新に失敗しました: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE books SET stock = stock + 1, updated_at = now() WHERE id = $1`,
		loan.BookID,
	); err != nil {
		return nil, fmt.Errorf("在庫の復元に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	loan.DueDate = nullTimeValue(dueDate)
	loan.Status = model.LoanStatusReturned
	loan.ReturnedAt = &returnedAt
	return loan, nil
}

// ListByUserID は指定利用者の貸出一覧を蔵書情報付きで貸出日降順で返す。
func (r *PostgresLoanRepo) ListByUserID(ctx context.Context, userID string) ([]*model.LoanWithBook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.book_id, l.user_id, l.loan_date, l.due_date, l.returned_at, l.status,
		        b.title, b.cover_url, u.username
		 FROM loans l
		 INNER JOIN books b ON l.book_id = b.id
		 INNER JOIN users u ON l.user_id = u.id
		 WHERE l.user_id = $1
		 ORDER BY l.loan_date DESC, l.id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("貸出一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanLoansWithBook(rows)
}

// ListActive は全利用者の貸出中一覧を蔵書・利用者情報付きで貸出日降順で返す。
func (r *PostgresLoanRepo) ListActive(ctx context.Context) ([]*model.LoanWithBook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.id, l.book_id, l.user_id, l.loan_date, l.due_date, l.returned_at, l.status,
		        b.title, b.cover_url, u.username
		 FROM loans l
		 INNER JOIN books b ON l.book_id = b.id
		 INNER JOIN users u ON l.user_id = u.id
		 WHERE l.status = 'Active'
		 ORDER BY l.loan_date DESC, l.id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("貸出中一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanLoansWithBook(rows)
}

// scanLoansWithBook は蔵書・利用者情報付きの貸出行をスキャンする。
func scanLoansWithBook(rows *sql.Rows) ([]*model.LoanWithBook, error) {
	var loans []*model.LoanWithBook
	for rows.Next() {
		loan := &model.LoanWithBook{}
		var dueDate, returnedAt sql.NullTime
		var coverURL sql.NullString

		if err := rows.Scan(
			&loan.ID, &loan.BookID, &loan.UserID, &loan.LoanDate,
			&dueDate, &returnedAt, &loan.Status,
			&loan.BookTitle, &coverURL, &loan.Username,
		); err != nil {
			return nil, fmt.Errorf("貸出一覧の読み取りに失敗しました: %w", err)
		}

		loan.DueDate = nullTimeValue(dueDate)
		loan.ReturnedAt = nullTimeValue(returnedAt)
		loan.BookCover = nullStringValue(coverURL)
		loans = append(loans, loan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("貸出一覧の走査に失敗しました: %w", err)
	}

	return loans, nil
}

// nullTime は*time.Timeをsql.NullTimeに変換する。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullTimeValue はsql.NullTimeから*time.Timeを取得する。
func nullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// compile-time interface check
var _ LoanRepository = (*PostgresLoanRepo)(nil)
