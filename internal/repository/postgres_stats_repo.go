package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStatsRepo はPostgreSQLを使用した統計リポジトリ。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// CountBooks は蔵書の総冊数（在庫合計）とタイトル数を返す。
func (r *PostgresStatsRepo) CountBooks(ctx context.Context) (totalStock, titleCount int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(stock), 0), COUNT(*) FROM books`,
	).Scan(&totalStock, &titleCount)
	if err != nil {
		return 0, 0, fmt.Errorf("蔵書数の集計に失敗しました: %w", err)
	}
	return totalStock, titleCount, nil
}

// CountActiveLoans は貸出中の件数を返す。
func (r *PostgresStatsRepo) CountActiveLoans(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE status = 'Active'`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("貸出中件数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// CountUsers は利用者数を返す。
func (r *PostgresStatsRepo) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("利用者数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// PopularBooks は貸出回数の多い蔵書を上位limit件返す。
func (r *PostgresStatsRepo) PopularBooks(ctx context.Context, limit int) ([]PopularBook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.title, COUNT(l.id) AS loan_count
		 FROM books b
		 INNER JOIN loans l ON b.id = l.book_id
		 GROUP BY b.id, b.title
		 ORDER BY loan_count DESC, b.title ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("人気蔵書の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	var books []PopularBook
	for rows.Next() {
		var pb PopularBook
		if err := rows.Scan(&pb.BookID, &pb.Title, &pb.LoanCount); err != nil {
			return nil, fmt.Errorf("人気蔵書の読み取りに失敗しました: %w", err)
		}
		books = append(books, pb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("人気蔵書の走査に失敗しました: %w", err)
	}

	return books, nil
}

// CountLoansByRole は貸出中の件数を利用者の役割別に集計して返す。
func (r *PostgresStatsRepo) CountLoansByRole(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.role, COUNT(l.id)
		 FROM loans l
		 INNER JOIN users u ON l.user_id = u.id
		 WHERE l.status = 'Active'
		 GROUP BY u.role`,
	)
	if err != nil {
		return nil, fmt.Errorf("役割別貸出件数の集計に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var role string
		var count int
		if err := rows.Scan(&role, &count); err != nil {
			return nil, fmt.Errorf("役割別貸出件数の読み取りに失敗しました: %w", err)
		}
		counts[role] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("役割別貸出件数の走査に失敗しました: %w", err)
	}

	return counts, nil
}

// compile-time interface check
var _ StatsRepository = (*PostgresStatsRepo)(nil)
