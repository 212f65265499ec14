package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/toshokan/internal/model"
)

// PostgresBookRepo はPostgreSQLを使用した蔵書リポジトリ。
type PostgresBookRepo struct {
	db *sql.DB
}

// NewPostgresBookRepo はPostgresBookRepoを生成する。
func NewPostgresBookRepo(db *sql.DB) *PostgresBookRepo {
	return &PostgresBookRepo{db: db}
}

const bookColumns = `id, title, author, category_id, cover_url, cover_data, cover_mime,
	        description, stock, access_level, isbn, editor, page_count,
	        publication_date, created_at, updated_at`

// scanBook は1行分の蔵書をスキャンする。
func scanBook(row interface{ Scan(dest ...any) error }) (*model.Book, error) {
	book := &model.Book{}
	var coverData []byte
	var coverURL, coverMime, isbn, editor, publicationDate sql.NullString
	var pageCount sql.NullInt64

	err := row.Scan(
		&book.ID, &book.Title, &book.Author, &book.CategoryID,
		&coverURL, &coverData, &coverMime,
		&book.Description, &book.Stock, &book.AccessLevel,
		&isbn, &editor, &pageCount, &publicationDate,
		&book.CreatedAt, &book.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	book.CoverData = coverData
	book.CoverURL = nullStringValue(coverURL)
	book.CoverMime = nullStringValue(coverMime)
	book.ISBN = nullStringValue(isbn)
	book.Editor = nullStringValue(editor)
	book.PublicationDate = nullStringValue(publicationDate)
	if pageCount.Valid {
		book.PageCount = int(pageCount.Int64)
	}

	return book, nil
}

// FindByID は指定IDの蔵書を取得する。見つからない場合はnilを返す。
func (r *PostgresBookRepo) FindByID(ctx context.Context, id string) (*model.Book, error) {
	book, err := scanBook(r.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("蔵書の取得に失敗しました: %w", err)
	}
	return book, nil
}

// List は全蔵書をタイトル順で返す。
func (r *PostgresBookRepo) List(ctx context.Context) ([]*model.Book, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+bookColumns+` FROM books ORDER BY lower(title) ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("蔵書一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var books []*model.Book
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("蔵書一覧の読み取りに失敗しました: %w", err)
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("蔵書一覧の走査に失敗しました: %w", err)
	}

	return books, nil
}

// Create は蔵書を作成する。
func (r *PostgresBookRepo) Create(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO books (id, title, author, category_id, cover_url, cover_data, cover_mime,
		                    description, stock, access_level, isbn, editor, page_count,
		                    publication_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		book.ID, book.Title, book.Author, book.CategoryID,
		nullString(book.CoverURL), book.CoverData, nullString(book.CoverMime),
		book.Description, book.Stock, book.AccessLevel,
		nullString(book.ISBN), nullString(book.Editor), nullInt(book.PageCount),
		nullString(book.PublicationDate), book.CreatedAt, book.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("蔵書の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は蔵書情報を更新する。
func (r *PostgresBookRepo) Update(ctx context.Context, book *model.Book) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE books SET
		    title = $2, author = $3, category_id = $4, cover_url = $5,
		    description = $6, stock = $7, access_level = $8,
		    isbn = $9, editor = $10, page_count = $11, publication_date = $12,
		    updated_at = now()
		 WHERE id = $1`,
		book.ID, book.Title, book.Author, book.CategoryID, nullString(book.CoverURL),
		book.Description, book.Stock, book.AccessLevel,
		nullString(book.ISBN), nullString(book.Editor), nullInt(book.PageCount),
		nullString(book.PublicationDate),
	)
	if err != nil {
		return fmt.Errorf("蔵書の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateCover は蔵書の書影データを更新する。
func (r *PostgresBookRepo) UpdateCover(ctx context.Context, bookID string, coverData []byte, coverMime string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE books SET cover_data = $2, cover_mime = $3, updated_at = now() WHERE id = $1`,
		bookID, coverData, nullString(coverMime),
	)
	if err != nil {
		return fmt.Errorf("書影の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの蔵書を削除する。
func (r *PostgresBookRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("蔵書の削除に失敗しました: %w", err)
	}
	return nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullInt は0をsql.NullInt64に変換する。
func nullInt(i int) sql.NullInt64 {
	if i == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(i), Valid: true}
}

// compile-time interface check
var _ BookRepository = (*PostgresBookRepo)(nil)
