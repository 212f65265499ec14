// Package books は蔵書カタログ管理のドメインロジックを提供する。
package books

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
	"github.com/hitoshi/toshokan/internal/security"
)

// Input は蔵書の作成・更新の入力。
type Input struct {
	Title           string
	Author          string
	CategoryID      string
	CoverURL        string
	Description     string
	Stock           int
	AccessLevel     model.AccessLevel
	ISBN            string
	Editor          string
	PageCount       int
	PublicationDate string
}

// Service は蔵書カタログ管理のビジネスロジックを提供する。
type Service struct {
	bookRepo     repository.BookRepository
	categoryRepo repository.CategoryRepository
	sanitizer    security.DescriptionSanitizerService
	coverFetcher CoverFetcherService
}

// NewService はServiceを生成する。
func NewService(
	bookRepo repository.BookRepository,
	categoryRepo repository.CategoryRepository,
	sanitizer security.DescriptionSanitizerService,
	coverFetcher CoverFetcherService,
) *Service {
	return &Service{
		bookRepo:     bookRepo,
		categoryRepo: categoryRepo,
		sanitizer:    sanitizer,
		coverFetcher: coverFetcher,
	}
}

// validate は入力の妥当性を検証する。
func (s *Service) validate(ctx context.Context, input Input) error {
	if input.Title == "" {
		return model.NewInvalidRequestError("タイトルが指定されていません")
	}
	if input.Author == "" {
		return model.NewInvalidRequestError("著者が指定されていません")
	}
	if input.Stock < 0 {
		return model.NewInvalidRequestError("在庫は0以上でなければなりません")
	}
	if _, ok := model.ParseAccessLevel(string(input.AccessLevel)); !ok {
		return model.NewInvalidRequestError(fmt.Sprintf("不正な公開区分です: %s", input.AccessLevel))
	}

	category, err := s.categoryRepo.FindByID(ctx, input.CategoryID)
	if err != nil {
		return fmt.Errorf("failed to find category: %w", err)
	}
	if category == nil {
		return model.NewInvalidRequestError("指定されたカテゴリが存在しません")
	}

	return nil
}

// Create は蔵書を作成する。
// 内容紹介はHTMLサニタイズし、書影URLが指定されていれば画像を取得して保存する。
func (s *Service) Create(ctx context.Context, input Input) (*model.Book, error) {
	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	coverData, coverMime, err := s.coverFetcher.FetchCover(ctx, input.CoverURL)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	book := &model.Book{
		ID:              uuid.New().String(),
		Title:           input.Title,
		Author:          input.Author,
		CategoryID:      input.CategoryID,
		CoverURL:        input.CoverURL,
		CoverData:       coverData,
		CoverMime:       coverMime,
		Description:     s.sanitizer.Sanitize(input.Description),
		Stock:           input.Stock,
		AccessLevel:     input.AccessLevel,
		ISBN:            input.ISBN,
		Editor:          input.Editor,
		PageCount:       input.PageCount,
		PublicationDate: input.PublicationDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.bookRepo.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	slog.Info("book created",
		slog.String("book_id", book.ID),
		slog.String("title", book.Title),
	)
	return book, nil
}

// Update は蔵書情報を更新する。存在しない場合はBOOK_NOT_FOUNDのエラーを返す。
// 書影URLが変更された場合のみ画像を再取得する。
func (s *Service) Update(ctx context.Context, id string, input Input) (*model.Book, error) {
	existing, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	if existing == nil {
		return nil, model.NewBookNotFoundError(id)
	}

	if err := s.validate(ctx, input); err != nil {
		return nil, err
	}

	book := *existing
	book.Title = input.Title
	book.Author = input.Author
	book.CategoryID = input.CategoryID
	book.Description = s.sanitizer.Sanitize(input.Description)
	book.Stock = input.Stock
	book.AccessLevel = input.AccessLevel
	book.ISBN = input.ISBN
	book.Editor = input.Editor
	book.PageCount = input.PageCount
	book.PublicationDate = input.PublicationDate

	if input.CoverURL != existing.CoverURL {
		coverData, coverMime, err := s.coverFetcher.FetchCover(ctx, input.CoverURL)
		if err != nil {
			return nil, err
		}
		book.CoverURL = input.CoverURL
		book.CoverData = coverData
		book.CoverMime = coverMime
	}

	if err := s.bookRepo.Update(ctx, &book); err != nil {
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	if input.CoverURL != existing.CoverURL {
		if err := s.bookRepo.UpdateCover(ctx, book.ID, book.CoverData, book.CoverMime); err != nil {
			return nil, fmt.Errorf("failed to update cover: %w", err)
		}
	}

	slog.Info("book updated", slog.String("book_id", book.ID))
	return &book, nil
}

// Delete は蔵書を削除する。存在しない場合はBOOK_NOT_FOUNDのエラーを返す。
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find book: %w", err)
	}
	if existing == nil {
		return model.NewBookNotFoundError(id)
	}

	if err := s.bookRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}

	slog.Info("book deleted", slog.String("book_id", id))
	return nil
}

// Get は指定IDの蔵書を返す。存在しない場合はBOOK_NOT_FOUNDのエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Book, error) {
	book, err := s.bookRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find book: %w", err)
	}
	if book == nil {
		return nil, model.NewBookNotFoundError(id)
	}
	return book, nil
}

// List は全蔵書を返す。
func (s *Service) List(ctx context.Context) ([]*model.Book, error) {
	books, err := s.bookRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// ListCategories は全カテゴリを返す。
func (s *Service) ListCategories(ctx context.Context) ([]*model.Category, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}
