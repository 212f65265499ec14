package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toshokan/internal/books"
	"github.com/hitoshi/toshokan/internal/model"
)

// BookServiceInterface は蔵書ハンドラーが必要とするサービスインターフェース。
type BookServiceInterface interface {
	// Create は蔵書を登録する。
	Create(ctx context.Context, input books.Input) (*model.Book, error)
	// Update は蔵書情報を更新する。
	Update(ctx context.Context, id string, input books.Input) (*model.Book, error)
	// Delete は蔵書を削除する。
	Delete(ctx context.Context, id string) error
	// Get は蔵書の詳細を取得する。
	Get(ctx context.Context, id string) (*model.Book, error)
	// List は全蔵書を返す。
	List(ctx context.Context) ([]*model.Book, error)
	// ListCategories は全分類を返す。
	ListCategories(ctx context.Context) ([]*model.Category, error)
}

// BookHandler は蔵書管理のHTTPハンドラー。
type BookHandler struct {
	service BookServiceInterface
}

// NewBookHandler はBookHandlerを生成する。
func NewBookHandler(service BookServiceInterface) *BookHandler {
	return &BookHandler{service: service}
}

// bookRequest は蔵書の登録・更新リクエストのボディ。
type bookRequest struct {
	Title           string `json:"title"`
	Author          string `json:"author"`
	CategoryID      string `json:"category_id"`
	CoverURL        string `json:"cover_url"`
	Description     string `json:"description"`
	Stock           int    `json:"stock"`
	AccessLevel     string `json:"access_level"`
	ISBN            string `json:"isbn"`
	Editor          string `json:"editor"`
	PageCount       int    `json:"page_count"`
	PublicationDate string `json:"publication_date"`
}

// bookResponse は蔵書情報のAPIレスポンス。
type bookResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	CategoryID      string `json:"category_id"`
	CoverURL        string `json:"cover_url"`
	Description     string `json:"description"`
	Stock           int    `json:"stock"`
	AccessLevel     string `json:"access_level"`
	ISBN            string `json:"isbn,omitempty"`
	Editor          string `json:"editor,omitempty"`
	PageCount       int    `json:"page_count,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
}

// categoryResponse は分類のAPIレスポンス。
type categoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListBooks は蔵書一覧を返す。
// GET /api/books
func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]bookResponse, 0, len(list))
	for _, b := range list {
		responses = append(responses, toBookResponse(b))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// GetBook は蔵書詳細を返す。
// GET /api/books/:id
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toBookResponse(book))
}

// CreateBook は蔵書登録を処理する。
// POST /api/books
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeBookInput(w, r)
	if !ok {
		return
	}

	book, err := h.service.Create(r.Context(), input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toBookResponse(book))
}

// UpdateBook は蔵書更新を処理する。
// PUT /api/books/:id
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	input, ok := decodeBookInput(w, r)
	if !ok {
		return
	}

	book, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toBookResponse(book))
}

// DeleteBook は蔵書削除を処理する。
// DELETE /api/books/:id
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCover は蔵書の書影画像を返す。
// GET /api/books/:id/cover
func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	book, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if len(book.CoverData) == 0 {
		writeAPIErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "COVER_NOT_FOUND",
			Message:  "この蔵書には書影が登録されていません。",
			Category: "lending",
			Action:   "書影URLを設定して蔵書を更新してください。",
		})
		return
	}

	w.Header().Set("Content-Type", book.CoverMime)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(book.CoverData)
}

// ListCategories は分類一覧を返す。
// GET /api/categories
func (h *BookHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		responses = append(responses, categoryResponse{ID: c.ID, Name: c.Name})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// --- ヘルパー関数 ---

// decodeBookInput はリクエストボディを蔵書入力に変換する。
// 解析に失敗した場合はエラーレスポンスを書き込み、falseを返す。
func decodeBookInput(w http.ResponseWriter, r *http.Request) (books.Input, bool) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return books.Input{}, false
	}

	return books.Input{
		Title:           req.Title,
		Author:          req.Author,
		CategoryID:      req.CategoryID,
		CoverURL:        req.CoverURL,
		Description:     req.Description,
		Stock:           req.Stock,
		AccessLevel:     model.AccessLevel(req.AccessLevel),
		ISBN:            req.ISBN,
		Editor:          req.Editor,
		PageCount:       req.PageCount,
		PublicationDate: req.PublicationDate,
	}, true
}

// toBookResponse はmodel.BookからAPIレスポンスに変換する。
// 書影のバイナリは含めない（GET /api/books/:id/cover で別途配信する）。
func toBookResponse(book *model.Book) bookResponse {
	return bookResponse{
		ID:              book.ID,
		Title:           book.Title,
		Author:          book.Author,
		CategoryID:      book.CategoryID,
		CoverURL:        book.CoverURL,
		Description:     book.Description,
		Stock:           book.Stock,
		AccessLevel:     string(book.AccessLevel),
		ISBN:            book.ISBN,
		Editor:          book.Editor,
		PageCount:       book.PageCount,
		PublicationDate: book.PublicationDate,
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeAuthenticationFailed, model.ErrCodeNoSession:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidRequest, model.ErrCodeQuantityOutOfRange, model.ErrCodeInvalidRole:
		return http.StatusBadRequest
	case model.ErrCodeUnsafeCoverURL:
		return http.StatusForbidden
	case model.ErrCodeOutOfStock, model.ErrCodeLoanAlreadyReturned:
		return http.StatusConflict
	case model.ErrCodeBookNotFound, model.ErrCodeLoanNotFound,
		model.ErrCodeUserNotFound, model.ErrCodeISBNNotFound, "COVER_NOT_FOUND":
		return http.StatusNotFound
	case model.ErrCodeRemoteFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
