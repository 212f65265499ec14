package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toshokan/internal/lending"
	"github.com/hitoshi/toshokan/internal/metrics"
	"github.com/hitoshi/toshokan/internal/model"
)

// LendingServiceInterface は貸出ハンドラーが必要とするサービスインターフェース。
type LendingServiceInterface interface {
	// Borrow は蔵書の貸出を実行する。
	Borrow(ctx context.Context, bookID, userID string, quantity int, dueDate *time.Time) ([]*model.Loan, error)
	// Return は貸出の返却処理を実行する。
	Return(ctx context.Context, loanID string) (*model.Loan, error)
	// MyLoans は指定利用者の貸出一覧を返す。
	MyLoans(ctx context.Context, userID string) ([]*model.LoanWithBook, error)
	// ActiveLoans は全利用者の貸出中一覧を返す。
	ActiveLoans(ctx context.Context) ([]*model.LoanWithBook, error)
	// DashboardStats はダッシュボード統計を集計する。
	DashboardStats(ctx context.Context) (*lending.Stats, error)
}

// LoanHandler は貸出・返却のHTTPハンドラー。
type LoanHandler struct {
	service   LendingServiceInterface
	collector metrics.MetricsCollector
}

// NewLoanHandler はLoanHandlerを生成する。collectorはnil可。
func NewLoanHandler(service LendingServiceInterface, collector metrics.MetricsCollector) *LoanHandler {
	return &LoanHandler{
		service:   service,
		collector: collector,
	}
}

// borrowRequest は貸出リクエストのボディ。
type borrowRequest struct {
	UserID   string     `json:"user_id"`
	Quantity int        `json:"quantity"`
	DueDate  *time.Time `json:"due_date"`
}

// loanResponse は貸出記録のAPIレスポンス。
type loanResponse struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	UserID     string     `json:"user_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    *time.Time `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at"`
	Status     string     `json:"status"`
	BookTitle  string     `json:"book_title,omitempty"`
	BookCover  string     `json:"book_cover,omitempty"`
	Username   string     `json:"username,omitempty"`
}

// statsResponse はダッシュボード統計のAPIレスポンス。
type statsResponse struct {
	TotalBooks   int                   `json:"total_books"`
	TotalTitles  int                   `json:"total_titles"`
	TotalUsers   int                   `json:"total_users"`
	ActiveLoans  int                   `json:"active_loans"`
	OverdueLoans int                   `json:"overdue_loans"`
	PopularBooks []popularBookResponse `json:"popular_books"`
	LoansByRole  map[string]int        `json:"loans_by_role"`
}

// popularBookResponse は貸出回数上位の蔵書。
type popularBookResponse struct {
	Title     string `json:"title"`
	LoanCount int    `json:"loan_count"`
}

// BorrowBook は蔵書の貸出を処理する。
// POST /api/books/:id/borrow
func (h *LoanHandler) BorrowBook(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "id")

	var req borrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	loans, err := h.service.Borrow(r.Context(), bookID, req.UserID, req.Quantity, req.DueDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordBorrow(len(loans))
	}

	responses := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		responses = append(responses, toLoanResponse(loan))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(responses)
}

// ReturnLoan は貸出の返却処理を行う。
// POST /api/loans/:id/return
func (h *LoanHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	loanID := chi.URLParam(r, "id")

	loan, err := h.service.Return(r.Context(), loanID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.collector != nil {
		h.collector.RecordReturn()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toLoanResponse(loan))
}

// MyLoans は指定利用者の貸出一覧を返す。
// GET /api/my-loans?user_id=
func (h *LoanHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("user_idパラメータが必要です"))
		return
	}

	loans, err := h.service.MyLoans(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toLoanWithBookResponses(loans))
}

// ActiveLoans は全利用者の貸出中一覧を返す。
// GET /api/loans/active
func (h *LoanHandler) ActiveLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.service.ActiveLoans(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toLoanWithBookResponses(loans))
}

// DashboardStats はダッシュボード統計を返す。
// GET /api/stats/dashboard
func (h *LoanHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	popular := make([]popularBookResponse, 0, len(stats.PopularBooks))
	for _, pb := range stats.PopularBooks {
		popular = append(popular, popularBookResponse{
			Title:     pb.Title,
			LoanCount: pb.LoanCount,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statsResponse{
		TotalBooks:   stats.TotalStock,
		TotalTitles:  stats.TitleCount,
		TotalUsers:   stats.UserCount,
		ActiveLoans:  stats.ActiveLoans,
		OverdueLoans: stats.OverdueLoans,
		PopularBooks: popular,
		LoansByRole:  stats.LoansByRole,
	})
}

// toLoanResponse はmodel.LoanからAPIレスポンスに変換する。
func toLoanResponse(loan *model.Loan) loanResponse {
	return loanResponse{
		ID:         loan.ID,
		BookID:     loan.BookID,
		UserID:     loan.UserID,
		LoanDate:   loan.LoanDate,
		DueDate:    loan.DueDate,
		ReturnedAt: loan.ReturnedAt,
		Status:     string(loan.Status),
	}
}

// toLoanWithBookResponses は一覧表示用の貸出レスポンスに変換する。
func toLoanWithBookResponses(loans []*model.LoanWithBook) []loanResponse {
	responses := make([]loanResponse, 0, len(loans))
	for _, loan := range loans {
		resp := toLoanResponse(&loan.Loan)
		resp.BookTitle = loan.BookTitle
		resp.BookCover = loan.BookCover
		resp.Username = loan.Username
		responses = append(responses, resp)
	}
	return responses
}
