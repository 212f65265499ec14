// Package apiclient は図書館APIサーバーへのリクエスト/レスポンス変換を提供する。
//
// 各メソッドはエンドポイントへの薄い対応付けであり、ビジネスロジックは持たない。
// サーバーの統一エラーフォーマット（code, message, category, action）を
// model.APIErrorに復元し、復元できないエラーはRemoteFailureとして返す。
// 送信はトークンバケットで抑制し、サーバーへの瞬間的な集中を避ける。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/toshokan/internal/model"
)

// defaultTimeout はHTTPリクエストの既定タイムアウト。
const defaultTimeout = 10 * time.Second

// Client は図書館APIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Config はClientの生成オプション。
type Config struct {
	// BaseURL はAPIのベースURL（例: "http://localhost:8000"）。
	BaseURL string
	// HTTPClient は使用するHTTPクライアント。nilの場合は既定タイムアウト付きで生成する。
	HTTPClient *http.Client
	// RequestsPerSecond は送信レートの上限。0以下の場合は制限しない。
	RequestsPerSecond float64
	// Logger はログ出力先。nilの場合はslog.Defaultを使用する。
	Logger *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)+1)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

// --- ワイヤフォーマット ---

// errorEnvelope はサーバーの統一エラーレスポンス。
type errorEnvelope struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// userPayload は利用者のワイヤ表現。
type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// bookPayload は蔵書のワイヤ表現。
type bookPayload struct {
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

// categoryPayload は分類のワイヤ表現。
type categoryPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// loanPayload は貸出記録のワイヤ表現。
type loanPayload struct {
	ID         string     `json:"id"`
	BookID     string     `json:"book_id"`
	UserID     string     `json:"user_id"`
	LoanDate   time.Time  `json:"loan_date"`
	DueDate    *time.Time `json:"due_date"`
	ReturnedAt *time.Time `json:"returned_at"`
	Status     string     `json:"status"`
	BookTitle  string     `json:"book_title"`
	BookCover  string     `json:"book_cover"`
	Username   string     `json:"username"`
}

func (p bookPayload) toModel() model.Book {
	level, ok := model.ParseAccessLevel(p.AccessLevel)
	if !ok {
		level = model.AccessEveryone
	}
	return model.Book{
		ID:              p.ID,
		Title:           p.Title,
		Author:          p.Author,
		CategoryID:      p.CategoryID,
		CoverURL:        p.CoverURL,
		Description:     p.Description,
		Stock:           p.Stock,
		AccessLevel:     level,
		ISBN:            p.ISBN,
		Editor:          p.Editor,
		PageCount:       p.PageCount,
		PublicationDate: p.PublicationDate,
	}
}

func (p loanPayload) toModel() model.LoanWithBook {
	status := model.LoanStatus(p.Status)
	return model.LoanWithBook{
		Loan: model.Loan{
			ID:         p.ID,
			BookID:     p.BookID,
			UserID:     p.UserID,
			LoanDate:   p.LoanDate,
			DueDate:    p.DueDate,
			ReturnedAt: p.ReturnedAt,
			Status:     status,
		},
		BookTitle: p.BookTitle,
		BookCover: p.BookCover,
		Username:  p.Username,
	}
}

// --- 認証 ---

// Login は認証を行い、成功時に利用者情報を返す。
// 認証失敗はAUTHENTICATION_FAILEDのAPIErrorとして返し、
// 呼び出し側のセッション状態には影響を与えない。
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	body := map[string]string{"username": username, "password": password}

	var payload userPayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/login", body, &payload); err != nil {
		return nil, err
	}

	role, ok := model.ParseRole(payload.Role)
	if !ok {
		return nil, model.NewRemoteFailureError(fmt.Sprintf("未知の役割を受信しました: %s", payload.Role))
	}
	return &model.User{ID: payload.ID, Username: payload.Username, Role: role}, nil
}

// --- 蔵書 ---

// ListBooks は全蔵書の一覧を取得する。
func (c *Client) ListBooks(ctx context.Context) ([]model.Book, error) {
	var payloads []bookPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/books", nil, &payloads); err != nil {
		return nil, err
	}

	books := make([]model.Book, 0, len(payloads))
	for _, p := range payloads {
		books = append(books, p.toModel())
	}
	return books, nil
}

// GetBook は蔵書の詳細を取得する。見つからない場合はBOOK_NOT_FOUNDを返す。
func (c *Client) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var payload bookPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/books/"+url.PathEscape(id), nil, &payload); err != nil {
		return nil, err
	}
	book := payload.toModel()
	return &book, nil
}

// BookInput は蔵書の登録・更新の入力。
type BookInput struct {
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

// CreateBook は蔵書を登録する。司書専用の管理操作。
func (c *Client) CreateBook(ctx context.Context, input BookInput) (*model.Book, error) {
	var payload bookPayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/books", input, &payload); err != nil {
		return nil, err
	}
	book := payload.toModel()
	return &book, nil
}

// UpdateBook は蔵書を更新する。司書専用の管理操作。
func (c *Client) UpdateBook(ctx context.Context, id string, input BookInput) (*model.Book, error) {
	var payload bookPayload
	if err := c.doJSON(ctx, http.MethodPut, "/api/books/"+url.PathEscape(id), input, &payload); err != nil {
		return nil, err
	}
	book := payload.toModel()
	return &book, nil
}

// DeleteBook は蔵書を削除する。司書専用の管理操作。
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/books/"+url.PathEscape(id), nil, nil)
}

// ListCategories は分類の一覧を取得する。
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var payloads []categoryPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/categories", nil, &payloads); err != nil {
		return nil, err
	}

	categories := make([]model.Category, 0, len(payloads))
	for _, p := range payloads {
		categories = append(categories, model.Category{ID: p.ID, Name: p.Name})
	}
	return categories, nil
}

// --- 貸出 ---

// BorrowRequest は貸出リクエスト。
type BorrowRequest struct {
	UserID   string     `json:"user_id"`
	Quantity int        `json:"quantity"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

// BorrowBook は蔵書の貸出を実行し、サーバーが作成した貸出記録を返す。
// 返却期限はサーバー側で確定されるため、返り値の期限が正となる。
// 在庫不足などの失敗はサーバーのエラーメッセージをAPIErrorとして返す。
func (c *Client) BorrowBook(ctx context.Context, bookID string, req BorrowRequest) ([]model.Loan, error) {
	var payloads []loanPayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/books/"+url.PathEscape(bookID)+"/borrow", req, &payloads); err != nil {
		return nil, err
	}

	loans := make([]model.Loan, 0, len(payloads))
	for _, p := range payloads {
		loans = append(loans, p.toModel().Loan)
	}
	return loans, nil
}

// ReturnLoan は貸出の返却処理を実行する。司書専用。
func (c *Client) ReturnLoan(ctx context.Context, loanID string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/loans/"+url.PathEscape(loanID)+"/return", nil, nil)
}

// MyLoans は指定利用者の貸出一覧を取得する。
func (c *Client) MyLoans(ctx context.Context, userID string) ([]model.LoanWithBook, error) {
	path := "/api/my-loans?user_id=" + url.QueryEscape(userID)

	var payloads []loanPayload
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &payloads); err != nil {
		return nil, err
	}

	loans := make([]model.LoanWithBook, 0, len(payloads))
	for _, p := range payloads {
		loans = append(loans, p.toModel())
	}
	return loans, nil
}

// ActiveLoans は全利用者の貸出中一覧を取得する。司書向けの画面で使用する。
func (c *Client) ActiveLoans(ctx context.Context) ([]model.LoanWithBook, error) {
	var payloads []loanPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/loans/active", nil, &payloads); err != nil {
		return nil, err
	}

	loans := make([]model.LoanWithBook, 0, len(payloads))
	for _, p := range payloads {
		loans = append(loans, p.toModel())
	}
	return loans, nil
}

// --- 利用者管理 ---

// ListUsers は利用者の一覧を取得する。司書専用。
func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	var payloads []userPayload
	if err := c.doJSON(ctx, http.MethodGet, "/api/users", nil, &payloads); err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(payloads))
	for _, p := range payloads {
		role, ok := model.ParseRole(p.Role)
		if !ok {
			c.logger.Warn("未知の役割を持つ利用者を受信しました", "user_id", p.ID, "role", p.Role)
			continue
		}
		users = append(users, model.User{ID: p.ID, Username: p.Username, Role: role})
	}
	return users, nil
}

// CreateUser は利用者を登録する。司書専用。
func (c *Client) CreateUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	body := map[string]string{
		"username": username,
		"password": password,
		"role":     string(role),
	}

	var payload userPayload
	if err := c.doJSON(ctx, http.MethodPost, "/api/users", body, &payload); err != nil {
		return nil, err
	}

	parsed, ok := model.ParseRole(payload.Role)
	if !ok {
		return nil, model.NewRemoteFailureError(fmt.Sprintf("未知の役割を受信しました: %s", payload.Role))
	}
	return &model.User{ID: payload.ID, Username: payload.Username, Role: parsed}, nil
}

// DeleteUser は利用者を削除する。司書専用。
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/users/"+url.PathEscape(id), nil, nil)
}

// ListRoles は定義済みの役割一覧を取得する。
func (c *Client) ListRoles(ctx context.Context) ([]model.Role, error) {
	var names []string
	if err := c.doJSON(ctx, http.MethodGet, "/api/roles", nil, &names); err != nil {
		return nil, err
	}

	roles := make([]model.Role, 0, len(names))
	for _, name := range names {
		if role, ok := model.ParseRole(name); ok {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

// --- ダッシュボード ---

// DashboardStats はダッシュボード集計のレスポンス。
type DashboardStats struct {
	TotalBooks   int                `json:"total_books"`
	TotalUsers   int                `json:"total_users"`
	ActiveLoans  int                `json:"active_loans"`
	OverdueLoans int                `json:"overdue_loans"`
	PopularBooks []PopularBookEntry `json:"popular_books"`
	LoansByRole  map[string]int     `json:"loans_by_role"`
}

// PopularBookEntry は貸出回数上位の蔵書。
type PopularBookEntry struct {
	Title     string `json:"title"`
	LoanCount int    `json:"loan_count"`
}

// GetDashboardStats はダッシュボード集計を取得する。
func (c *Client) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/stats/dashboard", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// --- 共通処理 ---

// doJSON はリクエストの送信とレスポンスのデコードを行う。
// bodyがnilでなければJSONとして送信し、outがnilでなければレスポンスをデコードする。
// 2xx以外のレスポンスはAPIError（復元できればサーバーのエラー内容、
// できなければRemoteFailure）として返す。
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.NewRemoteFailureError(err.Error())
		}
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Toshokan/1.0 Library Client")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("APIリクエストに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewRemoteFailureError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}

	if out == nil {
		// 成功レスポンスのボディは読み捨ててコネクションを再利用可能にする
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.NewRemoteFailureError(fmt.Sprintf("レスポンスの解析に失敗しました: %v", err))
	}
	return nil
}

// decodeError はエラーレスポンスをAPIErrorに復元する。
func (c *Client) decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return model.NewRemoteFailureError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Code == "" {
		return model.NewRemoteFailureError(fmt.Sprintf("HTTPステータス %d", resp.StatusCode))
	}

	return &model.APIError{
		Code:     envelope.Code,
		Message:  envelope.Message,
		Category: envelope.Category,
		Action:   envelope.Action,
	}
}
