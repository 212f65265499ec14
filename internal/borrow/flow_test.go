package borrow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/toshokan/internal/apiclient"
	"github.com/hitoshi/toshokan/internal/model"
)

// mockClient はClientのモック実装。
type mockClient struct {
	getBookFunc    func(ctx context.Context, id string) (*model.Book, error)
	borrowBookFunc func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error)

	getBookCalls    int
	borrowBookCalls int
	lastBorrowReq   apiclient.BorrowRequest
}

func (m *mockClient) GetBook(ctx context.Context, id string) (*model.Book, error) {
	m.getBookCalls++
	return m.getBookFunc(ctx, id)
}

func (m *mockClient) BorrowBook(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
	m.borrowBookCalls++
	m.lastBorrowReq = req
	return m.borrowBookFunc(ctx, bookID, req)
}

func testBook(stock int) *model.Book {
	return &model.Book{
		ID:          "book-1",
		Title:       "吾輩は猫である",
		Author:      "夏目漱石",
		Stock:       stock,
		AccessLevel: model.AccessEveryone,
	}
}

func studentUser() *model.User {
	return &model.User{ID: "user-1", Username: "sato", Role: model.RoleStudent}
}

func teacherUser() *model.User {
	return &model.User{ID: "user-2", Username: "tanaka", Role: model.RoleTeacher}
}

// TestFlowStartOutOfStock は在庫0の蔵書への開始が拒否され、
// リモート呼び出しが一切行われないことを確認する。
func TestFlowStartOutOfStock(t *testing.T) {
	client := &mockClient{}
	flow := NewFlow(client)

	err := flow.Start(testBook(0), studentUser())
	if err == nil {
		t.Fatal("エラーが期待されるがnilが返された")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが期待されるが %T が返された", err)
	}
	if apiErr.Code != "OUT_OF_STOCK" {
		t.Errorf("Code = %q, 期待値 %q", apiErr.Code, "OUT_OF_STOCK")
	}
	if got := flow.State(); got != StateIdle {
		t.Errorf("State() = %q, 期待値 %q", got, StateIdle)
	}
	if client.getBookCalls != 0 || client.borrowBookCalls != 0 {
		t.Errorf("リモート呼び出しが発生した: GetBook=%d BorrowBook=%d", client.getBookCalls, client.borrowBookCalls)
	}
}

// TestFlowStartWithoutIdentity は未ログイン時にAwaitingIdentityへ遷移することを確認する。
func TestFlowStartWithoutIdentity(t *testing.T) {
	flow := NewFlow(&mockClient{})

	if err := flow.Start(testBook(3), nil); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got := flow.State(); got != StateAwaitingIdentity {
		t.Errorf("State() = %q, 期待値 %q", got, StateAwaitingIdentity)
	}
}

// TestFlowStudentSkipsConfiguration は学生が数量・期限指定を経ずに
// 送信可能状態へ進むことを確認する。
func TestFlowStudentSkipsConfiguration(t *testing.T) {
	flow := NewFlow(&mockClient{})

	if err := flow.Start(testBook(3), studentUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got := flow.State(); got != StateSubmitting {
		t.Errorf("State() = %q, 期待値 %q", got, StateSubmitting)
	}
}

// TestFlowTeacherConfigures は教員が数量・期限指定の状態へ進み、
// 範囲外の数量が拒否されることを確認する。
func TestFlowTeacherConfigures(t *testing.T) {
	flow := NewFlow(&mockClient{})

	if err := flow.Start(testBook(5), teacherUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got := flow.State(); got != StateConfiguringOptions {
		t.Errorf("State() = %q, 期待値 %q", got, StateConfiguringOptions)
	}

	tests := []struct {
		name     string
		quantity int
		wantErr  bool
	}{
		{"数量0は拒否", 0, true},
		{"負の数量は拒否", -1, true},
		{"在庫超過は拒否", 6, true},
		{"在庫ちょうどは許可", 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := NewFlow(&mockClient{})
			if err := flow.Start(testBook(5), teacherUser()); err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			err := flow.Configure(tt.quantity, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("Configure(%d) error = %v, wantErr %v", tt.quantity, err, tt.wantErr)
			}
		})
	}
}

// TestFlowSubmitTeacherDefaultDueDate は教員が数量3・期限未指定で送信した場合に
// 標準期限（貸出日+14日）が適用され、在庫が5から2に減算されることを確認する。
func TestFlowSubmitTeacherDefaultDueDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	client := &mockClient{
		getBookFunc: func(ctx context.Context, id string) (*model.Book, error) {
			return testBook(5), nil
		},
		borrowBookFunc: func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
			return nil, nil
		},
	}
	flow := NewFlow(client)
	flow.now = func() time.Time { return now }

	if err := flow.Start(testBook(5), teacherUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if err := flow.Configure(3, nil); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	result, err := flow.Submit(context.Background())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	wantDue := now.AddDate(0, 0, DefaultLoanPeriodDays)
	if !result.DueDate.Equal(wantDue) {
		t.Errorf("DueDate = %v, 期待値 %v", result.DueDate, wantDue)
	}
	if result.Quantity != 3 {
		t.Errorf("Quantity = %d, 期待値 3", result.Quantity)
	}
	if result.RemainingStock != 2 {
		t.Errorf("RemainingStock = %d, 期待値 2", result.RemainingStock)
	}
	if got := flow.Book().Stock; got != 2 {
		t.Errorf("Book().Stock = %d, 期待値 2", got)
	}
	if got := flow.State(); got != StateCompleted {
		t.Errorf("State() = %q, 期待値 %q", got, StateCompleted)
	}
	if client.lastBorrowReq.DueDate != nil {
		t.Errorf("期限未指定時はDueDateを送らない: %v", client.lastBorrowReq.DueDate)
	}
	if client.lastBorrowReq.Quantity != 3 {
		t.Errorf("送信された数量 = %d, 期待値 3", client.lastBorrowReq.Quantity)
	}
}

// TestFlowSubmitCustomDueDate は教員指定の期限がそのまま送信されることを確認する。
func TestFlowSubmitCustomDueDate(t *testing.T) {
	due := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	client := &mockClient{
		getBookFunc: func(ctx context.Context, id string) (*model.Book, error) {
			return testBook(5), nil
		},
		borrowBookFunc: func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
			return nil, nil
		},
	}
	flow := NewFlow(client)

	if err := flow.Start(testBook(5), teacherUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if err := flow.Configure(1, &due); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	result, err := flow.Submit(context.Background())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}

	if !result.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, 期待値 %v", result.DueDate, due)
	}
	if client.lastBorrowReq.DueDate == nil || !client.lastBorrowReq.DueDate.Equal(due) {
		t.Errorf("送信されたDueDate = %v, 期待値 %v", client.lastBorrowReq.DueDate, due)
	}
}

// TestFlowSubmitUsesServerDueDate はサーバーが記録した返却期限が
// ローカル計算値より優先されることを確認する。
func TestFlowSubmitUsesServerDueDate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// サーバー側の時刻でのnow+14d（ローカル計算とは秒単位でずれる）
	serverDue := time.Date(2026, 3, 15, 10, 0, 42, 0, time.UTC)
	client := &mockClient{
		getBookFunc: func(ctx context.Context, id string) (*model.Book, error) {
			return testBook(5), nil
		},
		borrowBookFunc: func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
			return []model.Loan{{ID: "loan-1", DueDate: &serverDue, Status: model.LoanStatusActive}}, nil
		},
	}
	flow := NewFlow(client)
	flow.now = func() time.Time { return now }

	if err := flow.Start(testBook(5), studentUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	result, err := flow.Submit(context.Background())
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if !result.DueDate.Equal(serverDue) {
		t.Errorf("DueDate = %v, 期待値 %v（サーバー記録値）", result.DueDate, serverDue)
	}
}

// TestFlowSubmitRevalidatesStock は送信時に最新在庫で再検証され、
// 在庫不足ならリモート貸出を呼ばずに失敗することを確認する。
func TestFlowSubmitRevalidatesStock(t *testing.T) {
	client := &mockClient{
		getBookFunc: func(ctx context.Context, id string) (*model.Book, error) {
			// 開始時は5冊だったが他の利用者の貸出で1冊に減っている
			return testBook(1), nil
		},
		borrowBookFunc: func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
			return nil, nil
		},
	}
	flow := NewFlow(client)

	if err := flow.Start(testBook(5), teacherUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if err := flow.Configure(3, nil); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	_, err := flow.Submit(context.Background())
	if err == nil {
		t.Fatal("エラーが期待されるがnilが返された")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが期待されるが %T が返された", err)
	}
	if apiErr.Code != "OUT_OF_STOCK" {
		t.Errorf("Code = %q, 期待値 %q", apiErr.Code, "OUT_OF_STOCK")
	}
	if client.borrowBookCalls != 0 {
		t.Errorf("在庫不足でもBorrowBookが呼ばれた: %d回", client.borrowBookCalls)
	}
	if got := flow.State(); got != StateFailed {
		t.Errorf("State() = %q, 期待値 %q", got, StateFailed)
	}
}

// TestFlowSubmitRemoteFailure はリモート失敗時に在庫スナップショットが
// 変更されないことを確認する。
func TestFlowSubmitRemoteFailure(t *testing.T) {
	client := &mockClient{
		getBookFunc: func(ctx context.Context, id string) (*model.Book, error) {
			return testBook(5), nil
		},
		borrowBookFunc: func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
			return nil, model.NewRemoteFailureError("接続がタイムアウトしました")
		},
	}
	flow := NewFlow(client)

	if err := flow.Start(testBook(5), studentUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	_, err := flow.Submit(context.Background())
	if err == nil {
		t.Fatal("エラーが期待されるがnilが返された")
	}
	if got := flow.State(); got != StateFailed {
		t.Errorf("State() = %q, 期待値 %q", got, StateFailed)
	}
	if got := flow.Book().Stock; got != 5 {
		t.Errorf("失敗後のBook().Stock = %d, 期待値 5（変更なし）", got)
	}
}

// TestFlowRestartAfterFailure は失敗後のFlowを再利用して
// 新しい試行を開始できることを確認する。
func TestFlowRestartAfterFailure(t *testing.T) {
	client := &mockClient{
		getBookFunc: func(ctx context.Context, id string) (*model.Book, error) {
			return testBook(5), nil
		},
		borrowBookFunc: func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
			return nil, model.NewRemoteFailureError("一時的なエラー")
		},
	}
	flow := NewFlow(client)

	if err := flow.Start(testBook(5), studentUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if _, err := flow.Submit(context.Background()); err == nil {
		t.Fatal("エラーが期待されるがnilが返された")
	}

	client.borrowBookFunc = func(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error) {
		return nil, nil
	}
	if err := flow.Start(testBook(5), studentUser()); err != nil {
		t.Fatalf("再開始で予期しないエラー: %v", err)
	}
	if _, err := flow.Submit(context.Background()); err != nil {
		t.Fatalf("再送信で予期しないエラー: %v", err)
	}
	if got := flow.State(); got != StateCompleted {
		t.Errorf("State() = %q, 期待値 %q", got, StateCompleted)
	}
}

// TestFlowConfigureWrongState は指定できない状態でのConfigureが拒否されることを確認する。
func TestFlowConfigureWrongState(t *testing.T) {
	flow := NewFlow(&mockClient{})
	if err := flow.Configure(1, nil); err == nil {
		t.Error("Idle状態のConfigureにエラーが期待されるがnilが返された")
	}
}

// TestFlowReset はResetでIdleに戻ることを確認する。
func TestFlowReset(t *testing.T) {
	flow := NewFlow(&mockClient{})
	if err := flow.Start(testBook(3), teacherUser()); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	flow.Reset()
	if got := flow.State(); got != StateIdle {
		t.Errorf("State() = %q, 期待値 %q", got, StateIdle)
	}
	if flow.Book() != nil {
		t.Error("Reset後もBookが残っている")
	}
}
