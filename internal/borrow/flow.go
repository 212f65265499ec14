// Package borrow は貸出手続きの状態遷移を提供する。
//
// 1回の貸出試行を1つのFlowで表す。遷移は以下の通り:
//
//	Idle → AwaitingIdentity（未ログイン）
//	Idle → ConfiguringOptions（教員: 数量・期限の指定へ）
//	Idle → Submitting（それ以外: 数量1・標準期限で即送信へ）
//	ConfiguringOptions → Submitting（検証済みの数量・期限で）
//	Submitting → Completed（リモート成功: ローカル在庫を楽観的に減算）
//	Submitting → Failed（リモート失敗: 在庫は変更しない）
//
// 在庫0の蔵書に対する開始は状態を変えずに拒否し、リモート呼び出しは行わない。
// 送信直前には蔵書を再取得し、ページ表示時点の古い在庫スナップショットでは
// なく最新の在庫で数量を再検証する。
package borrow

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/toshokan/internal/apiclient"
	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/policy"
)

// DefaultLoanPeriodDays は返却期限の標準日数。
const DefaultLoanPeriodDays = 14

// State は貸出手続きの状態を表す。
type State string

const (
	// StateIdle は手続き開始前の状態。
	StateIdle State = "Idle"
	// StateAwaitingIdentity は未ログインのためログイン画面への誘導待ちの状態。
	StateAwaitingIdentity State = "AwaitingIdentity"
	// StateConfiguringOptions は教員による数量・返却期限の指定中の状態。
	StateConfiguringOptions State = "ConfiguringOptions"
	// StateSubmitting は送信準備が整った状態。
	StateSubmitting State = "Submitting"
	// StateCompleted は貸出が成功した状態。
	StateCompleted State = "Completed"
	// StateFailed はリモート呼び出しが失敗した状態。
	StateFailed State = "Failed"
)

// Client は貸出手続きが必要とするリモート操作のインターフェース。
// apiclient.Clientがこれを満たす。
type Client interface {
	// GetBook は蔵書の最新状態を取得する。送信前の在庫再検証に使用する。
	GetBook(ctx context.Context, id string) (*model.Book, error)
	// BorrowBook は貸出を実行し、サーバーが作成した貸出記録を返す。
	BorrowBook(ctx context.Context, bookID string, req apiclient.BorrowRequest) ([]model.Loan, error)
}

// Result は貸出成功時の結果。
type Result struct {
	// Quantity は貸出した冊数。
	Quantity int
	// DueDate は確定した返却期限。
	DueDate time.Time
	// RemainingStock は貸出後のローカル在庫（直前に再取得した在庫からの減算値）。
	RemainingStock int
}

// Flow は1回の貸出試行の状態機械。
// 並行利用は想定しない（画面イベントループからの逐次呼び出し前提）。
type Flow struct {
	client Client
	now    func() time.Time

	state    State
	book     *model.Book
	borrower *model.User
	quantity int
	dueDate  *time.Time
}

// NewFlow はFlowの新しいインスタンスを生成する。
func NewFlow(client Client) *Flow {
	return &Flow{
		client: client,
		now:    time.Now,
		state:  StateIdle,
	}
}

// State は現在の状態を返す。
func (f *Flow) State() State {
	return f.state
}

// Book は手続き対象の蔵書スナップショットを返す。
// Completedの後は減算済みの在庫を反映している。
func (f *Flow) Book() *model.Book {
	return f.book
}

// Start は蔵書に対する貸出手続きを開始する。
// 完了・失敗後のFlowを再利用して新しい試行を開始できる。
// 在庫0の蔵書は即座に拒否し、状態は変更しない（リモート呼び出しもしない）。
// 未ログインの場合はAwaitingIdentityに遷移する（蔵書の状態は変更しない）。
func (f *Flow) Start(book *model.Book, borrower *model.User) error {
	switch f.state {
	case StateIdle, StateCompleted, StateFailed, StateAwaitingIdentity:
		// 開始可能
	default:
		return model.NewInvalidRequestError(fmt.Sprintf("貸出手続きが進行中です（状態: %s）", f.state))
	}

	if book == nil {
		return model.NewInvalidRequestError("蔵書が指定されていません")
	}
	if book.Stock <= 0 {
		return model.NewOutOfStockError(0)
	}

	if borrower == nil {
		f.state = StateAwaitingIdentity
		f.book = nil
		f.borrower = nil
		return nil
	}

	snapshot := *book
	f.book = &snapshot
	f.borrower = borrower
	f.quantity = 1
	f.dueDate = nil

	if policy.CanOverrideLoanTerms(borrower) {
		f.state = StateConfiguringOptions
	} else {
		f.state = StateSubmitting
	}
	return nil
}

// Configure は教員による数量・返却期限の指定を受け付ける。
// 数量は1以上かつ開始時点の在庫以下でなければならない。
// dueDateがnilの場合は標準期限（貸出日+14日）が送信時に適用される。
func (f *Flow) Configure(quantity int, dueDate *time.Time) error {
	if f.state != StateConfiguringOptions {
		return model.NewInvalidRequestError(fmt.Sprintf("数量・期限の指定ができない状態です（状態: %s）", f.state))
	}

	if quantity < 1 || quantity > f.book.Stock {
		return model.NewQuantityOutOfRangeError(quantity, f.book.Stock)
	}

	f.quantity = quantity
	f.dueDate = dueDate
	f.state = StateSubmitting
	return nil
}

// Submit は貸出を送信する。
// 送信前に蔵書を再取得し、最新の在庫に対して数量を再検証する。
// 成功時はローカルの在庫スナップショットを楽観的に減算しCompletedへ遷移する
// （サーバー側の正は次回の全件再取得で反映される）。
// 失敗時は在庫を変更せずFailedへ遷移し、エラーを返す。
func (f *Flow) Submit(ctx context.Context) (*Result, error) {
	if f.state != StateSubmitting {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("送信できない状態です（状態: %s）", f.state))
	}

	// 在庫の再検証: ページ表示時点のスナップショットではなく最新値を使う
	latest, err := f.client.GetBook(ctx, f.book.ID)
	if err != nil {
		f.state = StateFailed
		return nil, err
	}
	if latest.Stock < f.quantity {
		f.state = StateFailed
		return nil, model.NewOutOfStockError(latest.Stock)
	}

	req := apiclient.BorrowRequest{
		UserID:   f.borrower.ID,
		Quantity: f.quantity,
		DueDate:  f.dueDate, // 標準期限はサーバー側でも適用されるため、指定時のみ送る
	}
	loans, err := f.client.BorrowBook(ctx, f.book.ID, req)
	if err != nil {
		f.state = StateFailed
		return nil, err
	}

	// 返却期限はサーバーが記録した値を正とする
	due := f.dueDate
	if len(loans) > 0 && loans[0].DueDate != nil {
		due = loans[0].DueDate
	}
	if due == nil {
		d := f.now().AddDate(0, 0, DefaultLoanPeriodDays)
		due = &d
	}

	// 楽観的更新: 再取得した最新在庫から減算する
	f.book.Stock = latest.Stock - f.quantity
	f.state = StateCompleted

	return &Result{
		Quantity:       f.quantity,
		DueDate:        *due,
		RemainingStock: f.book.Stock,
	}, nil
}

// Reset は手続きを破棄してIdleに戻す。画面遷移時の後始末に使用する。
func (f *Flow) Reset() {
	f.state = StateIdle
	f.book = nil
	f.borrower = nil
	f.quantity = 0
	f.dueDate = nil
}
