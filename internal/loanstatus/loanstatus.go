// Package loanstatus は返却期限に基づく貸出状態の評価を提供する。
//
// 「延滞」「返却期限が近い」の定義はこのパッケージが唯一の基準であり、
// クライアントの各画面とサーバーのダッシュボード集計の両方が同じ判定を使う。
package loanstatus

import (
	"math"
	"time"

	"github.com/hitoshi/toshokan/internal/model"
)

// UrgentWindowDays は「返却期限が近い」とみなす残り日数の閾値（両端含む）。
const UrgentWindowDays = 3

// DaysUntilDue は返却期限までの残り日数を返す。
// 端数の日は切り上げる（1時間でも残っていれば1日として数える）。
// 期限を過ぎている場合は0以下の値を返す。
func DaysUntilDue(dueDate, now time.Time) int {
	return int(math.Ceil(dueDate.Sub(now).Hours() / 24))
}

// IsOverdue は貸出が延滞かを判定する。
// 貸出中（Active）かつ残り日数が0以下の場合に延滞とする。
// ちょうど期限時刻の貸出は延滞として扱う（境界は延滞側に含める）。
// 返却済みの貸出、および返却期限のない貸出は延滞にならない。
func IsOverdue(loan model.Loan, now time.Time) bool {
	if loan.Status != model.LoanStatusActive || loan.DueDate == nil {
		return false
	}
	return DaysUntilDue(*loan.DueDate, now) <= 0
}

// IsUrgent は貸出の返却期限が近いかを判定する。
// 貸出中（Active）かつ残り日数がUrgentWindowDays以下の場合に該当する。
// 延滞中の貸出は常に該当する（延滞は「期限が近い」の部分集合）。
// 返却済みの貸出、および返却期限のない貸出は該当しない。
func IsUrgent(loan model.Loan, now time.Time) bool {
	if loan.Status != model.LoanStatusActive || loan.DueDate == nil {
		return false
	}
	return DaysUntilDue(*loan.DueDate, now) <= UrgentWindowDays
}

// CollectUrgent は返却期限が近い貸出のみを元の順序のまま抽出する。
// ホーム画面のリマインダー表示に使用する。
func CollectUrgent(loans []model.Loan, now time.Time) []model.Loan {
	var urgent []model.Loan
	for _, loan := range loans {
		if IsUrgent(loan, now) {
			urgent = append(urgent, loan)
		}
	}
	return urgent
}

// CountOverdue は延滞中の貸出数を返す。ダッシュボード集計に使用する。
func CountOverdue(loans []model.Loan, now time.Time) int {
	count := 0
	for _, loan := range loans {
		if IsOverdue(loan, now) {
			count++
		}
	}
	return count
}
