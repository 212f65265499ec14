// Package policy はアクセス制御の判定を提供する。
//
// 役割に基づく可視性・操作可否の判定はすべてこのパッケージに集約し、
// 呼び出し側は判定結果のみを消費する。役割文字列の比較を画面ごとに
// 散在させない。判定は入力のみに依存する純粋な述語であり、
// 副作用を持たず、レンダリングのたびに再評価されることを前提とする
// （ログイン・ログアウトでviewerは差し替わるため、結果をキャッシュしない）。
package policy

import "github.com/hitoshi/toshokan/internal/model"

// CanViewBook は蔵書がviewerに対して表示可能かを判定する。
// viewerがnilの場合は匿名利用とみなす。
// 教員限定（AccessTeacherOnly）の蔵書は教員と司書のみ閲覧できる。
func CanViewBook(book model.Book, viewer *model.User) bool {
	if book.AccessLevel != model.AccessTeacherOnly {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.Role == model.RoleTeacher || viewer.Role == model.RoleLibrarian
}

// CanManageCatalog は蔵書の登録・編集・削除が可能かを判定する。司書のみ。
func CanManageCatalog(viewer *model.User) bool {
	return viewer != nil && viewer.Role == model.RoleLibrarian
}

// CanManageUsers は利用者の管理が可能かを判定する。司書のみ。
func CanManageUsers(viewer *model.User) bool {
	return viewer != nil && viewer.Role == model.RoleLibrarian
}

// CanSeeStockCounts は在庫数の表示が可能かを判定する。教員と司書のみ。
func CanSeeStockCounts(viewer *model.User) bool {
	if viewer == nil {
		return false
	}
	return viewer.Role == model.RoleTeacher || viewer.Role == model.RoleLibrarian
}

// CanOverrideLoanTerms は貸出数量と返却期限の指定が可能かを判定する。
// 教員のみ。それ以外の利用者は数量1・標準期限で貸出する。
func CanOverrideLoanTerms(viewer *model.User) bool {
	return viewer != nil && viewer.Role == model.RoleTeacher
}

// CanProcessReturns は返却処理が可能かを判定する。司書のみ。
func CanProcessReturns(viewer *model.User) bool {
	return viewer != nil && viewer.Role == model.RoleLibrarian
}

// CanViewAllLoans は全利用者の貸出一覧の閲覧が可能かを判定する。司書のみ。
func CanViewAllLoans(viewer *model.User) bool {
	return viewer != nil && viewer.Role == model.RoleLibrarian
}
