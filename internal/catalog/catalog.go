// Package catalog は蔵書一覧の検索・絞り込み・ページングを提供する。
//
// 絞り込みは取得済みのスナップショットに対して呼び出しごとに行う。
// 索引の事前構築やソートは行わず、元の並び順を保持する。
package catalog

import (
	"math"
	"strings"

	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/policy"
)

// PageSize は1ページあたりの表示件数。
const PageSize = 20

// Query は蔵書一覧の絞り込み条件。
type Query struct {
	// SearchTerm はタイトルまたは著者に対する部分一致検索語。
	// 大文字小文字は区別しない。空の場合は全件が一致する。
	SearchTerm string
	// CategoryID は分類による絞り込み。空の場合は全分類が一致する。
	CategoryID string
	// Viewer は閲覧者。policy.CanViewBookによる可視性判定に使用する。
	// nilは匿名利用を表す。
	Viewer *model.User
}

// Filter は条件をすべて満たす蔵書のみを元の並び順のまま返す。
// 検索語・分類・可視性の3条件はAND結合される。
func Filter(books []model.Book, q Query) []model.Book {
	term := strings.ToLower(q.SearchTerm)

	var matched []model.Book
	for _, book := range books {
		if !matchesTerm(book, term) {
			continue
		}
		if q.CategoryID != "" && book.CategoryID != q.CategoryID {
			continue
		}
		if !policy.CanViewBook(book, q.Viewer) {
			continue
		}
		matched = append(matched, book)
	}
	return matched
}

// matchesTerm はタイトルまたは著者が検索語に部分一致するかを判定する。
func matchesTerm(book model.Book, lowerTerm string) bool {
	if lowerTerm == "" {
		return true
	}
	return strings.Contains(strings.ToLower(book.Title), lowerTerm) ||
		strings.Contains(strings.ToLower(book.Author), lowerTerm)
}

// PageResult はPageの戻り値。
type PageResult struct {
	Items      []model.Book
	TotalPages int
}

// Page は絞り込み済みの一覧から指定ページ（1始まり）を切り出す。
// TotalPagesは件数をPageSizeで割った切り上げ。
// 範囲外のページ指定ではエラーにせず空のItemsを返す。
func Page(items []model.Book, pageNumber int) PageResult {
	totalPages := int(math.Ceil(float64(len(items)) / float64(PageSize)))

	if pageNumber < 1 || pageNumber > totalPages {
		return PageResult{Items: nil, TotalPages: totalPages}
	}

	start := (pageNumber - 1) * PageSize
	end := start + PageSize
	if end > len(items) {
		end = len(items)
	}
	return PageResult{Items: items[start:end], TotalPages: totalPages}
}
