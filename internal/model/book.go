// Package model はドメインモデルを定義する。
package model

import "time"

// AccessLevel は蔵書の公開区分を表す。
type AccessLevel string

const (
	// AccessEveryone は全員が閲覧可能な蔵書。
	AccessEveryone AccessLevel = "Everyone"
	// AccessTeacherOnly は教員・司書のみ閲覧可能な蔵書。
	// リモートAPI上の値は互換性のため "Teacher"。
	AccessTeacherOnly AccessLevel = "Teacher"
)

// ParseAccessLevel は文字列をAccessLevelに変換する。未知の値はfalseを返す。
func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch AccessLevel(s) {
	case AccessEveryone, AccessTeacherOnly:
		return AccessLevel(s), true
	}
	return "", false
}

// Book は蔵書を表す。
// 在庫（Stock）は0未満にならない。Stock = 0 の蔵書は貸出不可。
type Book struct {
	ID              string
	Title           string
	Author          string
	CategoryID      string
	CoverURL        string
	CoverData       []byte
	CoverMime       string
	Description     string
	Stock           int
	AccessLevel     AccessLevel
	ISBN            string
	Editor          string
	PageCount       int
	PublicationDate string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Category は蔵書の分類を表す。階層は持たないフラットな構造。
type Category struct {
	ID   string
	Name string
}
