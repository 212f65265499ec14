// Package model はドメインモデルを定義する。
package model

import "time"

// Role は利用者の役割を表す閉じた列挙。
// 役割と権限の対応はデータ駆動ではなく固定であり、
// 判定ロジックはpolicyパッケージに集約する。
type Role string

const (
	// RoleStudent は生徒。基本権限のみを持つ。
	RoleStudent Role = "Student"
	// RoleTeacher は教員。教員限定資料の閲覧と貸出条件の指定が可能。
	RoleTeacher Role = "Teacher"
	// RoleLibrarian は司書。蔵書・利用者管理を含む全権限を持つ。
	RoleLibrarian Role = "Librarian"
)

// Roles は定義済みの全役割。GET /api/roles のレスポンスにも使用する。
var Roles = []Role{RoleStudent, RoleTeacher, RoleLibrarian}

// ParseRole は文字列をRoleに変換する。未知の値はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleStudent, RoleTeacher, RoleLibrarian:
		return Role(s), true
	}
	return "", false
}

// User は認証済みの利用者を表す。
// クライアント側ではログイン成功時に生成され、セッションストアに永続化される。
// Userが存在しないこと（nil）は匿名利用を意味する。
type User struct {
	ID        string
	Username  string
	Role      Role
	CreatedAt time.Time
}
