// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizerService は蔵書の紹介文HTMLをサニタイズし、
// XSS攻撃などのセキュリティリスクから利用者を保護する。
// 紹介文は司書の手入力とGoogle Books APIの両方から流入するため、
// 保存前に必ずこのサニタイザを通す。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizerService はHTMLサニタイズ機能のインターフェースを定義する。
type DescriptionSanitizerService interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, ul, ol, li, blockquote, strong, em, i, b）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// リンクや画像は紹介文には不要なため許可しない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, blockquote, strong, em, i, b
//   - script, iframe, style等は許可リストに含めないことで自動的に除去される
//   - on*イベント属性はbluemondayのデフォルトで許可されないため除去される
//   - aタグ・imgタグは許可しない（紹介文に外部リンクや埋め込み画像は置かない）
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote",
		"strong", "em", "i", "b",
	)

	return &descriptionSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *descriptionSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
