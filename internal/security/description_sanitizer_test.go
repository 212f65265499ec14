package security

import (
	"strings"
	"testing"
)

// 許可タグが通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	cases := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>夏目漱石の代表作。</p>",
			wantContains: []string{"<p>夏目漱石の代表作。</p>"},
		},
		{
			name:         "brタグが許可される",
			input:        "第1部<br>第2部",
			wantContains: []string{"<br", "第1部", "第2部"},
		},
		{
			name:         "箇条書きが許可される",
			input:        "<ul><li>収録作1</li><li>収録作2</li></ul>",
			wantContains: []string{"<ul>", "<li>収録作1</li>", "<li>収録作2</li>", "</ul>"},
		},
		{
			name:         "強調タグが許可される",
			input:        "<strong>名作</strong>と<em>話題作</em>",
			wantContains: []string{"<strong>名作</strong>", "<em>話題作</em>"},
		},
		{
			name:         "引用タグが許可される",
			input:        "<blockquote>吾輩は猫である。</blockquote>",
			wantContains: []string{"<blockquote>吾輩は猫である。</blockquote>"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tc.input)
			for _, want := range tc.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, want to contain %q", tc.input, got, want)
				}
			}
		})
	}
}

// 危険なタグ・属性が除去されることを検証する。
func TestSanitize_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()

	cases := []struct {
		name        string
		input       string
		wantAbsent  []string
		wantPresent string
	}{
		{
			name:        "scriptタグの除去",
			input:       "<p>紹介文</p><script>alert('xss')</script>",
			wantAbsent:  []string{"<script", "alert"},
			wantPresent: "紹介文",
		},
		{
			name:        "iframeタグの除去",
			input:       `<iframe src="https://evil.example.com"></iframe><p>本文</p>`,
			wantAbsent:  []string{"<iframe", "evil.example.com"},
			wantPresent: "本文",
		},
		{
			name:        "onclickイベント属性の除去",
			input:       `<p onclick="steal()">クリック</p>`,
			wantAbsent:  []string{"onclick", "steal"},
			wantPresent: "クリック",
		},
		{
			name:        "aタグの除去（紹介文にリンクは置かない）",
			input:       `<a href="https://example.com">リンク</a>付きの紹介`,
			wantAbsent:  []string{"<a ", "href"},
			wantPresent: "リンク",
		},
		{
			name:        "imgタグの除去",
			input:       `<img src="https://example.com/x.png">画像付き`,
			wantAbsent:  []string{"<img", "src="},
			wantPresent: "画像付き",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tc.input)
			for _, absent := range tc.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should not contain %q", tc.input, got, absent)
				}
			}
			if !strings.Contains(got, tc.wantPresent) {
				t.Errorf("Sanitize(%q) = %q, want to contain %q", tc.input, got, tc.wantPresent)
			}
		})
	}
}

// 空文字列の入力には空文字列を返すことを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()
	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want \"\"", got)
	}
}

// 同一入力に対して常に同一出力を返すことを検証する（冪等性）。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewDescriptionSanitizer()
	input := `<p>紹介文</p><script>alert(1)</script><strong>強調</strong>`

	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)

	if once != twice {
		t.Errorf("sanitize not idempotent: %q != %q", once, twice)
	}
}
