// Package session はログイン中の利用者情報のローカル永続化を提供する。
//
// 保存されるのは認証済みの利用者情報（ID・ユーザー名・役割）のみで、
// ログイン成功時に書き込み、ログアウト時に削除する。
// プロセス起動時に読み込んでセッションを復元する。
// 壊れたファイルや未知の役割は「セッションなし」として扱い、
// 起動を妨げるエラーにはしない。
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/toshokan/internal/model"
)

// persistedIdentity はセッションファイルに保存する形式。
type persistedIdentity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Store はファイルベースのセッションストア。
type Store struct {
	path string
}

// NewStore は指定パスのセッションストアを生成する。
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath は既定のセッションファイルパスを返す。
// OSのユーザー設定ディレクトリ配下の toshokan/session.json を使用する。
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("設定ディレクトリの取得に失敗しました: %w", err)
	}
	return filepath.Join(dir, "toshokan", "session.json"), nil
}

// Load は保存済みのセッションを読み込む。
// ファイルが存在しない・読めない・内容が不正な場合はnil（セッションなし）を返す。
// 不正な内容は警告ログのみ残し、ハードエラーにはしない。
func (s *Store) Load() *model.User {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("セッションファイルの読み込みに失敗しました", "path", s.path, "error", err)
		}
		return nil
	}

	var ident persistedIdentity
	if err := json.Unmarshal(data, &ident); err != nil {
		slog.Warn("セッションファイルの内容が不正です", "path", s.path, "error", err)
		return nil
	}

	if ident.ID == "" || ident.Username == "" {
		slog.Warn("セッションファイルに必須項目がありません", "path", s.path)
		return nil
	}

	role, ok := model.ParseRole(ident.Role)
	if !ok {
		slog.Warn("セッションファイルの役割が未知の値です", "path", s.path, "role", ident.Role)
		return nil
	}

	return &model.User{
		ID:       ident.ID,
		Username: ident.Username,
		Role:     role,
	}
}

// Save は利用者情報をセッションファイルに書き込む。
// ファイルは利用者本人のみ読み書き可能なパーミッションで作成する。
func (s *Store) Save(user *model.User) error {
	if user == nil {
		return fmt.Errorf("保存する利用者情報がnilです")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("セッションディレクトリの作成に失敗しました: %w", err)
	}

	data, err := json.Marshal(persistedIdentity{
		ID:       user.ID,
		Username: user.Username,
		Role:     string(user.Role),
	})
	if err != nil {
		return fmt.Errorf("セッションのエンコードに失敗しました: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("セッションファイルの書き込みに失敗しました: %w", err)
	}
	return nil
}

// Clear はセッションファイルを削除する。存在しない場合は何もしない。
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("セッションファイルの削除に失敗しました: %w", err)
	}
	return nil
}
