// Package auth は利用者認証とアカウント管理を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/toshokan/internal/model"
	"github.com/hitoshi/toshokan/internal/repository"
)

// Service は認証とアカウント管理のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// Login はユーザー名とパスワードで認証する。
// ユーザー不在とパスワード不一致は同一のエラーを返す（存在の露出を防ぐ）。
func (s *Service) Login(ctx context.Context, username, password string) (*model.User, error) {
	if username == "" || password == "" {
		return nil, model.NewAuthenticationFailedError()
	}

	user, passwordHash, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewAuthenticationFailedError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		slog.Info("login failed",
			slog.String("username", username),
		)
		return nil, model.NewAuthenticationFailedError()
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// CreateUser は利用者を作成する。パスワードはbcryptでハッシュ化して保存する。
func (s *Service) CreateUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	if username == "" {
		return nil, model.NewInvalidRequestError("ユーザー名が指定されていません")
	}
	if password == "" {
		return nil, model.NewInvalidRequestError("パスワードが指定されていません")
	}
	if _, ok := model.ParseRole(string(role)); !ok {
		return nil, model.NewInvalidRoleError(string(role))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Username:  username,
		Role:      role,
		CreatedAt: time.Now(),
	}

	if err := s.userRepo.Create(ctx, user, string(hash)); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// ListUsers は全利用者を返す。
func (s *Service) ListUsers(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser は利用者を削除する。存在しない場合はUSER_NOT_FOUNDのエラーを返す。
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.userRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user deleted", slog.String("user_id", id))
	return nil
}

// Roles は選択可能な役割の一覧を返す。
func (s *Service) Roles() []model.Role {
	return model.Roles
}
