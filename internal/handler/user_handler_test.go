package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/toshokan/internal/model"
)

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	createUserFunc func(ctx context.Context, username, password string, role model.Role) (*model.User, error)
	listUsersFunc  func(ctx context.Context) ([]*model.User, error)
	deleteUserFunc func(ctx context.Context, id string) error
	rolesFunc      func() []model.Role
}

func (m *mockUserService) CreateUser(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
	return m.createUserFunc(ctx, username, password, role)
}
func (m *mockUserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return m.listUsersFunc(ctx)
}
func (m *mockUserService) DeleteUser(ctx context.Context, id string) error {
	return m.deleteUserFunc(ctx, id)
}
func (m *mockUserService) Roles() []model.Role {
	if m.rolesFunc != nil {
		return m.rolesFunc()
	}
	return model.Roles
}

// newUserRouter はUserHandlerのルーティングを組み立てる。
func newUserRouter(service UserServiceInterface) http.Handler {
	h := NewUserHandler(service)
	r := chi.NewRouter()
	r.Get("/api/users", h.ListUsers)
	r.Post("/api/users", h.CreateUser)
	r.Delete("/api/users/{id}", h.DeleteUser)
	r.Get("/api/roles", h.ListRoles)
	return r
}

// TestListUsers_ReturnsUsers は利用者一覧が返ることを検証する。
func TestListUsers_ReturnsUsers(t *testing.T) {
	service := &mockUserService{
		listUsersFunc: func(ctx context.Context) ([]*model.User, error) {
			return []*model.User{
				{ID: "user-1", Username: "sato", Role: model.RoleStudent},
				{ID: "user-2", Username: "tanaka", Role: model.RoleLibrarian},
			}, nil
		},
	}
	router := newUserRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got []userResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(users) = %d, want 2", len(got))
	}
	if got[1].Role != "Librarian" {
		t.Errorf("users[1].Role = %q, want Librarian", got[1].Role)
	}
}

// TestCreateUser_Success は利用者登録が201で成功することを検証する。
func TestCreateUser_Success(t *testing.T) {
	service := &mockUserService{
		createUserFunc: func(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
			if role != model.RoleTeacher {
				t.Errorf("role = %q, want Teacher", role)
			}
			return &model.User{ID: "user-3", Username: username, Role: role}, nil
		},
	}
	router := newUserRouter(service)

	body, _ := json.Marshal(map[string]string{
		"username": "suzuki",
		"password": "secret",
		"role":     "Teacher",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got userResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Username != "suzuki" {
		t.Errorf("username = %q, want suzuki", got.Username)
	}
}

// TestCreateUser_InvalidRole は未知の役割が400で拒否されることを検証する。
func TestCreateUser_InvalidRole(t *testing.T) {
	service := &mockUserService{
		createUserFunc: func(ctx context.Context, username, password string, role model.Role) (*model.User, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	router := newUserRouter(service)

	body, _ := json.Marshal(map[string]string{
		"username": "suzuki",
		"password": "secret",
		"role":     "Admin",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/users", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	errBody := decodeErrorBody(t, resp)
	if errBody.Code != "INVALID_ROLE" {
		t.Errorf("code = %q, want INVALID_ROLE", errBody.Code)
	}
}

// TestDeleteUser_Success は利用者削除が204で成功することを検証する。
func TestDeleteUser_Success(t *testing.T) {
	var deletedID string
	service := &mockUserService{
		deleteUserFunc: func(ctx context.Context, id string) error {
			deletedID = id
			return nil
		},
	}
	router := newUserRouter(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/user-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if deletedID != "user-1" {
		t.Errorf("deleted ID = %q, want user-1", deletedID)
	}
}

// TestDeleteUser_NotFound は存在しない利用者の削除に404が返ることを検証する。
func TestDeleteUser_NotFound(t *testing.T) {
	service := &mockUserService{
		deleteUserFunc: func(ctx context.Context, id string) error {
			return model.NewUserNotFoundError()
		},
	}
	router := newUserRouter(service)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/missing", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}

	errBody := decodeErrorBody(t, resp)
	if errBody.Code != "USER_NOT_FOUND" {
		t.Errorf("code = %q, want USER_NOT_FOUND", errBody.Code)
	}
}

// TestListRoles_ReturnsRoleNames は役割一覧が定義順で返ることを検証する。
func TestListRoles_ReturnsRoleNames(t *testing.T) {
	router := newUserRouter(&mockUserService{})

	req := httptest.NewRequest(http.MethodGet, "/api/roles", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got []string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	want := []string{"Student", "Teacher", "Librarian"}
	if len(got) != len(want) {
		t.Fatalf("len(roles) = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("roles[%d] = %q, want %q", i, got[i], name)
		}
	}
}
