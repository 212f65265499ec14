package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/toshokan/internal/model"
)

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	loginFunc func(ctx context.Context, username, password string) (*model.User, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.User, error) {
	return m.loginFunc(ctx, username, password)
}

// recordingCollector はMetricsCollectorの呼び出しを数えるスタブ。
type recordingCollector struct {
	borrows        int
	returns        int
	loginSuccesses int
	loginFailures  int
}

func (c *recordingCollector) RecordBorrow(count int)                      { c.borrows += count }
func (c *recordingCollector) RecordReturn()                               { c.returns++ }
func (c *recordingCollector) RecordLoginSuccess()                         { c.loginSuccesses++ }
func (c *recordingCollector) RecordLoginFailure()                         { c.loginFailures++ }
func (c *recordingCollector) RecordHTTPStatus(statusCode int)             {}
func (c *recordingCollector) RecordRequestLatency(duration time.Duration) {}
func (c *recordingCollector) RecordCoverFetchFailure(reason string)       {}

// decodeErrorBody はエラーレスポンスを復元する。
func decodeErrorBody(t *testing.T, resp *http.Response) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body
}

// TestLogin_Success はログイン成功時に利用者情報が返ることを検証する。
func TestLogin_Success(t *testing.T) {
	service := &mockAuthService{
		loginFunc: func(ctx context.Context, username, password string) (*model.User, error) {
			if username != "sato" || password != "secret" {
				t.Errorf("unexpected credentials: %s/%s", username, password)
			}
			return &model.User{ID: "user-1", Username: "sato", Role: model.RoleStudent}, nil
		},
	}
	collector := &recordingCollector{}
	h := NewAuthHandler(service, collector)

	body, _ := json.Marshal(map[string]string{"username": "sato", "password": "secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var got userResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != "user-1" || got.Username != "sato" || got.Role != "Student" {
		t.Errorf("response = %+v", got)
	}
	if collector.loginSuccesses != 1 {
		t.Errorf("login successes = %d, want 1", collector.loginSuccesses)
	}
}

// TestLogin_AuthenticationFailed は認証失敗時に401が返ることを検証する。
func TestLogin_AuthenticationFailed(t *testing.T) {
	service := &mockAuthService{
		loginFunc: func(ctx context.Context, username, password string) (*model.User, error) {
			return nil, model.NewAuthenticationFailedError()
		},
	}
	collector := &recordingCollector{}
	h := NewAuthHandler(service, collector)

	body, _ := json.Marshal(map[string]string{"username": "sato", "password": "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	errBody := decodeErrorBody(t, resp)
	if errBody.Code != "AUTHENTICATION_FAILED" {
		t.Errorf("code = %q, want AUTHENTICATION_FAILED", errBody.Code)
	}
	if errBody.Action == "" {
		t.Error("action should not be empty")
	}
	if collector.loginFailures != 1 {
		t.Errorf("login failures = %d, want 1", collector.loginFailures)
	}
}

// TestLogin_InvalidBody は不正なJSONに400が返ることを検証する。
func TestLogin_InvalidBody(t *testing.T) {
	service := &mockAuthService{
		loginFunc: func(ctx context.Context, username, password string) (*model.User, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(service, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader([]byte("{broken")))
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}

	errBody := decodeErrorBody(t, resp)
	if errBody.Code != "INVALID_REQUEST" {
		t.Errorf("code = %q, want INVALID_REQUEST", errBody.Code)
	}
}

// TestLogin_NilCollector はコレクターなしでも動作することを検証する。
func TestLogin_NilCollector(t *testing.T) {
	service := &mockAuthService{
		loginFunc: func(ctx context.Context, username, password string) (*model.User, error) {
			return &model.User{ID: "user-1", Username: "sato", Role: model.RoleStudent}, nil
		},
	}
	h := NewAuthHandler(service, nil)

	body, _ := json.Marshal(map[string]string{"username": "sato", "password": "secret"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}
