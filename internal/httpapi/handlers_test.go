package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"custodia/internal/auth"
)

const (
	testAdminEmail    = "root@example.com"
	testAdminPassword = "root-password"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()
	return newTestAPIWithOptions(t, Options{
		Version:    "test",
		RateBurst:  1000,
		RatePerSec: 1000,
	})
}

func newTestAPIWithOptions(t *testing.T, opts Options) *apiClient {
	t.Helper()

	svc, err := auth.NewService(auth.NewMemoryStore(), auth.WithSecret([]byte("test-secret")))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Bootstrap(context.Background(), auth.BootstrapConfig{
		AdminEmail:    testAdminEmail,
		AdminPassword: testAdminPassword,
	}); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	api := New(ReadyProbe{}, svc, opts)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) do(method, path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPost, path, body, headers)
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodGet, path, nil, headers)
}

func (c *apiClient) put(path string, body any, headers map[string]string) *http.Response {
	return c.do(http.MethodPut, path, body, headers)
}

func (c *apiClient) delete(path string, headers map[string]string) *http.Response {
	return c.do(http.MethodDelete, path, nil, headers)
}

func (c *apiClient) obtainToken(email, password string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/authenticate", map[string]any{
		"email":    email,
		"password": password,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected authenticate status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func bearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestAdminCanListUsers(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken(testAdminEmail, testAdminPassword)

	resp := api.get("/v1/users", bearerHeader(token))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	payload := decode[map[string]any](t, resp)
	users, ok := payload["users"].([]any)
	if !ok || len(users) == 0 {
		t.Fatalf("expected seeded admin in user list, got %v", payload)
	}
}

func TestRegisterIssuesTokenButNoAdminAccess(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/register/USER", map[string]any{
		"first_name": "Dana",
		"last_name":  "Kim",
		"email":      "dana@example.com",
		"password":   "s3cret-pass",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	payload := decode[tokenResponse](t, resp)
	if payload.Token == "" {
		t.Fatal("expected token on registration")
	}
	if payload.User == nil || payload.User.Email != "dana@example.com" {
		t.Fatalf("unexpected user payload: %+v", payload.User)
	}

	// A plain USER holds no management permissions.
	resp = api.get("/v1/users", bearerHeader(payload.Token))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for USER role, got %d", resp.StatusCode)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	api := newTestAPI(t)

	body := map[string]any{
		"first_name": "Dana",
		"last_name":  "Kim",
		"email":      "dana@example.com",
		"password":   "s3cret-pass",
	}
	resp := api.post("/v1/auth/register/USER", body, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	resp = api.post("/v1/auth/register/USER", body, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d", resp.StatusCode)
	}
}

func TestRejectsMissingAndTamperedTokens(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/users", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	token := api.obtainToken(testAdminEmail, testAdminPassword)
	tampered := token[:len(token)-1]
	if strings.HasSuffix(token, "A") {
		tampered += "B"
	} else {
		tampered += "A"
	}
	resp = api.get("/v1/users", bearerHeader(tampered))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for tampered token, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["error"] != "token signature invalid" {
		t.Fatalf("unexpected error message: %v", body["error"])
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/authenticate", map[string]any{
		"email":    testAdminEmail,
		"password": "wrong-password",
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestUserLifecycle(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken(testAdminEmail, testAdminPassword))

	resp := api.post("/v1/users", map[string]any{
		"first_name": "Olzhas",
		"last_name":  "Bek",
		"email":      "olzhas@example.com",
		"password":   "initial-pass",
		"user_type":  "user",
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", resp.StatusCode)
	}
	created := decode[map[string]any](t, resp)
	id := created["id"].(string)

	resp = api.put("/v1/users/"+id, map[string]any{
		"phone": "+7 701 000 0000",
	}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected update status: %d", resp.StatusCode)
	}
	updated := decode[map[string]any](t, resp)
	if updated["phone"] != "+7 701 000 0000" {
		t.Fatalf("phone not updated: %v", updated["phone"])
	}

	resp = api.delete("/v1/users/"+id, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected delete status: %d", resp.StatusCode)
	}
	result := decode[map[string]any](t, resp)
	if result["success"] != true {
		t.Fatalf("expected successful deletion, got %v", result)
	}

	// Deleting again reports failure in the body, not an HTTP error.
	resp = api.delete("/v1/users/"+id, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected repeat delete status: %d", resp.StatusCode)
	}
	result = decode[map[string]any](t, resp)
	if result["success"] != false {
		t.Fatalf("expected failed deletion, got %v", result)
	}
}

func TestRoleAndPermissionManagement(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken(testAdminEmail, testAdminPassword))

	resp := api.post("/v1/roles", map[string]any{
		"name":        "ARCHIVIST",
		"description": "Read-only archive access",
		"permissions": []string{"READ_FILES", "READ_FOLDERS"},
	}, admin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected role create status: %d", resp.StatusCode)
	}
	role := decode[map[string]any](t, resp)
	roleID := role["id"].(string)

	resp = api.post("/v1/roles/"+roleID+"/permissions", map[string]any{
		"permission": "READ_CASESTUDIES",
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected grant status: %d", resp.StatusCode)
	}

	resp = api.get("/v1/roles/"+roleID+"/permissions", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected list status: %d", resp.StatusCode)
	}
	payload := decode[map[string]any](t, resp)
	perms, ok := payload["permissions"].([]any)
	if !ok || len(perms) != 3 {
		t.Fatalf("expected 3 permissions, got %v", payload["permissions"])
	}

	// Duplicate role name conflicts.
	resp = api.post("/v1/roles", map[string]any{"name": "ARCHIVIST"}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate role, got %d", resp.StatusCode)
	}

	// Duplicate permission name conflicts through the admin path.
	resp = api.post("/v1/permissions", map[string]any{"name": "READ_FILES"}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate permission, got %d", resp.StatusCode)
	}
}

func TestReplaceUserRolesKeepsPrimaryValid(t *testing.T) {
	api := newTestAPI(t)
	admin := bearerHeader(api.obtainToken(testAdminEmail, testAdminPassword))

	resp := api.post("/v1/auth/register/OFFICER", map[string]any{
		"first_name": "Aigerim",
		"last_name":  "S",
		"email":      "aigerim@example.com",
		"password":   "officer-pass",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected register status: %d", resp.StatusCode)
	}
	registered := decode[tokenResponse](t, resp)
	userID := registered.User.ID

	resp = api.get("/v1/roles", admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected roles status: %d", resp.StatusCode)
	}
	payload := decode[map[string]any](t, resp)
	var managerID string
	for _, item := range payload["roles"].([]any) {
		role := item.(map[string]any)
		if role["name"] == "MANAGER" {
			managerID = role["id"].(string)
		}
	}
	if managerID == "" {
		t.Fatal("MANAGER role not seeded")
	}

	// Replacing the set with one the old primary is not part of reassigns
	// the primary.
	resp = api.put("/v1/users/"+userID+"/roles", map[string]any{
		"role_ids": []string{managerID},
	}, admin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected replace status: %d", resp.StatusCode)
	}
	user := decode[map[string]any](t, resp)
	if user["primary_role_id"] != managerID {
		t.Fatalf("expected primary reassigned to %s, got %v", managerID, user["primary_role_id"])
	}

	// An empty set is rejected.
	resp = api.put("/v1/users/"+userID+"/roles", map[string]any{
		"role_ids": []string{},
	}, admin)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty role set, got %d", resp.StatusCode)
	}
}

func TestBodyLimitHonorsConfiguredCap(t *testing.T) {
	roomy := newTestAPIWithOptions(t, Options{
		Version:      "test",
		RateBurst:    1000,
		RatePerSec:   1000,
		MaxBodyBytes: 4 << 20,
	})

	// A payload over the 1 MiB default still fits under the raised cap.
	resp := roomy.post("/v1/auth/register/USER", map[string]any{
		"first_name": "Dana",
		"last_name":  "Kim",
		"email":      "dana@example.com",
		"password":   "s3cret-pass",
		"address":    strings.Repeat("a", 2<<20),
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 under raised cap, got %d", resp.StatusCode)
	}

	tight := newTestAPIWithOptions(t, Options{
		Version:      "test",
		RateBurst:    1000,
		RatePerSec:   1000,
		MaxBodyBytes: 1 << 10,
	})
	resp = tight.post("/v1/auth/register/USER", map[string]any{
		"first_name": "Dana",
		"last_name":  "Kim",
		"email":      "dana2@example.com",
		"password":   "s3cret-pass",
		"address":    strings.Repeat("a", 1<<12),
	}, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 over the cap, got %d", resp.StatusCode)
	}
}

func TestHealthAndInfoArePublic(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		resp := api.get(path, nil)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, resp.StatusCode)
		}
	}
}
