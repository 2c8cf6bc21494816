package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/stockscan/internal/auth"
	"github.com/erazemk/stockscan/internal/db"
	"github.com/erazemk/stockscan/internal/model"
	"github.com/erazemk/stockscan/internal/scan"
	"github.com/erazemk/stockscan/internal/store"
)

const testJWTSecret = "test-secret"

var testIssuer = auth.NewIssuer(testJWTSecret, 0)

func newTestServer(t *testing.T) (*httptest.Server, *sql.DB) {
	t.Helper()
	database := db.NewTestDB(t)
	ctl := scan.NewController(scan.Options{
		Catalog:   scan.NewCatalog(nil, nil),
		Movements: &store.MovementService{DB: database},
	})
	server := httptest.NewServer(NewRouter(database, testIssuer, ctl))
	t.Cleanup(server.Close)
	return server, database
}

func setupTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	server, database := newTestServer(t)

	// Create admin user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	store.CreateUser(ctx, database, "admin", string(hash), model.RoleAdmin)

	// Get token.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}

	return server, token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader io.Reader = bytes.NewReader(nil)
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doJSON sends an authenticated request and decodes the response into out, if given.
func doJSON(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestLoginEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestLogoutRevokesToken(t *testing.T) {
	server, token := setupTestServer(t)

	if status := doJSON(t, "POST", server.URL+"/api/auth/logout", token, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from logout, got %d", status)
	}
	if status := doJSON(t, "GET", server.URL+"/api/products", token, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", status)
	}
}

func TestProductsAPIFlow(t *testing.T) {
	server, token := setupTestServer(t)

	var created model.Product
	status := doJSON(t, "POST", server.URL+"/api/products", token, map[string]string{
		"name":    "Bolt M6",
		"code":    "B-6",
		"barcode": "3830001",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	// Same code again conflicts.
	status = doJSON(t, "POST", server.URL+"/api/products", token, map[string]string{
		"name": "Other", "code": "B-6",
	}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate code, got %d", status)
	}

	// Missing code is rejected.
	status = doJSON(t, "POST", server.URL+"/api/products", token, map[string]string{"name": "Nameless"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 without code, got %d", status)
	}

	var found []model.Product
	doJSON(t, "GET", server.URL+"/api/products?q=bolt", token, nil, &found)
	if len(found) != 1 || found[0].ID != created.ID {
		t.Errorf("expected search to find the bolt, got %+v", found)
	}

	req, _ := authRequest("GET", server.URL+"/api/products/"+itoa(created.ID)+"/label", token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("label request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("expected PNG label, got %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	if status := doJSON(t, "DELETE", server.URL+"/api/products/"+itoa(created.ID), token, nil, nil); status != http.StatusOK {
		t.Errorf("expected 200 from delete, got %d", status)
	}
	if status := doJSON(t, "GET", server.URL+"/api/products/"+itoa(created.ID), token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestMovementsAPI(t *testing.T) {
	server, token := setupTestServer(t)

	var product model.Product
	doJSON(t, "POST", server.URL+"/api/products", token, map[string]string{"name": "Nut", "code": "N"}, &product)
	var shelf model.Shelf
	doJSON(t, "POST", server.URL+"/api/shelves", token, map[string]string{"name": "A1"}, &shelf)

	status := doJSON(t, "POST", server.URL+"/api/movements", token, model.MovementRequest{
		ProductID: product.ID, Direction: model.DirectionIn, Quantity: 5, ShelfID: &shelf.ID,
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	// Taking out more than the shelf holds fails.
	status = doJSON(t, "POST", server.URL+"/api/movements", token, model.MovementRequest{
		ProductID: product.ID, Direction: model.DirectionOut, Quantity: 9, ShelfID: &shelf.ID,
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for insufficient stock, got %d", status)
	}

	var movements []model.Movement
	doJSON(t, "GET", server.URL+"/api/movements?shelf_id="+itoa(shelf.ID), token, nil, &movements)
	if len(movements) != 1 {
		t.Errorf("expected 1 movement on shelf, got %d", len(movements))
	}

	// Shelf with stock cannot be deleted.
	if status := doJSON(t, "DELETE", server.URL+"/api/shelves/"+itoa(shelf.ID), token, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 deleting stocked shelf, got %d", status)
	}
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := http.Get(server.URL + "/api/products")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, database := newTestServer(t)

	// Create a regular user.
	ctx := context.Background()
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	user, _ := store.CreateUser(ctx, database, "user1", string(hash), model.RoleUser)

	userToken, _ := testIssuer.Issue(user)

	// Regular user should not be able to create products (manager+ required).
	status := doJSON(t, "POST", server.URL+"/api/products", userToken, map[string]string{
		"name": "Test", "code": "T",
	}, nil)
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for user creating product, got %d", status)
	}

	// Regular user should not access /api/users.
	if status := doJSON(t, "GET", server.URL+"/api/users", userToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for user accessing users, got %d", status)
	}

	// But may run a scan session.
	if status := doJSON(t, "POST", server.URL+"/api/scan/session", userToken, map[string]string{"mode": "count"}, nil); status != http.StatusCreated {
		t.Errorf("expected 201 for user starting a session, got %d", status)
	}
}

func TestUserAdministration(t *testing.T) {
	server, token := setupTestServer(t)
	base := server.URL + "/api/users"

	if status := doJSON(t, "POST", base, token, map[string]string{
		"username": "clerk", "password": "password1", "role": "owner",
	}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown role, got %d", status)
	}
	if status := doJSON(t, "POST", base, token, map[string]string{
		"username": "clerk", "password": "short", "role": model.RoleUser,
	}, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for short password, got %d", status)
	}

	var clerk model.User
	if status := doJSON(t, "POST", base, token, map[string]string{
		"username": "clerk", "password": "password1", "role": model.RoleUser,
	}, &clerk); status != http.StatusCreated {
		t.Fatalf("expected 201 creating user, got %d", status)
	}
	if status := doJSON(t, "POST", base, token, map[string]string{
		"username": "clerk", "password": "password1", "role": model.RoleUser,
	}, nil); status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate username, got %d", status)
	}

	userURL := base + "/" + strconv.FormatInt(clerk.ID, 10)
	var updated model.User
	if status := doJSON(t, "PUT", userURL, token, map[string]string{"role": model.RoleManager}, &updated); status != http.StatusOK {
		t.Fatalf("expected 200 updating role, got %d", status)
	}
	if updated.Role != model.RoleManager {
		t.Errorf("expected manager role, got %q", updated.Role)
	}

	if status := doJSON(t, "PUT", userURL+"/password", token, map[string]string{"password": "new-password"}, nil); status != http.StatusOK {
		t.Fatalf("expected 200 resetting password, got %d", status)
	}
	body, _ := json.Marshal(map[string]string{"username": "clerk", "password": "new-password"})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected login with reset password, got %d", resp.StatusCode)
	}

	var admins []model.User
	doJSON(t, "GET", base, token, nil, &admins)
	var adminID int64
	for _, u := range admins {
		if u.Username == "admin" {
			adminID = u.ID
		}
	}
	if status := doJSON(t, "DELETE", base+"/"+strconv.FormatInt(adminID, 10), token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 deleting yourself, got %d", status)
	}

	if status := doJSON(t, "DELETE", userURL, token, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 deleting user, got %d", status)
	}
	if status := doJSON(t, "GET", userURL, token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for deleted user, got %d", status)
	}
	if status := doJSON(t, "GET", base+"/abc", token, nil, nil); status != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid id, got %d", status)
	}
}
