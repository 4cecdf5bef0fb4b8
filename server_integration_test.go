package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"meterscan/config"
	"meterscan/models"
	"meterscan/pkg/keystore"
	"meterscan/pkg/ocr"

	"github.com/gin-gonic/gin"
)

// performRequest sends a request with an optional bearer token.
func performRequest(r http.Handler, method, path string, body io.Reader, token string, contentType string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func setupTestServer(t *testing.T) *gin.Engine {
	// integration tests are opt-in. Set DB_DSN_TEST=1 and DB_DSN to run them.
	if os.Getenv("DB_DSN_TEST") != "1" {
		t.Skip("integration tests are disabled; set DB_DSN_TEST=1 to enable")
	}
	gin.SetMode(gin.TestMode)
	var err error
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.UploadBase = t.TempDir()
	cfg.OCRBackend = "stub"
	jwtSecret = []byte(cfg.JWTSecret)
	if scanDefaults, err = cfg.ScanOptions(); err != nil {
		t.Fatalf("scan options: %v", err)
	}
	initDB()
	keys, err = keystore.Open(filepath.Join(t.TempDir(), "keys.db"))
	if err != nil {
		t.Fatalf("keystore: %v", err)
	}
	t.Cleanup(func() { keys.Close() })
	engines = newEngineSet(cfg, keys)
	engines.opener = func(_ context.Context, name string, oc ocr.Config) (ocr.Engine, error) {
		if name == "stub" {
			return &stubEngine{name: name, text: "0O4S7"}, nil
		}
		return ocr.Open(context.Background(), name, oc)
	}
	r := gin.New()
	setupRoutes(r)
	return r
}

func TestFullFlow(t *testing.T) {
	r := setupTestServer(t)
	username := fmt.Sprintf("meter%d", time.Now().UnixNano())

	// 1. Register user
	regBody, _ := json.Marshal(map[string]string{"username": username, "password": "secret1"})
	resp := performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("register failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	resp = performRequest(r, http.MethodPost, "/register", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate register status=%d", resp.Code)
	}

	// 2. Login
	resp = performRequest(r, http.MethodPost, "/login", bytes.NewBuffer(regBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("login failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var loginResp map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &loginResp)
	token, _ := loginResp["token"].(string)
	refresh, _ := loginResp["refresh_token"].(string)
	if token == "" || refresh == "" {
		t.Fatalf("missing tokens in login response: %+v", loginResp)
	}

	// 3. Scan an upload
	body, ct := pngUpload(t, 200, map[string]string{"min_length": "5"})
	resp = performRequest(r, http.MethodPost, "/scans", body, token, ct)
	if resp.Code != 200 {
		t.Fatalf("scan failed status=%d body=%s", resp.Code, resp.Body.String())
	}
	var scanned map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &scanned)
	if scanned["Text"] != "00457" || scanned["Accepted"] != true {
		t.Fatalf("unexpected scan: %+v", scanned)
	}
	if _, err := os.Stat(filepath.Join(cfg.UploadBase, username, "meter.png")); err != nil {
		t.Fatalf("upload not stored: %v", err)
	}

	// 4. Rescan the same file replaces the record
	body, ct = pngUpload(t, 200, map[string]string{"min_length": "6"})
	resp = performRequest(r, http.MethodPost, "/scans", body, token, ct)
	var rescanned map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &rescanned)
	if rescanned["ID"] != scanned["ID"] || rescanned["Accepted"] != false {
		t.Fatalf("rescan should update the record: %+v", rescanned)
	}

	// 5. Undecodable upload is persisted as failed
	body, ct = multipartBody(t, "broken.jpg", []byte("garbage"), nil)
	resp = performRequest(r, http.MethodPost, "/scans", body, token, ct)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken upload, got %d", resp.Code)
	}

	// 6. List, get, summary
	resp = performRequest(r, http.MethodGet, "/scans", nil, token, "")
	var listed []map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &listed)
	if resp.Code != 200 || len(listed) != 2 {
		t.Fatalf("list scans status=%d count=%d", resp.Code, len(listed))
	}
	resp = performRequest(r, http.MethodGet, "/scans?status=failed", nil, token, "")
	_ = json.Unmarshal(resp.Body.Bytes(), &listed)
	if len(listed) != 1 || listed[0]["FileName"] != "broken.jpg" {
		t.Fatalf("failed filter: %+v", listed)
	}
	resp = performRequest(r, http.MethodGet, fmt.Sprintf("/scans/%v", scanned["ID"]), nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("get scan status=%d", resp.Code)
	}
	resp = performRequest(r, http.MethodGet, "/scans/summary", nil, token, "")
	if resp.Code != 200 {
		t.Fatalf("summary status=%d body=%s", resp.Code, resp.Body.String())
	}

	// 7. Refresh rotates the token
	refreshBody, _ := json.Marshal(map[string]string{"refresh_token": refresh})
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(refreshBody), "", "application/json")
	if resp.Code != 200 {
		t.Fatalf("refresh status=%d", resp.Code)
	}
	resp = performRequest(r, http.MethodPost, "/refresh", bytes.NewBuffer(refreshBody), "", "application/json")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("reused refresh token should be rejected, got %d", resp.Code)
	}

	// 8. Unauthorized access to protected endpoint should be 401
	if unauth := performRequest(r, http.MethodGet, "/scans", nil, "", ""); unauth.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthorized list scans got %d", unauth.Code)
	}
}

func TestRevokeTokenOnlyOnce(t *testing.T) {
	setupTestServer(t)
	var admin models.User
	if err := db.Where("username = ?", "admin").First(&admin).Error; err != nil {
		t.Fatalf("admin: %v", err)
	}
	raw, err := createAndStoreRefreshToken(admin.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rt, err := findRefreshTokenByRaw(raw)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if err := models.RevokeToken(db, rt.ID); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	if err := models.RevokeToken(db, rt.ID); !errors.Is(err, models.ErrTokenRevoked) {
		t.Fatalf("second revoke should report ErrTokenRevoked, got %v", err)
	}
}

func TestMigrateCommand(t *testing.T) {
	setupTestServer(t)
	initDB()
}
