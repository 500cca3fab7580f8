package notification

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
	"github.com/WhoIsVera/real-time-notifications-system/internal/token"
	"github.com/WhoIsVera/real-time-notifications-system/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestDB はインメモリSQLiteにスキーマを適用したテスト用DBを生成する。
// インメモリDBは接続ごとに独立するため、接続数を1に固定する。
func setupTestDB(t *testing.T) (*sql.DB, *notificationdb.Queries) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("テスト用DBのオープンに失敗: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマの適用に失敗: %v", err)
	}
	return sqlDB, notificationdb.New(sqlDB)
}

// setupTestServer はインメモリDBを使うテスト用サーバーを生成する。
// スキャナーは起動せず、ストリームの再問い合わせ間隔は短縮する。
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	sqlDB, queries := setupTestDB(t)
	hub := NewHub()

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS([]string{"http://localhost:3000"}))

	s := &Server{
		router:       router,
		port:         "0",
		queries:      queries,
		db:           sqlDB,
		hub:          hub,
		tokens:       token.NewManager(queries),
		scanner:      NewScanner(queries, hub, time.Minute),
		pollInterval: 30 * time.Millisecond,
	}
	s.setupRoutes()
	return s
}

// createTestUser はテスト用ユーザーを直接DBに登録する。
func createTestUser(t *testing.T, queries *notificationdb.Queries, id, name, email string) {
	t.Helper()
	if err := queries.CreateUser(context.Background(), notificationdb.CreateUserParams{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: "テスト用ハッシュ",
	}); err != nil {
		t.Fatalf("テスト用ユーザーの作成に失敗: %v", err)
	}
}

// createTestNotification はテスト用通知を直接DBに登録する。
func createTestNotification(t *testing.T, queries *notificationdb.Queries, id, userID, message string) {
	t.Helper()
	if err := queries.CreateNotification(context.Background(), notificationdb.CreateNotificationParams{
		ID:      id,
		UserID:  userID,
		Message: message,
	}); err != nil {
		t.Fatalf("テスト用通知の作成に失敗: %v", err)
	}
}

// doRequest はテスト用サーバーへHTTPリクエストを送信してレスポンスを返す。
func doRequest(t *testing.T, s *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != "" {
		reqBody = bytes.NewBufferString(body)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody).WithContext(context.Background())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをJSONオブジェクトとして解析する。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのJSON解析に失敗: %v (body=%s)", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをJSON配列として解析する。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("レスポンスのJSON配列解析に失敗: %v (body=%s)", err, w.Body.String())
	}
	return result
}

// registerUser はAPI経由でユーザーを登録してIDとトークンを返す。
func registerUser(t *testing.T, s *Server, name, email, password string) (id, accessToken string) {
	t.Helper()

	w := doRequest(t, s, "POST", "/api/v1/users",
		`{"name":"`+name+`","email":"`+email+`","password":"`+password+`"}`, nil)
	if w.Code != 201 {
		t.Fatalf("ユーザー登録に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}
	result := parseJSON(t, w)
	id, _ = result["id"].(string)
	accessToken, _ = result["token"].(string)
	if id == "" || accessToken == "" {
		t.Fatalf("登録レスポンスが不完全です: %v", result)
	}
	return id, accessToken
}
