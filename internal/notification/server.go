package notification

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
	"github.com/WhoIsVera/real-time-notifications-system/internal/token"
	"github.com/WhoIsVera/real-time-notifications-system/pkg/middleware"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries は通知・ユーザー・シークレットストアへのクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// hub は通知のブロードキャストハブ。プロセスで1つだけ生成される。
	hub *Hub
	// tokens はアクセストークンのライフサイクルマネージャー。
	tokens *token.Manager
	// scanner は未読通知の定期スキャナー。
	scanner *Scanner
	// pollInterval はユーザー単位ストリームの再問い合わせ間隔。
	pollInterval time.Duration
}

// NewServer は新しい通知サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行い、未読スキャナーを起動する。
func NewServer(port string) (*Server, error) {
	dbPath := getEnvOr("DB_PATH", "/data/notification.db")
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	queries := notificationdb.New(sqlDB)
	hub := NewHub()

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:       router,
		port:         port,
		queries:      queries,
		db:           sqlDB,
		hub:          hub,
		tokens:       token.NewManager(queries),
		scanner:      NewScanner(queries, hub, intervalEnv("SCAN_INTERVAL_SECONDS", 60)),
		pollInterval: intervalEnv("POLL_INTERVAL_SECONDS", 60),
	}
	s.setupRoutes()
	s.scanner.Start(context.Background())

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		users := api.Group("/users")
		{
			// ユーザー登録（初期アクセストークンを発行する）
			users.POST("", s.handleCreateUser())
			// ログイン（期限切れトークンは更新して返す）
			users.POST("/login", s.handleLogin())
			// ユーザー一覧取得（通知メッセージリスト付き）
			users.GET("", s.handleListUsers())
			// ユーザー取得
			users.GET("/:id", s.handleGetUser())
			// ユーザー削除
			users.DELETE("/:id", s.handleDeleteUser())
			// トークンの明示的な更新
			users.POST("/:id/refresh-token", s.handleRefreshToken())
		}

		notifications := api.Group("/notifications")
		{
			// 全ユーザーの未読通知ストリーム（SSE）
			notifications.GET("/unread-stream", s.handleUnreadStream())
			// 特定ユーザーの通知ストリーム（SSE）
			notifications.GET("/stream/:user_id", s.handleUserStream())
			// メッセージ本文による通知検索
			notifications.GET("/by-message", s.handleListByMessage())

			// トークン必須の操作
			protected := notifications.Group("")
			protected.Use(middleware.JWTAuth(s.tokens))
			{
				// 通知作成
				protected.POST("/users/:user_id", s.handleCreateNotification())
				// 通知を既読にして削除する
				protected.PUT("/:id/read-and-delete", s.handleReadAndDelete())
			}
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "notification"})
	})
}

// getEnvOr は環境変数の値を返す。未設定の場合はフォールバック値を返す。
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// intervalEnv は環境変数から秒単位の間隔を読み取る。
// 未設定または不正な値の場合はフォールバック値（秒）を使用する。
func intervalEnv(key string, fallbackSeconds int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Duration(fallbackSeconds) * time.Second
}
