package notification

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
	"github.com/WhoIsVera/real-time-notifications-system/internal/token"
)

// userResponse はユーザーのJSONレスポンス構造。
// パスワードハッシュとトークンは参照系エンドポイントでは公開しない。
type userResponse struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Name はユーザーの表示名。
	Name string `json:"name"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Notifications は未処理の通知メッセージ本文のリスト。
	Notifications []string `json:"notifications"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u notificationdb.User) userResponse {
	notifications := u.Notifications
	if notifications == nil {
		notifications = []string{}
	}
	return userResponse{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Notifications: notifications,
	}
}

// newShortID は外部公開用の短いランダム識別子を生成する。
func newShortID() string {
	return uuid.New().String()[:6]
}

// createUserRequest はユーザー登録リクエストのJSON構造。
type createUserRequest struct {
	// Name はユーザーの表示名。
	Name string `json:"name" binding:"required"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password は平文パスワード。保存時にbcryptでハッシュ化される。
	Password string `json:"password" binding:"required"`
}

// handleCreateUser はユーザーを登録するハンドラ。
// パスワードをbcryptでハッシュ化し、初期アクセストークンを発行して保存する。
func (s *Server) handleCreateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: name, email, password は必須です"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードのハッシュ化に失敗しました"})
			log.Printf("パスワードハッシュ化エラー: %v", err)
			return
		}

		accessToken, err := s.tokens.Issue(c.Request.Context(), req.Email, token.DefaultTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("トークン発行エラー: %v", err)
			return
		}

		userID := newShortID()
		if err := s.queries.CreateUser(c.Request.Context(), notificationdb.CreateUserParams{
			ID:           userID,
			Name:         req.Name,
			Email:        req.Email,
			PasswordHash: string(hash),
			Token:        accessToken,
		}); err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				c.JSON(http.StatusConflict, gin.H{"error": "このメールアドレスは既に登録されています"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの登録に失敗しました"})
			log.Printf("ユーザー登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message": "ユーザーを登録しました",
			"id":      userID,
			"name":    req.Name,
			"email":   req.Email,
			"token":   accessToken,
		})
	}
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Email はユーザーのメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password は平文パスワード。
	Password string `json:"password" binding:"required"`
}

// handleLogin はログインを処理するハンドラ。
// パスワード照合に成功した場合、保存済みトークンが有効ならそのまま返し、
// 期限切れなら更新して返す。解析不能なトークンは新規発行で置き換える。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: email, password は必須です"})
			return
		}

		ctx := c.Request.Context()
		user, err := s.queries.GetUserByEmail(ctx, req.Email)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "パスワードが正しくありません"})
			return
		}

		accessToken := user.Token
		switch validateErr := s.tokens.Validate(ctx, accessToken); {
		case validateErr == nil:
			// 有効なトークンをそのまま返す
		case errors.Is(validateErr, token.ErrTokenExpired):
			accessToken, err = s.tokens.Renew(ctx, user.Token)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの更新に失敗しました"})
				log.Printf("トークン更新エラー: %v", err)
				return
			}
		default:
			accessToken, err = s.tokens.Issue(ctx, user.Email, token.DefaultTTL)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
				log.Printf("トークン発行エラー: %v", err)
				return
			}
		}

		if accessToken != user.Token {
			if err := s.queries.UpdateUserToken(ctx, notificationdb.UpdateUserTokenParams{
				ID:    user.ID,
				Token: accessToken,
			}); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの保存に失敗しました"})
				log.Printf("トークン保存エラー: %v", err)
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "認証に成功しました",
			"id":      user.ID,
			"name":    user.Name,
			"email":   user.Email,
			"token":   accessToken,
		})
	}
}

// handleListUsers は全ユーザーを通知メッセージリスト付きで返すハンドラ。
// リストは通知ストアから導出し直すため、ユーザー行の非正規化リストと
// 差異がある場合はストア側の内容が優先される。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		users, err := s.queries.ListUsers(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザー一覧の取得に失敗しました"})
			log.Printf("ユーザー一覧取得エラー: %v", err)
			return
		}

		responses := make([]userResponse, 0, len(users))
		for _, u := range users {
			notifications, err := s.queries.ListNotificationsByUserID(ctx, u.ID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
				log.Printf("通知一覧取得エラー: user_id=%s, %v", u.ID, err)
				return
			}
			messages := make([]string, 0, len(notifications))
			for _, n := range notifications {
				messages = append(messages, n.Message)
			}
			u.Notifications = messages
			responses = append(responses, toUserResponse(u))
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetUser は指定IDのユーザーを返すハンドラ。
// トークンとパスワードハッシュはレスポンスに含めない。
func (s *Server) handleGetUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		user, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません: id=" + userID})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// handleDeleteUser は指定IDのユーザーを削除するハンドラ。
func (s *Server) handleDeleteUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		ctx := c.Request.Context()

		if _, err := s.queries.GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません: id=" + userID})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		if err := s.queries.DeleteUser(ctx, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの削除に失敗しました"})
			log.Printf("ユーザー削除エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "ユーザーID '" + userID + "' を削除しました"})
	}
}

// handleRefreshToken はトークンを明示的に更新するハンドラ。
// Authorizationヘッダーのトークンが期限切れでも、署名が正しければ
// 元のサブジェクトを引き継いだ新しいトークンを発行して保存する。
func (s *Server) handleRefreshToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")

		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.JSON(http.StatusBadRequest, gin.H{"error": "トークンの形式が不正です。'Bearer ' に続けてトークンを指定してください"})
			return
		}

		ctx := c.Request.Context()
		user, err := s.queries.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません: id=" + userID})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("ユーザー取得エラー: %v", err)
			return
		}

		newToken, err := s.tokens.Renew(ctx, tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "トークンを更新できません: " + err.Error()})
			return
		}

		if err := s.queries.UpdateUserRefreshToken(ctx, notificationdb.UpdateUserRefreshTokenParams{
			ID:           user.ID,
			RefreshToken: newToken,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "リフレッシュトークンの保存に失敗しました"})
			log.Printf("リフレッシュトークン保存エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":       "トークンを更新しました",
			"id":            user.ID,
			"email":         user.Email,
			"refresh_token": newToken,
		})
	}
}
