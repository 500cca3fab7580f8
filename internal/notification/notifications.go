package notification

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
)

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n notificationdb.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		IsRead:    n.IsRead != 0,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

// createNotificationRequest は通知作成リクエストのJSON構造。
type createNotificationRequest struct {
	// Message は通知メッセージ。空文字列および空白のみの文字列は許可しない。
	Message string `json:"message" binding:"required"`
}

// handleCreateNotification は指定ユーザー宛の通知を作成するハンドラ。
// 通知を未読状態で永続化し、所有ユーザーの通知メッセージリストに
// 本文を追加する。
func (s *Server) handleCreateNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		var req createNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: message は必須です"})
			return
		}

		ctx := c.Request.Context()
		user, err := s.queries.GetUserByID(ctx, userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません: id=" + userID})
			return
		}

		notificationID := newShortID()
		if err := s.queries.CreateNotification(ctx, notificationdb.CreateNotificationParams{
			ID:      notificationID,
			UserID:  userID,
			Message: req.Message,
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の作成に失敗しました"})
			log.Printf("通知作成エラー: %v", err)
			return
		}

		if err := s.queries.UpdateUserNotifications(ctx, notificationdb.UpdateUserNotificationsParams{
			ID:            user.ID,
			Notifications: append(user.Notifications, req.Message),
		}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの通知リストの更新に失敗しました"})
			log.Printf("通知リスト更新エラー: %v", err)
			return
		}

		created, err := s.queries.GetNotificationByID(ctx, notificationID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "作成した通知の取得に失敗しました"})
			log.Printf("通知取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"message":      "通知を作成しました",
			"notification": toNotificationResponse(created),
		})
	}
}

// handleReadAndDelete は通知を既読にして削除するハンドラ。
func (s *Server) handleReadAndDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		notificationID := c.Param("id")

		message, err := markReadAndDelete(c.Request.Context(), s.queries, notificationID)
		if err != nil {
			if errors.Is(err, ErrNotificationNotFound) || errors.Is(err, ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の既読化・削除に失敗しました"})
			log.Printf("既読化・削除エラー: id=%s, %v", notificationID, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": message})
	}
}

// byMessageResponse はメッセージ検索結果のJSONレスポンス構造。
// 通知の所有ユーザーの表示名を含む。
type byMessageResponse struct {
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Name は所有ユーザーの表示名。解決できなかった場合は空文字列。
	Name string `json:"name"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// handleListByMessage はメッセージ本文が一致する通知を所有ユーザー名付きで返すハンドラ。
func (s *Server) handleListByMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		message := c.Query("message")
		if message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "クエリパラメータ message が必要です"})
			return
		}

		ctx := c.Request.Context()
		notifications, err := s.queries.ListNotificationsByMessage(ctx, message)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の検索に失敗しました"})
			log.Printf("通知検索エラー: %v", err)
			return
		}

		if len(notifications) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "指定されたメッセージの通知が見つかりません"})
			return
		}

		responses := make([]byMessageResponse, 0, len(notifications))
		for _, n := range notifications {
			name := ""
			if user, err := s.queries.GetUserByID(ctx, n.UserID); err == nil {
				name = user.Name
			}
			responses = append(responses, byMessageResponse{
				UserID:    n.UserID,
				Name:      name,
				Message:   n.Message,
				IsRead:    n.IsRead != 0,
				CreatedAt: n.CreatedAt.Format(time.RFC3339),
			})
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "同じメッセージを持つ通知が見つかりました",
			"data":    responses,
		})
	}
}
