package notification

import (
	"io"
	"log"
	"time"

	"github.com/gin-gonic/gin"
)

// handleUnreadStream はブロードキャストハブを購読し、公開された通知を
// SSEイベントとしてクライアントへ送信し続けるハンドラ。
// 購読開始前に公開された通知は配信されない（リプレイなし）。
// クライアントが切断するまで無期限にストリーミングする。
func (s *Server) handleUnreadStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		sub := s.hub.Subscribe()
		defer sub.Close()

		c.Stream(func(_ io.Writer) bool {
			select {
			case n, ok := <-sub.Receive():
				if !ok {
					return false
				}
				c.SSEvent("notification", toNotificationResponse(n))
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

// handleUserStream は特定ユーザーの通知をSSEイベントとして送信し続けるハンドラ。
// 一定間隔ごとにユーザーの全通知を問い合わせ直し、その時点のスナップショット
// 全体を毎回送信する。変化がなくても同じ内容が繰り返し配信されるのは
// 正常な動作である。クライアントが切断するまで無期限にストリーミングする。
func (s *Server) handleUserStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("user_id")

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		c.Stream(func(_ io.Writer) bool {
			select {
			case <-ticker.C:
				notifications, err := s.queries.ListNotificationsByUserID(c.Request.Context(), userID)
				if err != nil {
					// 次の周期で再問い合わせするため、この周期は何も送信しない
					log.Printf("[Stream] 通知の取得に失敗: user_id=%s, %v", userID, err)
					return true
				}
				for _, n := range notifications {
					log.Printf("[Stream] 通知を送信: %s", n.Message)
					c.SSEvent("notification", toNotificationResponse(n))
				}
				return true
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
