package notification

import (
	"context"
	"log"
	"sync"
	"time"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
)

// Scanner は未読通知を定期的にスキャンしてハブへ再公開するバックグラウンドプロセス。
// 状態遷移を追跡するのではなく毎回フルスキャンで未読状態を導出し直す
// 照合処理のため、同じ未読通知は既読化または削除されるまで周期ごとに
// 繰り返し公開される。購読側は重複配信を前提とすること。
type Scanner struct {
	// queries は通知・ユーザーストアへのクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// hub は通知の公開先となるブロードキャストハブ。
	hub *Hub
	// interval はスキャンの実行間隔。
	interval time.Duration
	// cancel はバックグラウンドゴルーチンを停止するためのキャンセル関数。
	cancel context.CancelFunc
}

// NewScanner は新しい未読通知スキャナーを生成する。
func NewScanner(queries *notificationdb.Queries, hub *Hub, interval time.Duration) *Scanner {
	return &Scanner{
		queries:  queries,
		hub:      hub,
		interval: interval,
	}
}

// Start はバックグラウンドで定期スキャンを開始する。
func (s *Scanner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		log.Printf("[Scanner] 未読通知のスキャンを開始します。間隔: %s", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("[Scanner] スキャンを停止しました")
				return
			case <-ticker.C:
				s.Scan(ctx)
			}
		}
	}()
}

// Stop はバックグラウンドのスキャンを停止する。
func (s *Scanner) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Scan は1回分のスキャンを実行する。
// 全通知をフルスキャンし、既読のものと所有ユーザー不明のものを除外した上で
// 所有ユーザーごとにグループ化し、表示名を解決してからハブへ公開する。
// グループは互いに独立して並行処理され、1件のユーザー解決失敗は
// そのグループのスキップに留まり、実行全体には影響しない。
func (s *Scanner) Scan(ctx context.Context) {
	log.Println("[Scanner] 未読通知を検索します")

	notifications, err := s.queries.ListAllNotifications(ctx)
	if err != nil {
		log.Printf("[Scanner] 通知のスキャンに失敗: %v", err)
		return
	}

	groups := make(map[string][]notificationdb.Notification)
	for _, n := range notifications {
		if n.IsRead != 0 || n.UserID == "" {
			continue
		}
		groups[n.UserID] = append(groups[n.UserID], n)
	}

	var wg sync.WaitGroup
	for userID, group := range groups {
		wg.Add(1)
		go func(userID string, group []notificationdb.Notification) {
			defer wg.Done()
			s.publishGroup(ctx, userID, group)
		}(userID, group)
	}
	wg.Wait()
}

// publishGroup は1ユーザー分の未読通知グループをハブへ公開する。
// 所有ユーザーの表示名が解決できない場合はグループごとスキップする。
func (s *Scanner) publishGroup(ctx context.Context, userID string, group []notificationdb.Notification) {
	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		log.Printf("[Scanner] ユーザーの解決に失敗したためグループをスキップ: user_id=%s, %v", userID, err)
		return
	}

	for _, n := range group {
		log.Printf("[Scanner] %s への通知: %s（%s）",
			user.Name, n.Message, n.CreatedAt.Format("2006年01月02日 15:04"))
		s.hub.Publish(n)
	}
}
