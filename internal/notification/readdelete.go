package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	notificationdb "github.com/WhoIsVera/real-time-notifications-system/internal/notification/db"
)

var (
	// ErrNotificationNotFound は指定IDの通知が存在しないことを表す。
	ErrNotificationNotFound = errors.New("指定されたIDの通知が見つかりません")
	// ErrUserNotFound は指定IDのユーザーが存在しないことを表す。
	ErrUserNotFound = errors.New("指定されたIDのユーザーが見つかりません")
)

// markReadAndDelete は通知を既読にして削除する一連の状態遷移を実行する。
//
// 未読の場合: 既読化して保存 → 所有ユーザーの通知リストから本文一致で
// 1件除去して保存 → 通知レコードを削除。既読済みの場合は既読化を
// スキップして同じ手順を実行する。戻り値のメッセージは2つの経路で異なる。
//
// 3つの永続化操作はトランザクションで包まれていない。途中の失敗は
// 部分適用の状態（例: 通知は既読化済みだがユーザーのリストは未更新）を
// 残したままエラーとして呼び出し元へ返す。次の操作で再実行しても
// 安全なように、各ステップは再適用可能にしてある。
func markReadAndDelete(ctx context.Context, queries *notificationdb.Queries, notificationID string) (string, error) {
	n, err := queries.GetNotificationByID(ctx, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: id=%s", ErrNotificationNotFound, notificationID)
		}
		return "", fmt.Errorf("通知の取得に失敗: %w", err)
	}

	alreadyRead := n.IsRead != 0
	if !alreadyRead {
		if err := queries.MarkNotificationAsRead(ctx, notificationID); err != nil {
			return "", fmt.Errorf("通知の既読化に失敗: %w", err)
		}
	}

	user, err := queries.GetUserByID(ctx, n.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: id=%s", ErrUserNotFound, n.UserID)
		}
		return "", fmt.Errorf("通知の所有ユーザーの取得に失敗: %w", err)
	}

	// 識別子ではなくメッセージ本文の一致で除去する。同一本文の通知が
	// 複数ある場合は先頭の1件が除去される。
	if err := queries.UpdateUserNotifications(ctx, notificationdb.UpdateUserNotificationsParams{
		ID:            user.ID,
		Notifications: removeFirst(user.Notifications, n.Message),
	}); err != nil {
		return "", fmt.Errorf("ユーザーの通知リストの更新に失敗: %w", err)
	}

	if err := queries.DeleteNotification(ctx, notificationID); err != nil {
		return "", fmt.Errorf("通知の削除に失敗: %w", err)
	}

	if alreadyRead {
		return fmt.Sprintf("通知ID '%s' は既読済みだったため、そのまま削除しました。", notificationID), nil
	}
	return fmt.Sprintf("通知ID '%s' を既読にして削除しました。", notificationID), nil
}

// removeFirst はスライスから値が一致する最初の要素を1件だけ取り除く。
func removeFirst(items []string, target string) []string {
	for i, item := range items {
		if item == target {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}
