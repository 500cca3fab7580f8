package db

import (
	"context"
	"database/sql"
)

// CreateNotificationParams は通知作成クエリのパラメータ。
type CreateNotificationParams struct {
	// ID は通知の一意識別子。
	ID string
	// UserID は通知先のユーザーID。
	UserID string
	// Message は通知メッセージ。
	Message string
}

// CreateNotification は未読状態の通知を新規作成する。
// 作成日時はデータベース側で現在時刻が設定される。
func (q *Queries) CreateNotification(ctx context.Context, params CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, message) VALUES (?, ?, ?)`,
		params.ID, params.UserID, params.Message,
	)
	return err
}

// GetNotificationByID は指定IDの通知を取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetNotificationByID(ctx context.Context, id string) (Notification, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, user_id, message, is_read, created_at FROM notifications WHERE id = ?`, id)

	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt)
	return n, err
}

// ListNotificationsByUserID は指定ユーザーの通知を作成日時順に取得する。
func (q *Queries) ListNotificationsByUserID(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, message, is_read, created_at FROM notifications
		 WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListNotificationsByMessage はメッセージ本文が一致する通知を取得する。
func (q *Queries) ListNotificationsByMessage(ctx context.Context, message string) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, message, is_read, created_at FROM notifications
		 WHERE message = ? ORDER BY created_at, id`, message)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// ListAllNotifications は全通知を作成日時順に取得する。
// 未読スキャナーのフルスキャンで使用する。
func (q *Queries) ListAllNotifications(ctx context.Context) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, user_id, message, is_read, created_at FROM notifications
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// MarkNotificationAsRead は指定IDの通知を既読にする。
func (q *Queries) MarkNotificationAsRead(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	return err
}

// DeleteNotification は指定IDの通知を削除する。
func (q *Queries) DeleteNotification(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id = ?`, id)
	return err
}

// scanNotifications は結果セットから通知のスライスを読み出す。
func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	notifications := []Notification{}
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
