// Package db は通知サービスの永続化層を提供する。
// SQLiteデータベースへのクエリ実行オブジェクトと行構造体を含む。
package db

import (
	"database/sql"
	"time"
)

// Queries はSQLクエリの実行オブジェクト。
type Queries struct {
	db *sql.DB
}

// New は新しいクエリ実行オブジェクトを生成する。
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// Notification は通知テーブルの1行を表す。
type Notification struct {
	// ID は通知の一意識別子（短いランダム文字列）。
	ID string
	// UserID は通知先のユーザーID。所有者不明の通知では空文字列。
	UserID string
	// Message は通知メッセージ。
	Message string
	// IsRead は通知の既読状態（0=未読、1=既読）。
	IsRead int64
	// CreatedAt は通知の作成日時。
	CreatedAt time.Time
}

// User はユーザーテーブルの1行を表す。
type User struct {
	// ID はユーザーの一意識別子（短いランダム文字列）。
	ID string
	// Name はユーザーの表示名。
	Name string
	// Email はユーザーのメールアドレス（一意）。
	Email string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
	// Token はユーザーの現在のアクセストークン。
	Token string
	// RefreshToken はユーザーの現在のリフレッシュトークン。
	RefreshToken string
	// Notifications は未処理の通知メッセージ本文のリスト（非正規化投影）。
	Notifications []string
}
