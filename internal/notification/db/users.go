package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// CreateUserParams はユーザー作成クエリのパラメータ。
type CreateUserParams struct {
	// ID はユーザーの一意識別子。
	ID string
	// Name はユーザーの表示名。
	Name string
	// Email はユーザーのメールアドレス（一意制約あり）。
	Email string
	// PasswordHash はbcryptでハッシュ化されたパスワード。
	PasswordHash string
	// Token はユーザーの初期アクセストークン。
	Token string
}

// CreateUser はユーザーを新規作成する。通知リストは空で初期化される。
func (q *Queries) CreateUser(ctx context.Context, params CreateUserParams) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, token, refresh_token, notifications)
		 VALUES (?, ?, ?, ?, ?, '', '[]')`,
		params.ID, params.Name, params.Email, params.PasswordHash, params.Token,
	)
	return err
}

// GetUserByID は指定IDのユーザーを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, token, refresh_token, notifications
		 FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail は指定メールアドレスのユーザーを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, token, refresh_token, notifications
		 FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// ListUsers は全ユーザーをID順に取得する。
func (q *Queries) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, name, email, password_hash, token, refresh_token, notifications
		 FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		var u User
		var notifications string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Token, &u.RefreshToken, &notifications); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(notifications), &u.Notifications); err != nil {
			return nil, fmt.Errorf("通知リストのデシリアライズに失敗: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserTokenParams はアクセストークン更新クエリのパラメータ。
type UpdateUserTokenParams struct {
	// ID は更新対象のユーザーID。
	ID string
	// Token は新しいアクセストークン。
	Token string
}

// UpdateUserToken はユーザーのアクセストークンを更新する。
func (q *Queries) UpdateUserToken(ctx context.Context, params UpdateUserTokenParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET token = ? WHERE id = ?`, params.Token, params.ID)
	return err
}

// UpdateUserRefreshTokenParams はリフレッシュトークン更新クエリのパラメータ。
type UpdateUserRefreshTokenParams struct {
	// ID は更新対象のユーザーID。
	ID string
	// RefreshToken は新しいリフレッシュトークン。
	RefreshToken string
}

// UpdateUserRefreshToken はユーザーのリフレッシュトークンを更新する。
func (q *Queries) UpdateUserRefreshToken(ctx context.Context, params UpdateUserRefreshTokenParams) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = ? WHERE id = ?`, params.RefreshToken, params.ID)
	return err
}

// UpdateUserNotificationsParams は通知リスト更新クエリのパラメータ。
type UpdateUserNotificationsParams struct {
	// ID は更新対象のユーザーID。
	ID string
	// Notifications は新しい通知メッセージ本文のリスト。
	Notifications []string
}

// UpdateUserNotifications はユーザーの通知メッセージリストを置き換える。
func (q *Queries) UpdateUserNotifications(ctx context.Context, params UpdateUserNotificationsParams) error {
	notifications, err := json.Marshal(params.Notifications)
	if err != nil {
		return fmt.Errorf("通知リストのシリアライズに失敗: %w", err)
	}
	_, err = q.db.ExecContext(ctx,
		`UPDATE users SET notifications = ? WHERE id = ?`, string(notifications), params.ID)
	return err
}

// DeleteUser は指定IDのユーザーを削除する。
func (q *Queries) DeleteUser(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// scanUser は1行の結果からユーザーを読み出す。
func scanUser(row *sql.Row) (User, error) {
	var u User
	var notifications string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Token, &u.RefreshToken, &notifications); err != nil {
		return User{}, err
	}
	if err := json.Unmarshal([]byte(notifications), &u.Notifications); err != nil {
		return User{}, fmt.Errorf("通知リストのデシリアライズに失敗: %w", err)
	}
	return u, nil
}
