package db

import (
	"context"
)

// signingSecretID は署名シークレットの固定行ID。
// システム全体で有効なシークレットは常に1件のみ。
const signingSecretID = 1

// GetSigningSecret は現在の署名シークレットを取得する。
// 存在しない場合はsql.ErrNoRowsを返す。
func (q *Queries) GetSigningSecret(ctx context.Context) (string, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT secret FROM signing_secrets WHERE id = ?`, signingSecretID)

	var secret string
	err := row.Scan(&secret)
	return secret, err
}

// EnsureSigningSecret は署名シークレットが未登録の場合のみ登録する。
// 既に登録済みの場合は何もしない。複数の呼び出し元が同時に初回生成を
// 試みても、最初に挿入された1件だけが有効になる。
func (q *Queries) EnsureSigningSecret(ctx context.Context, secret string) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO signing_secrets (id, secret) VALUES (?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		signingSecretID, secret,
	)
	return err
}
