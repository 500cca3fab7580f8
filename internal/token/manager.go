package token

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTTL は新規発行トークンの有効期間。
	DefaultTTL = 2 * time.Minute
	// RenewTTL は更新されたトークンの有効期間。
	RenewTTL = 5 * time.Minute
)

var (
	// ErrTokenExpired は署名は正しいが有効期限が切れたトークンを表す。
	// 署名自体が不正な場合とは区別される。
	ErrTokenExpired = errors.New("トークンの有効期限が切れています")
	// ErrTokenInvalid は署名不正・改ざん・解析不能なトークンを表す。
	ErrTokenInvalid = errors.New("トークンが無効です")
)

// SecretStore は署名シークレットの永続化ストア。
// 未登録の場合、GetSigningSecretはsql.ErrNoRowsを返す。
type SecretStore interface {
	GetSigningSecret(ctx context.Context) (string, error)
	EnsureSigningSecret(ctx context.Context, secret string) error
}

// Manager はトークンの発行・検証・更新を行う。
type Manager struct {
	// store は署名シークレットの永続化ストア。
	store SecretStore
}

// NewManager は新しいトークンマネージャーを生成する。
func NewManager(store SecretStore) *Manager {
	return &Manager{store: store}
}

// SigningSecret は現在の署名シークレットを返す。
// 未登録の場合は64バイトの乱数を生成してbase64エンコードし、登録してから返す。
// 複数の呼び出し元が同時に初回生成を試みた場合、ストアに先に挿入された
// シークレットが有効となるため、挿入後に必ず再読込した値を返す。
func (m *Manager) SigningSecret(ctx context.Context) (string, error) {
	secret, err := m.store.GetSigningSecret(ctx)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("署名シークレットの取得に失敗: %w", err)
	}

	generated, err := generateSecret()
	if err != nil {
		return "", err
	}
	if err := m.store.EnsureSigningSecret(ctx, generated); err != nil {
		return "", fmt.Errorf("署名シークレットの登録に失敗: %w", err)
	}

	secret, err = m.store.GetSigningSecret(ctx)
	if err != nil {
		return "", fmt.Errorf("署名シークレットの再読込に失敗: %w", err)
	}
	return secret, nil
}

// Issue は指定されたサブジェクトと有効期間でトークンを発行する。
func (m *Manager) Issue(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	secret, err := m.SigningSecret(ctx)
	if err != nil {
		return "", err
	}

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Validate はトークンの署名と有効期限を検証する。
// 有効な場合はnil、署名は正しいが期限切れの場合はErrTokenExpired、
// それ以外はErrTokenInvalidを返す。
func (m *Manager) Validate(ctx context.Context, tokenString string) error {
	secret, err := m.SigningSecret(ctx)
	if err != nil {
		return err
	}

	_, err = jwt.Parse(tokenString, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}

// Renew はトークンのサブジェクトを引き継いだ新しいトークンを発行する。
// 有効期限切れのトークンでも、署名が正しくクレームを取り出せる限り更新できる。
// 署名不正や解析不能なトークンの場合のみErrTokenInvalidを返す。
func (m *Manager) Renew(ctx context.Context, tokenString string) (string, error) {
	claims, err := m.parseClaims(ctx, tokenString)
	if err != nil {
		return "", err
	}
	return m.Issue(ctx, claims.Subject, RenewTTL)
}

// Subject はトークンからサブジェクト（ユーザーのメールアドレス）を取り出す。
// 有効期限切れのトークンからも取り出せる。
func (m *Manager) Subject(ctx context.Context, tokenString string) (string, error) {
	claims, err := m.parseClaims(ctx, tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// parseClaims は署名を検証してクレームを取り出す。
// 有効期限切れは署名検証後に判定されるため、エラーとして扱わない。
func (m *Manager) parseClaims(ctx context.Context, tokenString string) (*jwt.RegisteredClaims, error) {
	secret, err := m.SigningSecret(ctx)
	if err != nil {
		return nil, err
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// generateSecret は64バイト（512ビット）の乱数をbase64エンコードして返す。
func generateSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("シークレットの生成に失敗: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}
