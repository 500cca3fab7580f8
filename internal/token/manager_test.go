package token

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// memorySecretStore はテスト用のインメモリ署名シークレットストア。
// 本番のストアと同様に、最初に登録されたシークレットのみを保持する。
type memorySecretStore struct {
	mu     sync.Mutex
	secret string
}

func (s *memorySecretStore) GetSigningSecret(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret == "" {
		return "", sql.ErrNoRows
	}
	return s.secret, nil
}

func (s *memorySecretStore) EnsureSigningSecret(_ context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.secret == "" {
		s.secret = secret
	}
	return nil
}

func TestSigningSecret(t *testing.T) {
	t.Parallel()

	t.Run("初回呼び出しでシークレットが生成されて永続化される", func(t *testing.T) {
		t.Parallel()
		store := &memorySecretStore{}
		m := NewManager(store)

		secret, err := m.SigningSecret(context.Background())
		if err != nil {
			t.Fatalf("シークレットの取得に失敗: %v", err)
		}
		if secret == "" {
			t.Fatal("シークレットが空です")
		}
		if store.secret != secret {
			t.Errorf("ストアのシークレット: got %q, want %q", store.secret, secret)
		}
	})

	t.Run("2回目以降は同じシークレットを返す", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		first, err := m.SigningSecret(context.Background())
		if err != nil {
			t.Fatalf("1回目の取得に失敗: %v", err)
		}
		second, err := m.SigningSecret(context.Background())
		if err != nil {
			t.Fatalf("2回目の取得に失敗: %v", err)
		}
		if first != second {
			t.Errorf("シークレットが変わっています: %q != %q", first, second)
		}
	})

	t.Run("並行する初回生成でも全員が同じシークレットを得る", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		const callers = 10
		secrets := make([]string, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				secret, err := m.SigningSecret(context.Background())
				if err != nil {
					t.Errorf("シークレットの取得に失敗: %v", err)
					return
				}
				secrets[i] = secret
			}(i)
		}
		wg.Wait()

		for i := 1; i < callers; i++ {
			if secrets[i] != secrets[0] {
				t.Errorf("呼び出し元%dのシークレットが異なります: %q != %q", i, secrets[i], secrets[0])
			}
		}
	})
}

func TestIssueAndValidate(t *testing.T) {
	t.Parallel()

	t.Run("発行直後のトークンは有効", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		tokenString, err := m.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}
		if err := m.Validate(context.Background(), tokenString); err != nil {
			t.Errorf("検証結果: got %v, want nil", err)
		}
	})

	t.Run("有効期限が過ぎたトークンはErrTokenExpired", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		tokenString, err := m.Issue(context.Background(), "user@example.com", -time.Minute)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}
		if err := m.Validate(context.Background(), tokenString); !errors.Is(err, ErrTokenExpired) {
			t.Errorf("検証結果: got %v, want ErrTokenExpired", err)
		}
	})

	t.Run("改ざんされたトークンはErrTokenInvalid", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		tokenString, err := m.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}
		tampered := tokenString[:len(tokenString)-4] + "xxxx"
		if err := m.Validate(context.Background(), tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("検証結果: got %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("別のシークレットで署名されたトークンはErrTokenInvalid", func(t *testing.T) {
		t.Parallel()
		other := NewManager(&memorySecretStore{})
		tokenString, err := other.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		m := NewManager(&memorySecretStore{})
		if err := m.Validate(context.Background(), tokenString); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("検証結果: got %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("トークンでない文字列はErrTokenInvalid", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		if err := m.Validate(context.Background(), "こんにちは"); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("検証結果: got %v, want ErrTokenInvalid", err)
		}
	})
}

func TestRenew(t *testing.T) {
	t.Parallel()

	t.Run("期限切れトークンを更新するとサブジェクトが引き継がれる", func(t *testing.T) {
		t.Parallel()
		store := &memorySecretStore{}
		m := NewManager(store)

		expired, err := m.Issue(context.Background(), "user@example.com", -time.Minute)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		renewed, err := m.Renew(context.Background(), expired)
		if err != nil {
			t.Fatalf("トークンの更新に失敗: %v", err)
		}
		if err := m.Validate(context.Background(), renewed); err != nil {
			t.Errorf("更新後トークンの検証結果: got %v, want nil", err)
		}

		subject, err := m.Subject(context.Background(), renewed)
		if err != nil {
			t.Fatalf("サブジェクトの取得に失敗: %v", err)
		}
		if subject != "user@example.com" {
			t.Errorf("サブジェクト: got %q, want user@example.com", subject)
		}
	})

	t.Run("更新後の有効期限は更新時点から5分間", func(t *testing.T) {
		t.Parallel()
		store := &memorySecretStore{}
		m := NewManager(store)

		expired, err := m.Issue(context.Background(), "user@example.com", -time.Minute)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		before := time.Now()
		renewed, err := m.Renew(context.Background(), expired)
		if err != nil {
			t.Fatalf("トークンの更新に失敗: %v", err)
		}
		after := time.Now()

		claims := &jwt.RegisteredClaims{}
		_, err = jwt.ParseWithClaims(renewed, claims, func(_ *jwt.Token) (any, error) {
			return []byte(store.secret), nil
		})
		if err != nil {
			t.Fatalf("更新後トークンの解析に失敗: %v", err)
		}

		expiresAt := claims.ExpiresAt.Time
		if expiresAt.Before(before.Add(RenewTTL)) || expiresAt.After(after.Add(RenewTTL)) {
			t.Errorf("有効期限が更新時点+5分になっていません: %v", expiresAt)
		}
	})

	t.Run("解析不能なトークンは更新できない", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		if _, err := m.Renew(context.Background(), "不正なトークン"); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("更新結果: got %v, want ErrTokenInvalid", err)
		}
	})

	t.Run("別のシークレットで署名されたトークンは更新できない", func(t *testing.T) {
		t.Parallel()
		other := NewManager(&memorySecretStore{})
		tokenString, err := other.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		m := NewManager(&memorySecretStore{})
		if _, err := m.Renew(context.Background(), tokenString); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("更新結果: got %v, want ErrTokenInvalid", err)
		}
	})
}

func TestSubject(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンからサブジェクトを取得できる", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		tokenString, err := m.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		subject, err := m.Subject(context.Background(), tokenString)
		if err != nil {
			t.Fatalf("サブジェクトの取得に失敗: %v", err)
		}
		if subject != "user@example.com" {
			t.Errorf("サブジェクト: got %q, want user@example.com", subject)
		}
	})

	t.Run("期限切れトークンからも同じサブジェクトを取得できる", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		valid, err := m.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}
		expired, err := m.Issue(context.Background(), "user@example.com", -time.Minute)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}

		fromValid, err := m.Subject(context.Background(), valid)
		if err != nil {
			t.Fatalf("有効トークンからの取得に失敗: %v", err)
		}
		fromExpired, err := m.Subject(context.Background(), expired)
		if err != nil {
			t.Fatalf("期限切れトークンからの取得に失敗: %v", err)
		}
		if fromValid != fromExpired {
			t.Errorf("サブジェクトが一致しません: %q != %q", fromValid, fromExpired)
		}
	})

	t.Run("署名が不正なトークンからは取得できない", func(t *testing.T) {
		t.Parallel()
		m := NewManager(&memorySecretStore{})

		tokenString, err := m.Issue(context.Background(), "user@example.com", DefaultTTL)
		if err != nil {
			t.Fatalf("トークンの発行に失敗: %v", err)
		}
		tampered := tokenString[:len(tokenString)-4] + "xxxx"
		if _, err := m.Subject(context.Background(), tampered); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("取得結果: got %v, want ErrTokenInvalid", err)
		}
	})
}
