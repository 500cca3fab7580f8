package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/WhoIsVera/real-time-notifications-system/internal/token"
)

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "subject"（ユーザーのメールアドレス）を設定する。
//
// 署名は正しいが期限切れのトークンは透過的に更新し、リクエストを失敗させる
// 代わりに新しいトークンをレスポンスのAuthorizationヘッダーで返す。
// 再認証を強制しないためのUX上のトレードオフであり、更新には正しく署名された
// トークンの所持以外の本人確認を要求しない。
func JWTAuth(tokens *token.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorizationヘッダーが必要です",
			})
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer トークン形式が不正です",
			})
			return
		}

		ctx := c.Request.Context()
		err := tokens.Validate(ctx, tokenString)
		switch {
		case err == nil:
			// そのまま通す
		case errors.Is(err, token.ErrTokenExpired):
			newToken, renewErr := tokens.Renew(ctx, tokenString)
			if renewErr != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "トークンの有効期限が切れており、更新もできませんでした",
				})
				return
			}
			c.Header("Authorization", "Bearer "+newToken)
			tokenString = newToken
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンが無効です",
			})
			return
		}

		subject, err := tokens.Subject(ctx, tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "トークンからサブジェクトを取得できません",
			})
			return
		}

		c.Set("subject", subject)
		c.Next()
	}
}

// GetSubject はGinコンテキストから認証済みサブジェクトを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetSubject(c *gin.Context) string {
	subject, _ := c.Get("subject")
	if s, ok := subject.(string); ok {
		return s
	}
	return ""
}
