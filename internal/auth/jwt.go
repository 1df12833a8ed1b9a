// Package auth provides JWT-based authentication for the batch API
// バッチAPI向けのJWT認証を提供
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/nemonet1337/lotGoFramework/pkg/batch"
)

// Claims carries the authenticated user's identity in a token
// トークンに含まれる認証ユーザーの情報
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken issues a signed token for the given user
// 指定ユーザーの署名付きトークンを発行
func GenerateToken(secret, userID, email, role string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a token string and returns its claims
// トークン文字列を検証してクレームを返す
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("無効な署名方式です: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("トークン検証に失敗しました: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("トークンが無効です")
	}
	return claims, nil
}

// Middleware validates the Bearer token and puts the acting user into the
// request context. When disabled, requests pass through with the default actor.
// Bearerトークンを検証し、操作ユーザーをリクエストコンテキストに設定する。
// 無効時はデフォルト操作者のままリクエストを通過させる。
func Middleware(secret string, enabled bool, logger *zap.Logger, unauthorized func(w http.ResponseWriter, message string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "Authorizationヘッダーがありません")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				unauthorized(w, "Authorizationヘッダーは 'Bearer <token>' 形式である必要があります")
				return
			}

			claims, err := ParseToken(secret, parts[1])
			if err != nil {
				logger.Warn("トークン検証失敗", zap.Error(err))
				unauthorized(w, "トークンが無効または期限切れです")
				return
			}

			ctx := batch.WithActor(r.Context(), claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
