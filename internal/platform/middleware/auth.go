package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the authenticated operator identity extracted from a token.
type Claims struct {
	OperatorID   string
	OperatorName string
}

// Validator validates bearer tokens on the admin API.
type Validator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

type contextKeyClaims struct{}

// OperatorFromContext retrieves the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(contextKeyClaims{}).(*Claims)
	return c, ok
}

// RequireAuth rejects requests without a valid bearer token. Mutating admin
// routes sit behind it; read-only health and metrics do not.
func RequireAuth(validator Validator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("rejected admin request", "path", r.URL.Path, "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), contextKeyClaims{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HMACValidator validates HS256 tokens signed with a shared key.
type HMACValidator struct {
	key []byte
}

func NewHMACValidator(key string) *HMACValidator {
	return &HMACValidator{key: []byte(key)}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.key, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	sub, _ := mapClaims["sub"].(string)
	name, _ := mapClaims["name"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	return &Claims{OperatorID: sub, OperatorName: name}, nil
}
