package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tmplstore/billing/internal/contextkeys"
	"github.com/tmplstore/billing/internal/handler"
	"github.com/tmplstore/billing/internal/session"
)

// Claims are the fields the gateway reads from an admin token.
type Claims struct {
	Sub   string
	Email string
	Role  string
}

var errNoToken = errors.New("no token provided")

// VerifyToken checks an HS256 token issued by the auth service.
func VerifyToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return &Claims{
		Sub:   claimString(claims, "sub"),
		Email: claimString(claims, "email"),
		Role:  claimString(claims, "role"),
	}, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// Auth creates a JWT authentication middleware. The token is read the same way the
// payment core reads it, so it can be forwarded to the backend unchanged.
func Auth(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := session.BearerToken(r)
			if tokenStr == "" {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": errNoToken.Error()})
				return
			}

			claims, err := VerifyToken(secret, tokenStr)
			if err != nil {
				handler.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or expired token"})
				return
			}

			// Store user info in context using typed keys
			ctx := context.WithValue(r.Context(), contextkeys.UserID, claims.Sub)
			ctx = context.WithValue(ctx, contextkeys.UserEmail, claims.Email)
			ctx = context.WithValue(ctx, contextkeys.UserRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
