package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Nzyazin/paychain/internal/core/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type principalKey struct{}

var errNoSubject = errors.New("token has no user id")

// WithPrincipal stores the authenticated user id in ctx.
func WithPrincipal(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, principalKey{}, id)
}

// PrincipalFrom returns the authenticated user id, if any.
func PrincipalFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(principalKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// Authenticate accepts HS256 bearer tokens whose sub or user_id claim is a
// user UUID.
func Authenticate(secret []byte, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Authorization header required")
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid authorization header format")
				return
			}

			userID, err := validateToken(strings.TrimSpace(token), secret)
			if err != nil {
				log.Warn("Rejected bearer token",
					logger.StringField("path", r.URL.Path),
					logger.ErrorField("error", err))
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "Invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), userID)))
		})
	}
}

func validateToken(tokenString string, secret []byte) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		subject, _ = claims["user_id"].(string)
	}
	if subject == "" {
		return uuid.Nil, errNoSubject
	}

	id, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("user id %q: %w", subject, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, errNoSubject
	}
	return id, nil
}
