package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notification/internal/lib/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserIDKey contextKey = "uid"
	EmailKey  contextKey = "email"
)

// JWTAuth rejects requests without a valid HS256 bearer token signed with
// secret. Known claims are copied into the request context.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthenticated(w, "missing authorization header")
				return
			}

			tokenStr, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenStr == "" {
				unauthenticated(w, "invalid authorization header")
				return
			}

			token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				unauthenticated(w, "invalid token")
				return
			}

			ctx := r.Context()
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				switch uid := claims["uid"].(type) {
				case float64:
					ctx = context.WithValue(ctx, UserIDKey, int64(uid))
				case string:
					ctx = context.WithValue(ctx, UserIDKey, uid)
				}
				if email, ok := claims["email"].(string); ok {
					ctx = context.WithValue(ctx, EmailKey, email)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Caller describes the authenticated caller stored by JWTAuth, preferring the
// email claim over uid.
func Caller(ctx context.Context) (string, bool) {
	if email, ok := ctx.Value(EmailKey).(string); ok && email != "" {
		return email, true
	}
	switch uid := ctx.Value(UserIDKey).(type) {
	case int64:
		return strconv.FormatInt(uid, 10), true
	case string:
		return uid, uid != ""
	}
	return "", false
}

func unauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Metrics observes every request under its route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.ObserveRequest(r.Method+" "+route, status, time.Since(start))
	})
}
