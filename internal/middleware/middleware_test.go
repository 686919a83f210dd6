package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()

	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func guarded(t *testing.T) (http.Handler, *any) {
	t.Helper()

	var uid any
	h := JWTAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid = r.Context().Value(UserIDKey)
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &uid
}

func TestJWTAuth_Valid(t *testing.T) {
	h, uid := guarded(t)

	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"uid":   float64(42),
		"email": "a@b.c",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(42), *uid)
}

func TestJWTAuth_Rejected(t *testing.T) {
	h, _ := guarded(t)

	expired := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{})
	wrongAlg := signToken(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{})

	for name, header := range map[string]string{
		"missing":   "",
		"no bearer": "Token abc",
		"garbage":   "Bearer abc",
		"expired":   "Bearer " + expired,
		"wrong key": "Bearer " + wrongKey,
		"wrong alg": "Bearer " + wrongAlg,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestMetrics_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/items/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCaller(t *testing.T) {
	_, ok := Caller(context.Background())
	assert.False(t, ok)

	ctx := context.WithValue(context.Background(), UserIDKey, int64(7))
	caller, ok := Caller(ctx)
	assert.True(t, ok)
	assert.Equal(t, "7", caller)

	ctx = context.WithValue(ctx, EmailKey, "ops@example.com")
	caller, _ = Caller(ctx)
	assert.Equal(t, "ops@example.com", caller)

	caller, _ = Caller(context.WithValue(context.Background(), UserIDKey, "svc-ingest"))
	assert.Equal(t, "svc-ingest", caller)
}
