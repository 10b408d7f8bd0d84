package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type authorizerFunc func(ctx context.Context, token string) (string, error)

func (f authorizerFunc) Authorize(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

func TestAuth(t *testing.T) {
	authz := authorizerFunc(func(_ context.Context, token string) (string, error) {
		if token == "good" {
			return "42", nil
		}
		return "", errors.New("bad token")
	})

	var seen string
	handler := Auth(authz)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
		userID string
	}{
		{name: "valid token", header: "Bearer good", status: http.StatusNoContent, userID: "42"},
		{name: "rejected token", header: "Bearer bad", status: http.StatusUnauthorized},
		{name: "missing header", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic good", status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.userID, seen)
		})
	}
}

func TestGetUserIDWithoutAuth(t *testing.T) {
	assert.Empty(t, GetUserID(context.Background()))
}
