package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func serveAuth(apiKey, header string) *httptest.ResponseRecorder {
	h := authMiddleware(apiKey, okHandler)
	req := httptest.NewRequest(http.MethodPost, "/events/food/pizza", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusOK, serveAuth("", "").Code)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	t.Parallel()

	w := serveAuth("secret", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `realm="waiterbot"`)
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	t.Parallel()

	w := serveAuth("secret", "Bearer wrong-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestAuthMiddleware_PrefixOfToken(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusUnauthorized, serveAuth("secret", "Bearer secre").Code)
}

func TestAuthMiddleware_CorrectToken(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusOK, serveAuth("secret", "Bearer secret").Code)
}

func TestAuthMiddleware_CaseInsensitiveScheme(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusOK, serveAuth("secret", "bearer secret").Code)
}

func TestAuthMiddleware_MalformedHeader(t *testing.T) {
	t.Parallel()
	assert.Equal(t, http.StatusUnauthorized, serveAuth("secret", "Basic dXNlcjpwYXNz").Code)
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		assert.Equal(t, tc.want, bearerToken(req), "header=%q", tc.header)
	}
}
