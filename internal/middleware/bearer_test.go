package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeAuth map[string]string

func (f fakeAuth) Authenticate(tok string) (string, error) {
	uid, ok := f[tok]
	if !ok {
		return "", errors.New("unknown token")
	}
	return uid, nil
}

func TestBearer(t *testing.T) {
	assert := assert.New(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal("", Bearer(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal("", Bearer(r))

	r.Header.Set("Authorization", "bearer abc ")
	assert.Equal("abc", Bearer(r))
}

func TestRequireBearer(t *testing.T) {
	assert := assert.New(t)

	var seen string
	h := RequireBearer(fakeAuth{"good": "u1"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(http.StatusUnauthorized, rec.Code)
	assert.Contains(rec.Body.String(), "missing_token")

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer bad")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	assert.Contains(rec.Body.String(), "invalid_token")
	assert.Empty(seen)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Equal("u1", seen)
}
