package handlers

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"piiquante/internal/ledger"
	"piiquante/internal/services"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: 5", ledger.ErrInvalidVoteValue), http.StatusBadRequest},
		{fmt.Errorf("%w: heat", services.ErrValidation), http.StatusBadRequest},
		{services.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("%w: expired", services.ErrUnauthorized), http.StatusUnauthorized},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrConflict, http.StatusConflict},
		{services.ErrEmailTaken, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, tc.err)
		if w.Code != tc.status {
			t.Errorf("respondError(%v) status = %d, want %d", tc.err, w.Code, tc.status)
		}
		if !strings.HasPrefix(w.Body.String(), `{"error":`) {
			t.Errorf("respondError(%v) body = %s", tc.err, w.Body)
		}
	}
}

func TestInternalErrorsStayPrivate(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("pq: password authentication failed"))
	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("internal error leaked: %s", w.Body)
	}
	if len(c.Errors) != 1 {
		t.Errorf("internal error not recorded on context: %v", c.Errors)
	}
}

func TestPublicBaseURL(t *testing.T) {
	newCtx := func(host string, configure func(*http.Request)) *gin.Context {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Host = host
		if configure != nil {
			configure(c.Request)
		}
		return c
	}

	if got := publicBaseURL(newCtx("api.local:3000", nil), ""); got != "http://api.local:3000" {
		t.Errorf("plain request = %q", got)
	}
	tlsReq := newCtx("api.local", func(r *http.Request) { r.TLS = &tls.ConnectionState{} })
	if got := publicBaseURL(tlsReq, ""); got != "https://api.local" {
		t.Errorf("tls request = %q", got)
	}
	proxied := newCtx("api.local", func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") })
	if got := publicBaseURL(proxied, ""); got != "https://api.local" {
		t.Errorf("proxied request = %q", got)
	}
	if got := publicBaseURL(newCtx("ignored", nil), "https://cdn.example.com/"); got != "https://cdn.example.com" {
		t.Errorf("configured = %q", got)
	}
}
