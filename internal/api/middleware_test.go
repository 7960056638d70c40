package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/rashomon-app/rashomon/internal/config"
	"github.com/rashomon-app/rashomon/internal/ratelimit"
	"github.com/rashomon-app/rashomon/internal/testutil"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &RashomonApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &RashomonApp{}

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_authMiddleware(t *testing.T) {
	app := NewRashomonApp(
		http.NewServeMux(),
		testutil.TestLogger(t),
		nil,
		nil,
		nil,
		nil,
		&config.Config{
			SigningKey: []byte("test-signing-key"),
		},
	)

	okHandler := func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, 1, userId)
		w.WriteHeader(http.StatusOK)
	}

	t.Run("valid token", func(t *testing.T) {
		token, err := app.createJwtForSession(1, time.Hour)
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))

		app.authMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Header().Get("Cache-Control"), "no-store")
	})

	t.Run("missing cookie", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)

		app.authMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := app.createJwtForSession(1, -time.Hour)
		assert.NoError(t, err)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))

		app.authMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func Test_rateLimitMiddleware(t *testing.T) {
	okHandler := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}

	newApp := func(t *testing.T, limiter ratelimit.Allower) *RashomonApp {
		t.Helper()
		return NewRashomonApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, nil, limiter, &config.Config{})
	}

	t.Run("no limiter configured", func(t *testing.T) {
		app := newApp(t, nil)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		app.rateLimitMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("request allowed", func(t *testing.T) {
		mockLimiter := &ratelimit.MockLimiter{}
		defer mockLimiter.AssertExpectations(t)
		mockLimiter.On("Allow", mock.Anything, "192.0.2.1", rateLimitRequests, rateLimitWindow).
			Return(true, nil).Once()

		app := newApp(t, mockLimiter)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		app.rateLimitMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("request denied", func(t *testing.T) {
		mockLimiter := &ratelimit.MockLimiter{}
		defer mockLimiter.AssertExpectations(t)
		mockLimiter.On("Allow", mock.Anything, "192.0.2.1", rateLimitRequests, rateLimitWindow).
			Return(false, nil).Once()

		app := newApp(t, mockLimiter)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		app.rateLimitMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})

	t.Run("limiter backend error fails open", func(t *testing.T) {
		mockLimiter := &ratelimit.MockLimiter{}
		defer mockLimiter.AssertExpectations(t)
		mockLimiter.On("Allow", mock.Anything, "192.0.2.1", rateLimitRequests, rateLimitWindow).
			Return(false, errors.New("redis down")).Once()

		app := newApp(t, mockLimiter)

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:54321"
		app.rateLimitMiddleware(okHandler)(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code, "a limiter backend error must not reject requests")
	})
}
