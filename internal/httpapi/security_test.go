package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outletpos/backend/internal/closing"
	"outletpos/backend/internal/domain"
	"outletpos/backend/internal/service"
	"outletpos/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	rec := do(t, api, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Referrer-Policy"))
}

func TestCORSPreflightAllowsConfiguredOrigin(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/closings", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/closings", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)

	for i := 0; i < 6; i++ {
		rec := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "owner", Password: "wrong-pass"})
		if i < 5 {
			require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerErrorsStayGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusInternalServerError, errors.New(`pq: relation "daily_closings" does not exist`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "daily_closings")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: bad password", closing.ErrApprovalDenied), http.StatusForbidden},
		{fmt.Errorf("%w: %w", closing.ErrApprovalDenied, ErrInvalidCredentials), http.StatusForbidden},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("product x: %w", store.ErrNotFound), http.StatusNotFound},
		{closing.ErrAlreadyClosed, http.StatusConflict},
		{closing.ErrCommitInFlight, http.StatusConflict},
		{store.ErrInsufficientStock, http.StatusConflict},
		{closing.ErrReasonRequired, http.StatusUnprocessableEntity},
		{closing.ErrNoAttendance, http.StatusUnprocessableEntity},
		{store.ErrInvalidTransaction, http.StatusBadRequest},
		{fmt.Errorf("%w: %w", closing.ErrCommitFailed, errors.New("timeout")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
