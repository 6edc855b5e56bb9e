package tenantgate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/credentials"
)

// gatedApp builds an echo app with the gate on /mcp only. The inner handler
// records whether it ran and what credential it saw.
func gatedApp(t *testing.T) (*echo.Echo, *bool, *credentials.Credential) {
	t.Helper()
	invoked := false
	var seen credentials.Credential

	e := echo.New()
	e.POST("/mcp", func(c echo.Context) error {
		invoked = true
		if cred, ok := CredentialFromContext(c.Request().Context()); ok {
			seen = cred
		}
		// The fallback path must strip the Authorization header before
		// the inner handler runs.
		if c.Request().Header.Get(echo.HeaderAuthorization) != "" {
			t.Error("authorization header leaked to inner handler")
		}
		return c.String(http.StatusOK, "ok")
	}, Middleware(zap.NewNop()))
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e, &invoked, &seen
}

func TestMiddleware_MissingCredential(t *testing.T) {
	e, invoked, _ := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, *invoked, "inner handler must not run")
	assert.Equal(t, "text/event-stream", rec.Header().Get(echo.HeaderContentType))

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: message\r\ndata: "), "body: %q", body)
	assert.Contains(t, body, `"code":-32600`)
	assert.Contains(t, body, "qdrant-uri")
	assert.Contains(t, body, "qdrant://")
	assert.Contains(t, body, "qdrants://")
}

func TestMiddleware_InvalidScheme(t *testing.T) {
	e, invoked, _ := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(HeaderCredential, "http://not-a-store:1234")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, *invoked)
}

func TestMiddleware_DedicatedHeader(t *testing.T) {
	e, invoked, seen := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(HeaderCredential, "qdrant://tenant-a:6334")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, *invoked)
	assert.Equal(t, "qdrant://tenant-a:6334", seen.URI)
}

func TestMiddleware_HeaderCaseInsensitive(t *testing.T) {
	e, invoked, seen := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("QDRANT-URI", "qdrant://tenant-b:6334")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, *invoked)
	assert.Equal(t, "qdrant://tenant-b:6334", seen.URI)
}

func TestMiddleware_BearerFallback(t *testing.T) {
	e, invoked, seen := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer qdrant://tenant-c:6334")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, *invoked)
	assert.Equal(t, "qdrant://tenant-c:6334", seen.URI, "bearer fallback must yield the same credential as the dedicated header")
}

func TestMiddleware_DedicatedHeaderWinsOverBearer(t *testing.T) {
	e, _, seen := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(HeaderCredential, "qdrant://primary:6334")
	req.Header.Set(echo.HeaderAuthorization, "Bearer qdrant://fallback:6334")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "qdrant://primary:6334", seen.URI)
}

func TestMiddleware_BearerNonCredentialToken(t *testing.T) {
	e, invoked, _ := gatedApp(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer some-jwt-token")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, *invoked)
}

func TestMiddleware_OtherPathsBypassGate(t *testing.T) {
	e, _, _ := gatedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCredentialFromContext_Absent(t *testing.T) {
	_, ok := CredentialFromContext(context.Background())
	assert.False(t, ok)
}
