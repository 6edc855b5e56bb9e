// Package tenantgate authenticates tool requests with a per-tenant store
// credential carried in request metadata.
//
// The gate runs ahead of the MCP endpoint only. It extracts the credential
// from the dedicated header (falling back to a bearer token), validates it,
// and publishes the parsed credential into the request context for the
// duration of the call. Downstream code receives the credential explicitly
// via CredentialFromContext; there is no ambient global, so the value can
// never outlive its request or leak across concurrent ones.
package tenantgate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/credentials"
)

// HeaderCredential is the dedicated credential header. Lookup is
// case-insensitive per HTTP semantics.
const HeaderCredential = "Qdrant-Uri"

const bearerPrefix = "bearer "

// credentialKey is the context key type; unexported to avoid collisions.
type credentialKey struct{}

// WithCredential returns a context carrying the tenant credential.
func WithCredential(ctx context.Context, cred credentials.Credential) context.Context {
	return context.WithValue(ctx, credentialKey{}, cred)
}

// CredentialFromContext returns the tenant credential set by the gate.
func CredentialFromContext(ctx context.Context) (credentials.Credential, bool) {
	cred, ok := ctx.Value(credentialKey{}).(credentials.Credential)
	return cred, ok
}

// gateError is the structured error frame sent on rejection. The body is a
// single SSE message event so streamable-HTTP MCP clients surface it the
// same way they surface protocol errors.
type gateError struct {
	JSONRPC string          `json:"jsonrpc"`
	Error   gateErrorDetail `json:"error"`
}

type gateErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Middleware returns the tenant gate as echo middleware.
//
// Attach it to the routes that invoke tools; requests to other routes never
// pass through it. Extraction order:
//  1. the dedicated credential header;
//  2. a bearer Authorization header, whose token is treated as the
//     credential and which is stripped from the forwarded request so it
//     cannot reach inner handlers under a dual meaning.
//
// Invalid or missing credentials short-circuit with HTTP 400 and a
// structured error event (JSON-RPC code -32600) naming the header and the
// accepted URI schemes. The inner handler is never invoked in that case.
func Middleware(logger *zap.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			raw := req.Header.Get(HeaderCredential)
			if raw == "" {
				if auth := req.Header.Get(echo.HeaderAuthorization); auth != "" &&
					strings.HasPrefix(strings.ToLower(auth), bearerPrefix) {
					raw = strings.TrimSpace(auth[len(bearerPrefix):])
					req.Header.Del(echo.HeaderAuthorization)
				}
			}

			cred, err := credentials.Parse(raw)
			if err != nil {
				logger.Warn("rejected request without valid store credential",
					zap.String("path", req.URL.Path),
					zap.Error(err),
				)
				return rejectCredential(c)
			}

			c.SetRequest(req.WithContext(WithCredential(req.Context(), cred)))
			return next(c)
		}
	}
}

// rejectCredential writes the 400 error frame and ends the request.
func rejectCredential(c echo.Context) error {
	frame := gateError{
		JSONRPC: "2.0",
		Error: gateErrorDetail{
			Code: -32600,
			Message: fmt.Sprintf("Missing or invalid header '%s' (expected %s)",
				strings.ToLower(HeaderCredential),
				strings.Join(credentials.AcceptedSchemes(), " or ")),
		},
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	header := c.Response().Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache, no-transform")
	header.Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusBadRequest)

	_, err = fmt.Fprintf(c.Response(), "event: message\r\ndata: %s\r\n\r\n", data)
	return err
}
