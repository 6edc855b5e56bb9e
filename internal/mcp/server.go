package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/resourced/internal/tenantgate"
)

// serverName and serverVersion identify this server in the initialize
// handshake.
const (
	serverName    = "resourced"
	serverVersion = "0.3.0"
)

// protocolVersions lists the supported MCP protocol versions, preferred
// first. An unsupported client request falls back to the first entry.
var protocolVersions = []string{
	"2024-11-05",
}

// Config holds the MCP server configuration.
type Config struct {
	Host string
	Port int

	// EnablePurge registers the destructive admin purge endpoint. Off by
	// default; the endpoint does not exist unless explicitly enabled.
	EnablePurge bool
}

// Server is the MCP HTTP server.
type Server struct {
	echo    *echo.Echo
	service ContextService
	logger  *zap.Logger
	config  *Config
}

// NewServer creates the MCP server and registers its routes.
func NewServer(service ContextService, logger *zap.Logger, cfg *Config) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("context service cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8000,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		service: service,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints. The tenant gate is attached
// per-route: the health check stays reachable without a credential.
func (s *Server) registerRoutes() {
	gate := tenantgate.Middleware(s.logger)

	s.echo.GET("/health", s.handleHealth)
	s.echo.POST("/mcp", s.handleMCPRequest, gate)

	if s.config.EnablePurge {
		s.echo.POST("/admin/purge", s.handlePurge, gate)
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleMCPRequest routes JSON-RPC requests on the /mcp endpoint by method.
func (s *Server) handleMCPRequest(c echo.Context) error {
	var req JSONRPCRequest
	if err := c.Bind(&req); err != nil {
		return jsonrpcError(c, nil, ParseError, fmt.Sprintf("invalid JSON-RPC request: %v", err))
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(c, req)

	case "notifications/initialized":
		// Notifications carry no ID and expect no body.
		return c.NoContent(http.StatusAccepted)

	case "ping":
		return jsonrpcSuccess(c, req.ID, map[string]interface{}{})

	case "tools/list":
		return jsonrpcSuccess(c, req.ID, ToolsListResult{Tools: s.toolList()})

	case "tools/call":
		return s.handleToolsCall(c, req)

	default:
		return jsonrpcError(c, req.ID, MethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

// handleInitialize negotiates the protocol version and opens a session.
func (s *Server) handleInitialize(c echo.Context, req JSONRPCRequest) error {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return jsonrpcError(c, req.ID, InvalidParams, fmt.Sprintf("invalid initialize params: %v", err))
		}
	}

	version := negotiateProtocolVersion(params.ProtocolVersion)
	c.Response().Header().Set("Mcp-Session-Id", uuid.NewString())
	c.Response().Header().Set("Mcp-Protocol-Version", version)

	s.logger.Debug("session initialized",
		zap.String("client", params.ClientInfo.Name),
		zap.String("protocol_version", version),
	)

	return jsonrpcSuccess(c, req.ID, InitializeResult{
		ProtocolVersion: version,
		Capabilities: ServerCapabilities{
			Tools: map[string]interface{}{},
		},
		ServerInfo: ServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	})
}

// handleToolsCall parses tools/call params and dispatches to the tool.
func (s *Server) handleToolsCall(c echo.Context, req JSONRPCRequest) error {
	var params ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpcError(c, req.ID, InvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
	}

	result, detail := s.callTool(c.Request().Context(), params)
	if detail != nil {
		s.logger.Warn("tool call failed",
			zap.String("tool", params.Name),
			zap.Int("code", detail.Code),
			zap.String("message", detail.Message),
		)
		return c.JSON(http.StatusOK, JSONRPCError{JSONRPC: "2.0", ID: req.ID, Error: detail})
	}
	return jsonrpcSuccess(c, req.ID, result)
}

// PurgeResponse is the response body for POST /admin/purge.
type PurgeResponse struct {
	Status string `json:"status"`
}

// handlePurge drops the calling tenant's collection.
func (s *Server) handlePurge(c echo.Context) error {
	if err := s.service.Purge(c.Request().Context()); err != nil {
		s.logger.Error("purge failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, PurgeResponse{Status: "purged"})
}

// negotiateProtocolVersion picks the protocol version for a session.
// Unsupported client requests fall back to the server's preferred version.
func negotiateProtocolVersion(requested string) string {
	for _, v := range protocolVersions {
		if v == requested {
			return v
		}
	}
	return protocolVersions[0]
}

// jsonrpcSuccess writes a JSON-RPC result response.
func jsonrpcSuccess(c echo.Context, id interface{}, result interface{}) error {
	return c.JSON(http.StatusOK, JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

// jsonrpcError writes a JSON-RPC error response. Protocol-level failures
// still answer 200 so the error travels in the JSON-RPC envelope.
func jsonrpcError(c echo.Context, id interface{}, code int, message string) error {
	return c.JSON(http.StatusOK, JSONRPCError{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ErrorDetail{Code: code, Message: message},
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting mcp server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down mcp server")
	return s.echo.Shutdown(ctx)
}
