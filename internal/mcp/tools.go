package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fyrsmithlabs/resourced/internal/conncache"
	"github.com/fyrsmithlabs/resourced/internal/embeddings"
	"github.com/fyrsmithlabs/resourced/internal/vectorstore"
)

// Tool names.
const (
	ToolGetContext  = "get_context_from_resources"
	ToolGetHostname = "get_hostname"
)

// ContextService is the retrieval surface the tools call into.
type ContextService interface {
	GetContext(ctx context.Context, question, resource string) (string, error)
	SupportedResources() []string
	Purge(ctx context.Context) error
}

// toolList describes the available tools for tools/list. The resource enum
// is rendered into the description so clients see what they may ask about.
func (s *Server) toolList() []Tool {
	resources := s.service.SupportedResources()
	return []Tool{
		{
			Name: ToolGetContext,
			Description: fmt.Sprintf(
				"Retrieve documentation and usage examples relevant to a question about one of the supported resources: %s.",
				strings.Join(resources, ", ")),
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"question": map[string]interface{}{
						"type":        "string",
						"description": "The question to retrieve context for.",
					},
					"resource": map[string]interface{}{
						"type":        "string",
						"description": "The resource (library) the question is about.",
						"enum":        resources,
					},
				},
				"required": []string{"question", "resource"},
			},
		},
		{
			Name:        ToolGetHostname,
			Description: "Return the hostname of the machine serving this endpoint.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

// callTool dispatches a tools/call invocation by name.
func (s *Server) callTool(ctx context.Context, params ToolsCallParams) (ToolResult, *ErrorDetail) {
	switch params.Name {
	case ToolGetContext:
		return s.callGetContext(ctx, params.Arguments)
	case ToolGetHostname:
		return s.callGetHostname()
	default:
		return ToolResult{}, &ErrorDetail{
			Code:    MethodNotFound,
			Message: fmt.Sprintf("unknown tool: %s", params.Name),
		}
	}
}

func (s *Server) callGetContext(ctx context.Context, args map[string]interface{}) (ToolResult, *ErrorDetail) {
	question, ok := args["question"].(string)
	if !ok || strings.TrimSpace(question) == "" {
		return ToolResult{}, &ErrorDetail{
			Code:    InvalidParams,
			Message: "'question' must be a non-empty string",
		}
	}
	resource, ok := args["resource"].(string)
	if !ok || strings.TrimSpace(resource) == "" {
		return ToolResult{}, &ErrorDetail{
			Code:    InvalidParams,
			Message: "'resource' must be a non-empty string",
		}
	}

	answer, err := s.service.GetContext(ctx, question, resource)
	if err != nil {
		return ToolResult{}, toolError(err)
	}
	return textResult(answer), nil
}

func (s *Server) callGetHostname() (ToolResult, *ErrorDetail) {
	hostname, err := os.Hostname()
	if err != nil {
		return ToolResult{}, &ErrorDetail{Code: InternalError, Message: err.Error()}
	}
	return textResult(hostname), nil
}

// toolError maps a service failure onto the closest JSON-RPC error code.
func toolError(err error) *ErrorDetail {
	code := InternalError
	switch {
	case errors.Is(err, embeddings.ErrEmbeddingFailed),
		errors.Is(err, embeddings.ErrMalformedResponse):
		code = EmbeddingError
	case errors.Is(err, conncache.ErrUnavailable),
		errors.Is(err, vectorstore.ErrConnectionFailed),
		errors.Is(err, vectorstore.ErrStoreWrite):
		code = VectorStoreError
	}
	return &ErrorDetail{Code: code, Message: err.Error()}
}
