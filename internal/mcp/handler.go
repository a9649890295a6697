// Package mcp serves search and graph queries to coding assistants over
// a JSON-RPC 2.0 tool protocol on stdio. Authentication is optional:
// when a token validator is wired, the caller must present a bearer
// token at initialize and every tool carries the scope it demands.
package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/codegraphhq/codegraph/internal/auth"
	"github.com/codegraphhq/codegraph/internal/mcp/tools"
)

// Tool is one callable operation exposed over the protocol.
type Tool interface {
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
	GetSchema() map[string]interface{}
}

// TokenValidator checks bearer tokens presented at initialize. A nil
// validator disables authentication entirely.
type TokenValidator interface {
	ValidateToken(raw string) auth.ValidationResult
}

// registeredTool pairs a tool with the scope a caller needs to invoke it.
type registeredTool struct {
	tool  Tool
	scope auth.Scope
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	ServerName    string
	ServerVersion string
	Validator     TokenValidator
	Logger        *logrus.Logger
}

// Handler dispatches JSON-RPC requests to registered tools. One handler
// serves one stdio session, so authentication state lives on it; it is
// not safe for concurrent use.
type Handler struct {
	name      string
	version   string
	validator TokenValidator
	logger    *logrus.Logger

	tools map[string]registeredTool

	authenticated bool
	grantedScopes map[auth.Scope]bool
}

// NewHandler creates a handler with no tools registered.
func NewHandler(opts HandlerOptions) *Handler {
	if opts.ServerName == "" {
		opts.ServerName = "codegraph"
	}
	if opts.ServerVersion == "" {
		opts.ServerVersion = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	return &Handler{
		name:      opts.ServerName,
		version:   opts.ServerVersion,
		validator: opts.Validator,
		logger:    opts.Logger,
		tools:     make(map[string]registeredTool),
	}
}

// RegisterTool exposes tool under name. Callers need scope (or admin)
// to invoke it when authentication is enabled.
func (h *Handler) RegisterTool(name string, scope auth.Scope, tool Tool) {
	h.tools[name] = registeredTool{tool: tool, scope: scope}
}

// Handle processes a JSON-RPC request.
func (h *Handler) Handle(ctx context.Context, req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "tools/list":
		return h.handleToolsList(req)
	case "tools/call":
		return h.handleToolCall(ctx, req)
	default:
		return errorResponse(req.ID, -32601, "Method not found")
	}
}

// handleInitialize handles the initialize request. With a validator
// wired this is also the authentication step: the session is only
// marked authenticated once a presented token validates.
func (h *Handler) handleInitialize(req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	if h.validator != nil {
		raw := bearerToken(req.Params)
		if raw == "" {
			return errorResponse(req.ID, -32000, "Unauthorized: authorization token required")
		}
		verdict := h.validator.ValidateToken(raw)
		if !verdict.Valid {
			h.logger.WithField("reason", verdict.Reason).Warn("Rejected MCP session")
			return errorResponse(req.ID, -32000, fmt.Sprintf("Unauthorized: token validation failed (%s)", verdict.Reason))
		}

		h.authenticated = true
		h.grantedScopes = make(map[auth.Scope]bool, len(verdict.Metadata.Scopes))
		for _, scope := range verdict.Metadata.Scopes {
			h.grantedScopes[scope] = true
		}
		h.logger.WithField("token", verdict.Metadata.Name).Info("MCP session authenticated")
	}

	return resultResponse(req.ID, map[string]interface{}{
		"protocolVersion": "1.0",
		"capabilities": map[string]interface{}{
			"tools": map[string]interface{}{},
		},
		"serverInfo": map[string]string{
			"name":    h.name,
			"version": h.version,
		},
	})
}

// handleToolsList handles the tools/list request. Listing is open even
// when authentication is on; discovery leaks nothing the schema does
// not already state.
func (h *Handler) handleToolsList(req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	toolsList := make([]map[string]interface{}, 0, len(h.tools))
	for _, name := range h.toolNames() {
		toolsList = append(toolsList, map[string]interface{}{
			"name":   name,
			"schema": h.tools[name].tool.GetSchema(),
		})
	}

	return resultResponse(req.ID, map[string]interface{}{
		"tools": toolsList,
	})
}

// handleToolCall handles the tools/call request.
func (h *Handler) handleToolCall(ctx context.Context, req *tools.JSONRPCRequest) *tools.JSONRPCResponse {
	toolName, ok := req.Params["name"].(string)
	if !ok || toolName == "" {
		return errorResponse(req.ID, -32602, "Invalid params: 'name' is required")
	}

	reg, exists := h.tools[toolName]
	if !exists {
		return errorResponse(req.ID, -32602, "Tool not found: "+toolName)
	}

	if h.validator != nil {
		if !h.authenticated {
			return errorResponse(req.ID, -32000, "Unauthorized: initialize with an authorization token first")
		}
		if !h.grantedScopes[reg.scope] && !h.grantedScopes[auth.ScopeAdmin] {
			return errorResponse(req.ID, -32000, fmt.Sprintf("Forbidden: tool %q requires scope %q", toolName, reg.scope))
		}
	}

	args, ok := req.Params["arguments"].(map[string]interface{})
	if !ok {
		args = make(map[string]interface{})
	}

	result, err := reg.tool.Execute(ctx, args)
	if err != nil {
		h.logger.WithError(err).WithField("tool", toolName).Warn("Tool execution failed")
		return errorResponse(req.ID, -32603, "Tool execution error: "+err.Error())
	}

	return resultResponse(req.ID, result)
}

func (h *Handler) toolNames() []string {
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bearerToken pulls the raw token out of initialize params. Both bare
// tokens and "Bearer <token>" values are accepted.
func bearerToken(params map[string]interface{}) string {
	raw, _ := params["authorization"].(string)
	raw = strings.TrimSpace(raw)
	if len(raw) >= 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

func resultResponse(id interface{}, result interface{}) *tools.JSONRPCResponse {
	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
}

func errorResponse(id interface{}, code int, message string) *tools.JSONRPCResponse {
	return &tools.JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &tools.JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
}
