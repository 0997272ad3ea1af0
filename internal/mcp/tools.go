package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/pdfquery-mcp/internal/handler"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
)

// maxReportedErrors bounds the per-document errors echoed by index_documents
const maxReportedErrors = 5

// handleQueryPDF handles the query_pdf tool invocation
func (s *Server) handleQueryPDF(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	question, err := getString(args, "question")
	if err != nil {
		return nil, err
	}
	maxChunks, err := getOptionalInt(args, "max_chunks")
	if err != nil {
		return nil, err
	}

	// Bad input must not trigger a build
	if err := s.query.Validate(question, maxChunks); err != nil {
		return s.toolError("query_pdf", err), nil
	}
	if err := s.engine.EnsureReady(ctx); err != nil {
		return s.toolError("query_pdf", err), nil
	}

	resp, err := s.query.Handle(ctx, question, maxChunks)
	if err != nil {
		return s.toolError("query_pdf", err), nil
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleRetrieveDocuments handles the retrieve_documents tool invocation
func (s *Server) handleRetrieveDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, err := getString(args, "query")
	if err != nil {
		return nil, err
	}
	maxChunks, err := getOptionalInt(args, "max_chunks")
	if err != nil {
		return nil, err
	}

	// Bad input must not trigger a build
	if err := s.retrieval.Validate(query, maxChunks); err != nil {
		return s.toolError("retrieve_documents", err), nil
	}
	if err := s.engine.EnsureReady(ctx); err != nil {
		return s.toolError("retrieve_documents", err), nil
	}

	resp, err := s.retrieval.Handle(ctx, query, maxChunks)
	if err != nil {
		return s.toolError("retrieve_documents", err), nil
	}
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleIndexDocuments handles the index_documents tool invocation
func (s *Server) handleIndexDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.engine.Rebuild(ctx, nil)
	if err != nil {
		return s.toolError("index_documents", err), nil
	}

	response := map[string]interface{}{
		"indexed":            true,
		"build_id":           stats.BuildID,
		"documents_found":    stats.DocumentsFound,
		"documents_indexed":  stats.DocumentsIndexed,
		"documents_failed":   stats.DocumentsFailed,
		"candidate_chunks":   stats.CandidateChunks,
		"duplicates_dropped": stats.DuplicatesDropped,
		"chunks_stored":      stats.ChunksStored,
		"duration_ms":        stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		errorCount := len(stats.ErrorMessages)
		if errorCount > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.engine.Status(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(status)), nil
}

// toolError reports a domain failure as a tool result with IsError set
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	payload := handler.ErrorPayload(err)
	s.logger.Warn("tool_failed",
		"tool", tool,
		"code", payload.Error.Code,
		"retryable", payload.Error.Retryable,
		"error", err)
	return mcp.NewToolResultError(formatJSON(payload))
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getString extracts a required string parameter. Blank strings pass through
// so the handler reports them as empty queries.
func getString(args map[string]interface{}, key string) (string, error) {
	raw, present := args[key]
	if !present {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing",
		})
	}
	val, ok := raw.(string)
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, key+" must be a string", map[string]interface{}{
			"param":  key,
			"reason": fmt.Sprintf("got %T", raw),
		})
	}
	return val, nil
}

// getOptionalInt extracts an integer parameter, nil when absent
func getOptionalInt(args map[string]interface{}, key string) (*int, error) {
	raw, present := args[key]
	if !present || raw == nil {
		return nil, nil
	}

	var val int
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an integer", map[string]interface{}{
				"param": key,
				"value": v,
			})
		}
		val = int(v)
	case int:
		val = v
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, key+" must be an integer", map[string]interface{}{
			"param":  key,
			"reason": fmt.Sprintf("got %T", raw),
		})
	}
	return &val, nil
}
