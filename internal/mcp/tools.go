package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/docindex-mcp/internal/indexer"
	"github.com/dshills/docindex-mcp/internal/jobs"
	"github.com/dshills/docindex-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound  = -32001 // Path does not exist or has the wrong type
	ErrorCodeJobNotFound   = -32005 // Unknown job id
)

// handleIndexDocument handles the index_document tool invocation
func (s *Server) handleIndexDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	if err := validatePath(path, false); err != nil {
		return nil, pathError(err)
	}

	name := getStringDefault(args, "name", filepath.Base(path))
	if getBoolDefault(args, "wait", false) {
		result := s.indexer.IndexSingle(ctx, path, name, "")
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	id := s.jobs.Dispatch(ctx, types.JobKindFile, path, func(ctx context.Context) (jobs.Result, error) {
		return jobs.Result{File: s.indexer.IndexSingle(ctx, path, name, "")}, nil
	})

	response := map[string]interface{}{
		"status":  "accepted",
		"message": fmt.Sprintf("Document %s accepted for indexing", name),
		"job_id":  id,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIndexFolder handles the index_folder tool invocation
func (s *Server) handleIndexFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	if err := validatePath(path, true); err != nil {
		return nil, pathError(err)
	}

	extensions, err := getStringSlice(args, "file_extensions")
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "file_extensions must be an array of strings", map[string]interface{}{
			"param":  "file_extensions",
			"reason": err.Error(),
		})
	}

	req := indexer.FolderRequest{
		RootPath:   path,
		Recursive:  getBoolDefault(args, "recursive", true),
		Extensions: extensions,
	}

	if getBoolDefault(args, "wait", false) {
		result := s.indexer.IndexFolder(ctx, req)
		return mcp.NewToolResultText(formatJSON(result)), nil
	}

	id := s.jobs.Dispatch(ctx, types.JobKindFolder, path, func(ctx context.Context) (jobs.Result, error) {
		return jobs.Result{Aggregate: s.indexer.IndexFolder(ctx, req)}, nil
	})

	response := map[string]interface{}{
		"status":  "accepted",
		"message": fmt.Sprintf("Folder %s accepted for indexing", path),
		"job_id":  id,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetJobStatus handles the get_job_status tool invocation
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := args["job_id"].(string)
	if !ok || strings.TrimSpace(id) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "job_id parameter is required", map[string]interface{}{
			"param":  "job_id",
			"reason": "missing or empty",
		})
	}

	job, err := s.jobs.Status(ctx, id)
	if errors.Is(err, jobs.ErrJobNotFound) {
		return nil, newMCPError(ErrorCodeJobNotFound, "job not found", map[string]interface{}{
			"job_id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get job status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(job)), nil
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

// requirePath extracts the mandatory path argument
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || strings.TrimSpace(path) == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}
	return path, nil
}

// pathError maps a validatePath error onto an MCP error
func pathError(err error) error {
	code := ErrorCodeInvalidParams
	if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNotDirectory) || errors.Is(err, ErrNotFile) {
		code = ErrorCodePathNotFound
	}
	return newMCPError(code, "invalid path", map[string]interface{}{
		"param":  "path",
		"reason": err.Error(),
	})
}

// validatePath checks that path is absolute and exists. wantDir selects
// whether a directory or a regular file is expected.
func validatePath(path string, wantDir bool) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrPathNotFound, path)
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if wantDir && !info.IsDir() {
		return ErrNotDirectory
	}
	if !wantDir && !info.Mode().IsRegular() {
		return ErrNotFile
	}

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok && val != "" {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an optional array of strings
func getStringSlice(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is %T", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("got %T", raw)
	}
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNotFile         = errors.New("path is not a regular file")
)
