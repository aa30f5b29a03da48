package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexDocumentTool returns the tool definition for index_document
func indexDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_document",
		Description: "Index a single document into the knowledge store",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the document",
				},
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Display name sent to the engine (default: the file's base name)",
				},
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index synchronously and return the result instead of a job id",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// indexFolderTool returns the tool definition for index_folder
func indexFolderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_folder",
		Description: "Index every supported document in a folder, several files at a time",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the folder",
				},
				"recursive": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, include files in subdirectories",
					"default":     true,
				},
				"file_extensions": map[string]interface{}{
					"type":        "array",
					"description": "Only index files with these extensions (e.g. [\".pdf\", \".docx\"])",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"wait": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index synchronously and return the result instead of a job id",
					"default":     false,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getJobStatusTool returns the tool definition for get_job_status
func getJobStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_job_status",
		Description: "Query the state and result of an indexing job",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"job_id": map[string]interface{}{
					"type":        "string",
					"description": "Job id returned by index_document or index_folder",
				},
			},
			Required: []string{"job_id"},
		},
	}
}
