// Package mcp implements the Model Context Protocol (MCP) server for docindex.
//
// The MCP server exposes three tools to AI assistants:
//   - index_document: Index one document
//   - index_folder: Index every supported document in a folder
//   - get_job_status: Fetch the state and result of an indexing job
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the serve command with --mcp:
//
//	docindex serve --mcp
//
// # Jobs
//
// Indexing tools return immediately with a job id unless "wait" is true:
//
//	Request:
//	{
//	  "name": "index_folder",
//	  "arguments": {"path": "/data/contracts", "file_extensions": [".pdf"]}
//	}
//
//	Response:
//	{
//	  "status": "accepted",
//	  "message": "Folder /data/contracts accepted for indexing",
//	  "job_id": "6f1c..."
//	}
//
// get_job_status then reports the job, including the folder result once the
// job has completed:
//
//	{
//	  "job_id": "6f1c...",
//	  "kind": "folder",
//	  "state": "completed",
//	  "result": {
//	    "status": "partial",
//	    "message": "Indexed 2 of 3 file(s) from /data/contracts; 1 failed",
//	    "stats": {"total_files": 3, "files_processed": 2, "files_failed": 1, "files_skipped": 0},
//	    "file_results": [...]
//	  }
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32001: Path not found or of the wrong type
//   - -32005: Job not found
//
// Per-file indexing failures are never protocol errors; they are reported in
// the result with status "failed" or "partial".
//
// # Logging
//
// The MCP server logs to stderr (stdout is reserved for MCP protocol).
package mcp
