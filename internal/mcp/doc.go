// Package mcp implements the Model Context Protocol (MCP) server for PDFQuery.
//
// The MCP server exposes four tools to AI assistants:
//   - query_pdf: Answer a question from the indexed documents, with sources
//   - retrieve_documents: Return the ranked passages for a query
//   - index_documents: Rebuild the whole index from the documents directory
//   - get_status: Report engine state, corpus metadata and per-document results
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	pdfquery serve
//
// The index is built on the first query_pdf or retrieve_documents call.
// Pass --eager to build it before the server starts reading stdin.
//
// # Tool: query_pdf
//
//	Request:
//	{
//	  "name": "query_pdf",
//	  "arguments": {
//	    "question": "How do I reset the device?",
//	    "max_chunks": 5
//	  }
//	}
//
//	Response:
//	{
//	  "answer": "Hold the reset button for ten seconds.",
//	  "sources": [
//	    {"document_name": "manual.pdf", "chunk_text": "Hold the reset button..."}
//	  ],
//	  "confidence_score": 0.7
//	}
//
// page_number is omitted when a chunk carries no page. confidence_score is a
// heuristic, not a probability.
//
// # Tool: retrieve_documents
//
//	Request:
//	{
//	  "name": "retrieve_documents",
//	  "arguments": {"query": "reset button", "max_chunks": 3}
//	}
//
//	Response:
//	{
//	  "query": "reset button",
//	  "chunks": [
//	    {
//	      "content": "Hold the reset button for ten seconds.",
//	      "document_name": "manual.pdf",
//	      "metadata": {
//	        "heading_path": ["Troubleshooting", "Reset"],
//	        "header_1": "Troubleshooting",
//	        "header_2": "Reset",
//	        "content_hash": "5f1c...",
//	        "score": 0.0164,
//	        "rank": 1
//	      }
//	    }
//	  ],
//	  "total_chunks": 1
//	}
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "pdfquery": {
//	      "command": "/usr/local/bin/pdfquery",
//	      "args": ["serve"],
//	      "env": {
//	        "PDF_DOCUMENTS_DIR": "/path/to/pdfs",
//	        "OPENAI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Malformed arguments (missing or mistyped parameters) are protocol errors:
//
//	{"error": {"code": -32602, "message": "MCP error -32602: question parameter is required"}}
//
// Everything else is reported as a tool result with isError set and a
// uniform payload:
//
//	{"error": {"code": "not_ready", "message": "...", "retryable": true}}
//
// Retryable codes are not_ready, build_in_progress, generation_timeout and
// external_service.
//
// # Logging
//
// The server logs to stderr; stdout is reserved for the protocol.
package mcp
