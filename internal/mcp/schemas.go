package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

func maxChunksProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Maximum number of chunks to retrieve (default 5)",
		"minimum":     1,
	}
}

// queryPDFTool returns the tool definition for query_pdf
func queryPDFTool() mcp.Tool {
	return mcp.Tool{
		Name: "query_pdf",
		Description: "Answer a question from the indexed PDF and Markdown documents. " +
			"Returns the answer, the cited sources and a heuristic confidence score.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Natural language question about the documents",
				},
				"max_chunks": maxChunksProperty(),
			},
			Required: []string{"question"},
		},
	}
}

// retrieveDocumentsTool returns the tool definition for retrieve_documents
func retrieveDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "retrieve_documents",
		Description: "Retrieve the passages most relevant to a query without generating an answer",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"max_chunks": maxChunksProperty(),
			},
			Required: []string{"query"},
		},
	}
}

// indexDocumentsTool returns the tool definition for index_documents
func indexDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_documents",
		Description: "Rebuild the whole document index from the documents directory",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report the engine state, the indexed corpus and per-document results",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
