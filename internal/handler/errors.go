package handler

import (
	"context"
	"errors"

	"github.com/dshills/pdfquery-mcp/pkg/types"
)

// Error codes of the uniform error payload
const (
	CodeEmptyQuery         = "empty_query"
	CodeInvalidInput       = "invalid_input"
	CodeNotReady           = "not_ready"
	CodeBuildInProgress    = "build_in_progress"
	CodeGenerationTimeout  = "generation_timeout"
	CodeExternalService    = "external_service"
	CodeConfiguration      = "configuration"
	CodeEmptyCorpus        = "empty_corpus"
	CodeDocumentConversion = "document_conversion"
	CodeCanceled           = "canceled"
	CodeInternal           = "internal"
)

var errorCodes = []struct {
	kind error
	code string
}{
	{types.ErrEmptyQuery, CodeEmptyQuery},
	{types.ErrInvalidInput, CodeInvalidInput},
	{types.ErrRetrieverNotReady, CodeNotReady},
	{types.ErrBuildInProgress, CodeBuildInProgress},
	{types.ErrGenerationTimeout, CodeGenerationTimeout},
	{types.ErrExternalService, CodeExternalService},
	{types.ErrConfiguration, CodeConfiguration},
	{types.ErrEmptyCorpus, CodeEmptyCorpus},
	{types.ErrDocumentConversion, CodeDocumentConversion},
	{context.Canceled, CodeCanceled},
}

// ErrorCode maps an error to its payload code
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return CodeInternal
}

// ErrorPayload converts any error into the shared error response
func ErrorPayload(err error) types.ErrorResponse {
	if err == nil {
		return types.ErrorResponse{}
	}
	return types.ErrorResponse{
		Error: types.ErrorBody{
			Code:      ErrorCode(err),
			Message:   err.Error(),
			Retryable: types.IsRetryable(err),
		},
	}
}
