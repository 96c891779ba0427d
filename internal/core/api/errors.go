package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/scorekeeper/internal/core/auth"
	"github.com/solatis/scorekeeper/internal/types"
)

// Error codes carried in the "code" field of HTTP error payloads.
const (
	CodeBadRequest   = "bad_request"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeInternal     = "internal"
	CodeUnavailable  = "unavailable"
)

// ErrorResponse is the JSON body of every HTTP error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type mapping struct {
	err    error
	status int
	code   string
	grpc   codes.Code
}

// errorTable maps domain sentinels onto both transports. First match wins.
var errorTable = []mapping{
	{types.ErrEmptyText, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrTextTooLarge, http.StatusRequestEntityTooLarge, CodeBadRequest, codes.InvalidArgument},
	{types.ErrTooManyInputs, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrUnknownDocumentShape, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrDocumentTooComplex, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrExpressionFailed, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrDisallowedExpression, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrInvalidRecord, http.StatusBadRequest, CodeBadRequest, codes.InvalidArgument},
	{types.ErrNotFound, http.StatusNotFound, CodeNotFound, codes.NotFound},
	{types.ErrConflict, http.StatusConflict, CodeConflict, codes.AlreadyExists},
	{types.ErrAIUnavailable, http.StatusServiceUnavailable, CodeUnavailable, codes.Unavailable},
	{types.ErrAIRequestFailed, http.StatusBadGateway, CodeUnavailable, codes.Unavailable},
	{types.ErrAIResponseInvalid, http.StatusBadGateway, CodeUnavailable, codes.Unavailable},
	{auth.ErrKeyRevoked, http.StatusForbidden, CodeForbidden, codes.PermissionDenied},
	{auth.ErrBackend, http.StatusServiceUnavailable, CodeUnavailable, codes.Unavailable},
	{auth.ErrMissingKey, http.StatusUnauthorized, CodeUnauthorized, codes.Unauthenticated},
	{auth.ErrInvalidKeyFormat, http.StatusUnauthorized, CodeUnauthorized, codes.Unauthenticated},
	{auth.ErrUnknownKey, http.StatusUnauthorized, CodeUnauthorized, codes.Unauthenticated},
	{auth.ErrInvalidKey, http.StatusUnauthorized, CodeUnauthorized, codes.Unauthenticated},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeUnavailable, codes.DeadlineExceeded},
	{context.Canceled, 499, CodeUnavailable, codes.Canceled},
}

func lookup(err error) (mapping, bool) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m, true
		}
	}
	return mapping{}, false
}

// HTTPStatus returns the HTTP status and payload code for err.
// Unmapped errors are internal.
func HTTPStatus(err error) (int, string) {
	if m, ok := lookup(err); ok {
		return m.status, m.code
	}
	return http.StatusInternalServerError, CodeInternal
}

// codeForStatus names the payload code for framework errors (routing,
// binding) that carry only an HTTP status.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return CodeNotFound
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusConflict:
		return CodeConflict
	case status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return CodeUnavailable
	case status >= 500:
		return CodeInternal
	default:
		return CodeBadRequest
	}
}

// GRPCError converts err into a gRPC status error. Errors that already
// carry a status pass through.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if m, ok := lookup(err); ok {
		return status.Error(m.grpc, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
