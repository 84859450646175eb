// Package errors provides the structured error taxonomy shared by every surface.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeNotFound rejects operations on a wallet or transfer that does not exist.
	CodeNotFound Code = "NOT_FOUND"
	// CodeConflict rejects operations that clash with the current lifecycle.
	CodeConflict Code = "CONFLICT"
	// CodeValidation rejects malformed input.
	CodeValidation Code = "VALIDATION"
	// CodeInsufficientFunds rejects withdrawals exceeding the balance.
	CodeInsufficientFunds Code = "INSUFFICIENT_FUNDS"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation:
		return codes.InvalidArgument
	case CodeInsufficientFunds:
		return codes.FailedPrecondition
	case CodeConflict:
		return codes.AlreadyExists
	case CodeNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case CodeConflict:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
