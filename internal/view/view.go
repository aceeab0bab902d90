package view

import (
	"github.com/dwarvesf/settlement-backend/internal/apperror"
)

type Response[T any] struct {
	Data      T      `json:"data"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// MessageResponse and ErrorResponse exist for the swagger annotations.
type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// CreateResponse builds the envelope every handler writes. payload echoes the
// offending request back on validation failures and may be nil.
func CreateResponse[T any](data T, err error, payload any, message string) Response[T] {
	resp := Response[T]{
		Data:    data,
		Message: message,
		Payload: payload,
	}
	if err != nil {
		kind := apperror.KindOf(err)
		resp.ErrorKind = kind.String()
		resp.Retryable = apperror.Retryable(err)
		resp.Error = apperror.MessageOf(err)
		if resp.Message == "" {
			resp.Message = resp.Error
		}
	}

	return resp
}

type Pagination struct {
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

type ListResponse[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}
