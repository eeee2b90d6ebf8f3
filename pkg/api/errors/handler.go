// Package errors provides HTTP error handling utilities for the API.
package errors

import (
	"encoding/json"
	goerrors "errors"
	"net/http"

	"github.com/autopeerd/autopeerd/pkg/errors"
	"github.com/autopeerd/autopeerd/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error.
// This signature allows handlers to return errors instead of manually
// writing error responses, enabling centralized error handling.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// errorBody is the JSON shape every non-2xx response carries.
type errorBody struct {
	Error string `json:"error"`
}

// ErrorHandler wraps a HandlerWithError and converts returned errors
// into appropriate HTTP responses.
//
// The decorator:
//   - Returns early if no error is returned (handler already wrote response)
//   - Extracts the HTTP status code from the error's Type via errors.StatusCode
//   - For 5xx errors: logs full error details, returns a generic message to the client
//   - For 4xx errors: returns the error's Message to the client
//
// Usage:
//
//	r.Post("/init", apierrors.ErrorHandler(routes.init))
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		var apperr *errors.Error
		code := http.StatusInternalServerError
		if goerrors.As(err, &apperr) {
			code = errors.StatusCode(apperr.Type)
		}

		// 5xx details stay in the log; the client gets a generic token.
		if code >= http.StatusInternalServerError {
			logger.Errorw("internal server error", "error", err)
			writeJSONError(w, code, "internal_error")
			return
		}
		writeJSONError(w, code, apperr.Message)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	WriteJSONError(w, code, message)
}

// WriteJSONError writes a {"error": message} JSON body with the given
// status code. Exported so middleware outside this package (token
// validation) can produce the same error shape.
func WriteJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorBody{Error: message})
}
