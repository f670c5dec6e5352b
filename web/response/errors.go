package response

import (
	"fmt"
	"net/http"
)

// WriteError writes an error response. Codes are "RQ" plus the status.
func WriteError(w http.ResponseWriter, statusCode int, message, details string) {
	writeJSON(w, statusCode, Response{
		Error:   message,
		Code:    fmt.Sprintf("RQ%d", statusCode),
		Details: details,
	})
}

// WriteBadRequest writes a 400 Bad Request error
func WriteBadRequest(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusBadRequest, message, details)
}

// WriteNotFound writes a 404 Not Found error
func WriteNotFound(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusNotFound, message, details)
}

// WriteMethodNotAllowed writes a 405 Method Not Allowed error
func WriteMethodNotAllowed(w http.ResponseWriter, method string) {
	w.Header().Set("Allow", http.MethodPost)
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed",
		fmt.Sprintf("Method %s not supported", method))
}

// WriteInternalServerError writes a 500 Internal Server Error
func WriteInternalServerError(w http.ResponseWriter, message, details string) {
	WriteError(w, http.StatusInternalServerError, message, details)
}

// WriteValidationError writes a 400 naming the invalid request member
func WriteValidationError(w http.ResponseWriter, member string, err error) {
	writeJSON(w, http.StatusBadRequest, Response{
		Error:   "Validation failed",
		Code:    fmt.Sprintf("RQ%d", http.StatusBadRequest),
		Details: err.Error(),
		Hint:    member,
	})
}
