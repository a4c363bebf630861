// Package responses writes JSON HTTP responses.
package responses

import (
	"encoding/json"
	"net/http"
)

const internalErrorBody = `{"message":"internal server error"}`

// JSON encodes data and writes it with statusCode. Encoding happens before
// the header is written, so an encoding failure still yields a clean 500.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(internalErrorBody))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(body, '\n'))
}

// Error writes {"message": message}.
func Error(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, struct {
		Message string `json:"message"`
	}{
		Message: message,
	})
}

// ErrorWithDetails writes a message plus arbitrary details.
func ErrorWithDetails(w http.ResponseWriter, statusCode int, message string, details any) {
	JSON(w, statusCode, struct {
		Message string `json:"message"`
		Details any    `json:"details,omitempty"`
	}{
		Message: message,
		Details: details,
	})
}
