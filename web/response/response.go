package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zeromicro/go-zero/core/logx"
)

// Response is the envelope of list and error responses
type Response struct {
	Data    interface{} `json:"data,omitempty"`
	Count   int         `json:"count,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Details string      `json:"details,omitempty"`
	// Hint names the request member that failed validation.
	Hint string `json:"hint,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Errorf("write response: %v", err)
	}
}

// WriteSuccess writes a list response with its element count
func WriteSuccess(w http.ResponseWriter, data interface{}, count int) {
	w.Header().Set("X-Total-Count", strconv.Itoa(count))
	writeJSON(w, http.StatusOK, Response{Data: data, Count: count})
}

// WriteSingle writes a single object, unwrapped
func WriteSingle(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, data)
}
