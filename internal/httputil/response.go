package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/stump/stump/internal/apperr"
)

type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Status: "ok",
		Data:   data,
	})
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Response{
		Status: "error",
		Error: &ErrorBody{
			Code:    code,
			Message: message,
		},
	})
}

func ReadJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// WriteAppError classifies err via apperr and writes the mapped status,
// the way every handler in this server reports a core-layer failure.
func WriteAppError(w http.ResponseWriter, err error) {
	status := apperr.StatusFor(err)
	code := "INTERNAL_ERROR"
	if e, ok := apperr.As(err); ok {
		code = string(e.Kind)
	}
	WriteError(w, status, code, err.Error())
}
