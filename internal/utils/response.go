package utils

import (
	"encoding/json"
	"net/http"
)

type errorResponse struct {
	Error string `json:"error"`
}

// Json пишет v как JSON ответ с кодом status.
func Json(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// Err пишет err как JSON тело ошибки.
func Err(w http.ResponseWriter, status int, err error) error {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	return Json(w, status, errorResponse{Error: msg})
}
