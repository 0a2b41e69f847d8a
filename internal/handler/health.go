package handler

import (
	"net/http"

	"github.com/lucko/bytebin/internal/apierror"
)

func handleHealth(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error) {
	headers := http.Header{}
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Content-Type", "application/json")
	return &response{Status: http.StatusOK, Headers: headers, Body: []byte(`{"status":"ok"}`)}, nil
}
