package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/lucko/bytebin/internal/apierror"
)

func handleBulkDelete(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error) {
	apiKey := r.Header.Get("Bytebin-Api-Key")
	if apiKey == "" || !s.AdminAPIKeys[apiKey] {
		return nil, apierror.Unauthorized("API key is invalid")
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, apierror.New(400, "Failed to read body").WithCause(err)
	}
	var keys []string
	if err := json.Unmarshal(body, &keys); err != nil {
		return nil, apierror.New(400, "Invalid JSON body").WithCause(err)
	}
	if len(keys) == 0 {
		return nil, apierror.MissingContent()
	}

	force := r.URL.Query().Get("force") == "true"

	var deleted int
	err = s.Pool.Do(r.Context(), func() error {
		var deleteErr error
		deleted, deleteErr = s.Coord.BulkDelete(r.Context(), keys, force)
		return deleteErr
	})
	if err != nil {
		s.Log.Error("bulk delete failed", "error", err)
		return nil, mapCoordErr(err, "Bulk delete failed")
	}
	s.Cache.Invalidate(keys)

	body2, _ := json.Marshal(map[string]int{"deleted": deleted})
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &response{Status: http.StatusOK, Headers: headers, Body: body2}, nil
}
