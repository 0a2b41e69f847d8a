package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/lucko/bytebin/internal/apierror"
)

// response is the sum type every route handler returns in place of
// writing directly to the ResponseWriter, so the CORS/metrics wrapper
// has one place to finish every request.
type response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

func ok(status int, body []byte) *response {
	return &response{Status: status, Headers: http.Header{}, Body: body}
}

// writeError converts an *apierror.Error into a plain-text response,
// logging the cause (if any) without leaking it to the client.
func writeError(w http.ResponseWriter, log *slog.Logger, err *apierror.Error) {
	if cause := err.Unwrap(); cause != nil {
		log.Error("request failed", "status", err.Status, "message", err.Message, "cause", cause)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(err.Status)
	_, _ = w.Write([]byte(err.Message))
}

// mapCoordErr turns an error from a pool-scheduled coordinator call
// into the typed status the handler should return: a 408 if the
// request's own deadline elapsed while the call was suspended waiting
// for a worker slot or for the backend/index, an Internal 500
// otherwise.
func mapCoordErr(err error, message string) *apierror.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Timeout()
	}
	return apierror.Internal(message).WithCause(err)
}

func writeResponse(w http.ResponseWriter, resp *response) {
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
