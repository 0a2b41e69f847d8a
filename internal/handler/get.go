package handler

import (
	"net/http"
	"time"

	"github.com/lucko/bytebin/internal/apierror"
	"github.com/lucko/bytebin/internal/codec"
	"github.com/lucko/bytebin/internal/contentencoding"
	"github.com/lucko/bytebin/internal/logsink"
	"github.com/lucko/bytebin/internal/token"
)

func handleGet(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error) {
	if !token.Valid(id) {
		return nil, apierror.InvalidPath()
	}

	caller, apiErr := resolveCaller(r, s.RateLimitAPIKeys)
	if apiErr != nil {
		return nil, apiErr
	}

	exceeded, err := s.ReadLimiter.Check(caller.IP)
	if err != nil {
		s.Log.Error("read rate limiter error", "error", err)
	}
	if exceeded {
		return nil, apierror.RateLimited()
	}

	accepted := contentencoding.ParseAcceptEncoding(r.Header.Get("Accept-Encoding"))

	userAgent := headerOr(r, "User-Agent", "null")
	origin := headerOr(r, "Origin", "null")
	host := r.Host

	if caller.RealUser {
		s.Sink.Log(logsink.Event{
			Type:      "attempted_get",
			Key:       id,
			Timestamp: time.Now(),
			User:      logsink.User{UserAgent: userAgent, Origin: origin, Host: host, IP: caller.IP},
		})

		if s.NotFoundLimiter != nil && s.NotFoundLimiter.Check(caller.IP) {
			return nil, apierror.RateLimited()
		}
	}

	rec, err := s.Cache.Get(r.Context(), id)
	if err != nil {
		if r.Context().Err() != nil {
			return nil, apierror.Timeout()
		}
		if caller.RealUser && s.NotFoundLimiter != nil {
			s.NotFoundLimiter.Increment(caller.IP)
		}
		return nil, apierror.InvalidPath()
	}
	if rec.IsEmpty() {
		if caller.RealUser && s.NotFoundLimiter != nil {
			s.NotFoundLimiter.Increment(caller.IP)
		}
		return nil, apierror.InvalidPath()
	}

	if caller.RealUser {
		s.Sink.Log(logsink.Event{
			Type:      "get",
			Key:       id,
			Timestamp: time.Now(),
			User:      logsink.User{UserAgent: userAgent, Origin: origin, Host: host, IP: caller.IP},
			Content:   &logsink.ContentInfo{Length: rec.ContentLength, ContentType: rec.ContentType, Expiry: rec.Expiry},
		})
	}

	headers := http.Header{}
	headers.Set("Last-Modified", rec.LastModified.UTC().Format(http.TimeFormat))
	if rec.Modifiable {
		headers.Set("Cache-Control", "public, no-cache, proxy-revalidate, no-transform")
	} else {
		headers.Set("Cache-Control", "public, max-age=604800, no-transform, immutable")
	}
	headers.Set("Content-Type", rec.ContentType)

	if contentencoding.Satisfies(accepted, rec.Encoding) {
		if len(rec.Encoding) > 0 {
			headers.Set("Content-Encoding", joinEncoding(rec.Encoding))
		}
		return &response{Status: http.StatusOK, Headers: headers, Body: rec.Content}, nil
	}

	if len(rec.Encoding) == 1 && rec.Encoding[0] == contentencoding.GZIP {
		decoded, err := codec.Decompress(rec.Content)
		if err != nil {
			return nil, apierror.UncompressFailed()
		}
		return &response{Status: http.StatusOK, Headers: headers, Body: decoded}, nil
	}

	return nil, apierror.NotAcceptable("Accept-Encoding does not contain Content-Encoding")
}

func headerOr(r *http.Request, name, def string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return def
}

func joinEncoding(enc []string) string {
	out := enc[0]
	for _, e := range enc[1:] {
		out += "," + e
	}
	return out
}
