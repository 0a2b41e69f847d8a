package handler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lucko/bytebin/internal/apierror"
	"github.com/lucko/bytebin/internal/codec"
	"github.com/lucko/bytebin/internal/contentencoding"
	"github.com/lucko/bytebin/internal/logsink"
	"github.com/lucko/bytebin/internal/token"
)

func handleUpdate(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error) {
	if !token.Valid(id) {
		return nil, apierror.InvalidPath()
	}

	caller, apiErr := resolveCaller(r, s.RateLimitAPIKeys)
	if apiErr != nil {
		return nil, apiErr
	}
	exceeded, err := s.UpdateLimiter.Check(caller.IP)
	if err != nil {
		s.Log.Error("update rate limiter error", "error", err)
	}
	if exceeded {
		return nil, apierror.RateLimited()
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return nil, apierror.Unauthorized("Authorization header not present")
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil, apierror.Unauthorized("Invalid Authorization scheme")
	}
	authKey := strings.TrimPrefix(auth, "Bearer ")

	ctx := r.Context()
	existing, err := s.Cache.Get(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apierror.Timeout()
		}
		return nil, apierror.IncorrectModificationKey()
	}
	if existing.IsEmpty() {
		return nil, apierror.IncorrectModificationKey()
	}
	if !existing.Modifiable || existing.AuthKey != authKey {
		return nil, apierror.IncorrectModificationKey()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.MaxContentLength*4+1024))
	if err != nil {
		return nil, apierror.New(400, "Failed to read body").WithCause(err)
	}
	if len(body) == 0 {
		return nil, apierror.MissingContent()
	}

	contentType := headerOr(r, "Content-Type", existing.ContentType)
	encodings := contentencoding.ParseContentEncoding(r.Header.Get("Content-Encoding"))

	buf := body
	if len(encodings) == 0 {
		compressed, err := codec.Compress(buf)
		if err != nil {
			return nil, apierror.Internal("Failed to compress content").WithCause(err)
		}
		buf = compressed
		encodings = []string{contentencoding.GZIP}
	}
	if int64(len(buf)) > s.MaxContentLength {
		return nil, apierror.TooLarge()
	}

	userAgent := headerOr(r, "User-Agent", "null")
	origin := headerOr(r, "Origin", "null")
	host := r.Host
	newExpiry := s.Expiry.Expiry(time.Now(), userAgent, origin, host)

	existing.ContentType = contentType
	existing.Encoding = encodings
	existing.Expiry = newExpiry
	existing.LastModified = time.Now()
	existing.Content = buf
	existing.ContentLength = int64(len(buf))

	if err := s.Pool.Do(ctx, func() error { return s.Coord.Save(ctx, existing) }); err != nil {
		s.Log.Error("failed to save updated content", "key", id, "error", err)
		return nil, mapCoordErr(err, "Failed to save content")
	}
	s.Cache.Put(id, existing)

	if caller.RealUser {
		s.Sink.Log(logsink.Event{
			Type:      "post",
			Key:       id,
			Timestamp: time.Now(),
			User:      logsink.User{UserAgent: userAgent, Origin: origin, Host: host, IP: caller.IP},
			Content:   &logsink.ContentInfo{Length: int64(len(buf)), ContentType: contentType, Expiry: newExpiry},
		})
	}

	return &response{Status: http.StatusOK, Headers: http.Header{}}, nil
}
