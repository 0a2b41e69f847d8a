package handler

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/lucko/bytebin/internal/apierror"
	"github.com/lucko/bytebin/internal/codec"
	"github.com/lucko/bytebin/internal/content"
	"github.com/lucko/bytebin/internal/contentencoding"
	"github.com/lucko/bytebin/internal/logsink"
)

const authKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateAuthKey() (string, error) {
	buf := make([]byte, 32)
	max := big.NewInt(int64(len(authKeyAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = authKeyAlphabet[n.Int64()]
	}
	return string(buf), nil
}

func handlePost(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error) {
	return doPost(s, r, false)
}

func handlePostAsPut(s *Server, w http.ResponseWriter, r *http.Request, id string) (*response, *apierror.Error) {
	return doPost(s, r, true)
}

func doPost(s *Server, r *http.Request, absoluteLocation bool) (*response, *apierror.Error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.MaxContentLength*4+1024))
	if err != nil {
		return nil, apierror.New(400, "Failed to read body").WithCause(err)
	}
	if len(body) == 0 {
		return nil, apierror.MissingContent()
	}

	caller, apiErr := resolveCaller(r, s.RateLimitAPIKeys)
	if apiErr != nil {
		return nil, apiErr
	}
	exceeded, err := s.PostLimiter.Check(caller.IP)
	if err != nil {
		s.Log.Error("post rate limiter error", "error", err)
	}
	if exceeded {
		return nil, apierror.RateLimited()
	}

	contentType := headerOr(r, "Content-Type", "text/plain")
	encodings := contentencoding.ParseContentEncoding(r.Header.Get("Content-Encoding"))
	userAgent := headerOr(r, "User-Agent", "null")
	origin := headerOr(r, "Origin", "null")
	host := r.Host

	expiry := s.Expiry.Expiry(time.Now(), userAgent, origin, host)

	// server-side compresses when the client did not already provide an
	// encoding; the size gate below is checked against the bytes that
	// will actually be written to storage, so a 2 MB body that
	// compresses under the limit is accepted (matching the literal
	// behaviour of the update path).
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

	var authKey string
	modifiable := r.Header.Get("Allow-Modification") == "true"
	if modifiable {
		authKey, err = generateAuthKey()
		if err != nil {
			return nil, apierror.Internal("Failed to generate modification key").WithCause(err)
		}
	}

	key, err := s.Tokens.Generate()
	if err != nil {
		return nil, apierror.Internal("Failed to generate key").WithCause(err)
	}

	rec := &content.Record{
		Key:           key,
		ContentType:   contentType,
		Encoding:      encodings,
		Expiry:        expiry,
		LastModified:  time.Now(),
		Modifiable:    modifiable,
		AuthKey:       authKey,
		ContentLength: int64(len(buf)),
		Content:       buf,
	}
	rec.NewSaveSignal()

	// pre-populate the loader immediately so a GET that arrives before
	// the durable save completes still observes this content.
	s.Cache.Put(key, rec)

	s.Pool.Go(func() {
		defer rec.MarkSaved()
		if err := s.Coord.Save(context.Background(), rec); err != nil {
			s.Log.Error("failed to save content", "key", key, "error", err)
		}
	})

	s.Metrics.ObserveContentSize(len(buf))
	if caller.RealUser {
		s.Sink.Log(logsink.Event{
			Type:      "post",
			Key:       key,
			Timestamp: time.Now(),
			User:      logsink.User{UserAgent: userAgent, Origin: origin, Host: host, IP: caller.IP},
			Content:   &logsink.ContentInfo{Length: int64(len(buf)), ContentType: contentType, Expiry: expiry},
		})
	}

	headers := http.Header{}
	if modifiable {
		headers.Set("Modification-Key", authKey)
	}
	if absoluteLocation {
		headers.Set("Location", absoluteURL(r, s.HostAliases, key))
	} else {
		headers.Set("Location", key)
	}
	headers.Set("Content-Type", "application/json")

	body2, _ := json.Marshal(map[string]string{"key": key})
	return &response{Status: http.StatusCreated, Headers: headers, Body: body2}, nil
}

func absoluteURL(r *http.Request, aliases []string, key string) string {
	host := r.Host
	for _, alias := range aliases {
		if alias == host {
			host = alias
			break
		}
	}
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, key)
}
