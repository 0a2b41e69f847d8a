package handler

import (
	"net"
	"net/http"

	"github.com/lucko/bytebin/internal/apierror"
)

// CallerContext carries the resolved IP address and trust
// classification for one request, derived once at the top of the
// handler.
type CallerContext struct {
	IP       string
	RealUser bool
}

// resolveCaller implements the trusted-proxy contract: an API key
// must be in the allowlist if present; a valid key lets the caller
// override the observed IP via the forwarded-IP header. A caller is a
// "real user" unless it presents a valid API key with no forwarded IP
// (a trusted server reporting only itself).
func resolveCaller(r *http.Request, apiKeys map[string]bool) (*CallerContext, *apierror.Error) {
	ip := r.Header.Get("x-real-ip")
	if ip == "" {
		ip = remoteIP(r)
	}

	apiKey := r.Header.Get("Bytebin-Api-Key")
	if apiKey == "" {
		return &CallerContext{IP: ip, RealUser: true}, nil
	}
	if !apiKeys[apiKey] {
		return nil, apierror.Unauthorized("API key is invalid")
	}

	forwarded := r.Header.Get("Bytebin-Forwarded-For")
	if forwarded != "" {
		return &CallerContext{IP: forwarded, RealUser: true}, nil
	}
	return &CallerContext{IP: ip, RealUser: false}, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
