// Package contentencoding parses and normalizes the Accept-Encoding and
// Content-Encoding headers used to negotiate transport compression.
package contentencoding

import "strings"

const (
	Identity = "identity"
	GZIP     = "gzip"
	Brotli   = "br"
	Zstd     = "zstd"
)

// aliases maps non-canonical tokens seen on the wire to the canonical
// form used internally and in storage.
var aliases = map[string]string{
	"x-gzip": GZIP,
}

func canonicalize(token string) string {
	token = strings.ToLower(strings.TrimSpace(token))
	if canon, ok := aliases[token]; ok {
		return canon
	}
	return token
}

// ParseAcceptEncoding parses an Accept-Encoding header into the set of
// encodings the requester accepts. identity is always present, even if
// the header is empty or absent, per HTTP semantics.
func ParseAcceptEncoding(header string) map[string]bool {
	accepted := map[string]bool{Identity: true}
	if header == "" {
		return accepted
	}
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		// strip any ";q=..." quality parameter
		if idx := strings.IndexByte(part, ';'); idx >= 0 {
			part = part[:idx]
		}
		token := canonicalize(part)
		if token == "" {
			continue
		}
		accepted[token] = true
	}
	return accepted
}

// ParseContentEncoding parses a Content-Encoding header into an ordered
// list of encodings, canonicalizing aliases and dropping a trailing
// "identity" token (identity carries no information once explicit).
func ParseContentEncoding(header string) []string {
	if header == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, canonicalize(part))
	}
	for len(out) > 0 && out[len(out)-1] == Identity {
		out = out[:len(out)-1]
	}
	return out
}

// Satisfies reports whether accepted (as produced by ParseAcceptEncoding)
// covers every encoding in stored, i.e. the stored bytes can be served
// as-is without server-side transcoding.
func Satisfies(accepted map[string]bool, stored []string) bool {
	if accepted["*"] {
		return true
	}
	for _, enc := range stored {
		if !accepted[enc] {
			return false
		}
	}
	return true
}
