package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/yurykabanov/baqup/pkg/appcontext"
)

const (
	RequestIdHeader = "X-Request-Id"

	maxRequestIdLength = 64
)

// WithRequestId propagates the caller's request id, or a fresh one, into the request context
// and the response headers. Oversized ids are replaced.
func WithRequestId(next http.Handler, nextRequestId func() string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(RequestIdHeader)

		if requestId == "" || len(requestId) > maxRequestIdLength {
			requestId = nextRequestId()
		}

		ctx := appcontext.WithRequestId(r.Context(), requestId)

		w.Header().Set(RequestIdHeader, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func DefaultRequestIdProvider() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
