package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/PhilHem/gamepanel/backend/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxRequestIDLen = 128
)

var validRequestID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// RequestID reuses a well-formed incoming X-Request-ID or mints a UUID, echoes
// it on the response and stores it for the logger.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if len(id) == 0 || len(id) > maxRequestIDLen || !validRequestID.MatchString(id) {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
