package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID reaproveita o X-Request-ID de entrada ou gera um UUID novo.
// O id volta no header da resposta e segue para o backend.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ensureRequestID(w, r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func ensureRequestID(w http.ResponseWriter, r *http.Request) string {
	id := RequestIDFrom(r.Context())
	if id == "" {
		id = strings.TrimSpace(r.Header.Get(RequestIDHeader))
	}
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	r.Header.Set(RequestIDHeader, id)
	w.Header().Set(RequestIDHeader, id)
	return id
}
