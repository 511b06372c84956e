package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"reasongate-gateway/pkg/logging/logging"
)

// Recoverer recovers from a handler panic, logs it with the stack and
// answers 500.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger := logging.L(r.Context())
				logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"type":"internal_error","message":"internal server error"}}`))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
