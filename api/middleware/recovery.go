package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"
)

// ErrorWriter writes the response for a recovered panic
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err interface{})

// Recovery returns a middleware that recovers from panics and responds with
// a plain 500
func Recovery(logger *zap.Logger) func(next http.Handler) http.Handler {
	return RecoveryWithWriter(logger, defaultErrorWriter)
}

// RecoveryWithWriter returns a recovery middleware with a custom error writer
func RecoveryWithWriter(logger *zap.Logger, writer ErrorWriter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("error", err),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					writer(w, r, err)
				}
			}()

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, _ interface{}) {
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
