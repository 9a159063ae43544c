package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/heartmarshall/curation-backend/pkg/ctxutil"
)

// Recovery turns a handler panic into a logged 500 INTERNAL response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				attrs := []any{
					slog.Any("error", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				}
				if id := ctxutil.RequestIDFromCtx(r.Context()); id != "" {
					attrs = append(attrs, slog.String("request_id", id))
				}
				if uid, ok := ctxutil.UserIDFromCtx(r.Context()); ok {
					attrs = append(attrs, slog.String("user_id", uid))
				}
				logger.ErrorContext(r.Context(), "panic recovered", attrs...)

				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
