package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/heartmarshall/curation-backend/pkg/ctxutil"
)

// requestNotes collects fields that inner handlers learn after the logger
// has already passed the request on: the authenticated caller and the
// stable error code of a failed call.
type requestNotes struct {
	mu        sync.Mutex
	userID    string
	errorCode string
}

type notesKey struct{}

func notesFrom(ctx context.Context) *requestNotes {
	n, _ := ctx.Value(notesKey{}).(*requestNotes)
	return n
}

// NoteErrorCode attaches the response error code to the request log line.
// It is a no-op outside the Logger middleware.
func NoteErrorCode(ctx context.Context, code string) {
	if n := notesFrom(ctx); n != nil {
		n.mu.Lock()
		n.errorCode = code
		n.mu.Unlock()
	}
}

func noteUser(ctx context.Context, userID string) {
	if n := notesFrom(ctx); n != nil {
		n.mu.Lock()
		n.userID = userID
		n.mu.Unlock()
	}
}

// Logger writes one "http.request" line per request. 5xx responses log at
// error level, 4xx at warn, everything else at info.
func Logger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			notes := &requestNotes{}
			if uid, ok := ctxutil.UserIDFromCtx(r.Context()); ok {
				notes.userID = uid
			}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(context.WithValue(r.Context(), notesKey{}, notes)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Int64("bytes", sw.bytes),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", ctxutil.RequestIDFromCtx(r.Context())),
			}
			if route := routePattern(r); route != "" {
				attrs = append(attrs, slog.String("route", route))
			}

			notes.mu.Lock()
			if notes.userID != "" {
				attrs = append(attrs, slog.String("user_id", notes.userID))
			}
			if notes.errorCode != "" {
				attrs = append(attrs, slog.String("error_code", notes.errorCode))
			}
			notes.mu.Unlock()

			level := slog.LevelInfo
			switch {
			case sw.status >= 500:
				level = slog.LevelError
			case sw.status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http.request", attrs...)
		})
	}
}

// statusWriter captures the status code and body size.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
