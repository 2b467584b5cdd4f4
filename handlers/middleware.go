package handlers

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"animeshelf/services/users"
)

type contextKey string

const sessionContextKey contextKey = "animeshelf.session"

// Authenticator resolves bearer tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (users.Session, error)
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (users.Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(users.Session)
	return sess, ok
}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess users.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// RequireSession rejects requests without a valid bearer token. When
// allowQuery is set the token may also come from the "token" query
// parameter, which browsers need for WebSocket upgrades.
func RequireSession(auth Authenticator, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" && allowQuery {
				token = r.URL.Query().Get("token")
			}
			sess, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, users.ErrUnauthenticated) {
					slog.Error("authenticate", "path", r.URL.Path, "error", err)
				}
				jsonError(w, unauthenticatedMessage, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// RequestLogger emits one structured log record per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack lets WebSocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
