package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"spendbook/internal/auth"
	applog "spendbook/internal/log"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"

	headerRequestID = "X-Request-ID"
)

// withMiddleware adds request ids, a request scoped logger, security
// headers, write rate limiting and access logging around next.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}

		logger := s.logger.With(applog.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = applog.WithContext(ctx, logger)
		r = r.WithContext(ctx)

		w.Header().Set(headerRequestID, requestID)
		setSecurityHeaders(w.Header())

		if isSuspiciousRequest(r) {
			s.metrics.suspiciousRequests.Add(1)
			logger.WarnContext(ctx, "Suspicious request",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
		}

		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			s.metrics.rateLimitHits.Add(1)
			logger.WithComponent(applog.ComponentRateLimit).WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			applog.LogHTTPEnd(ctx, r, http.StatusTooManyRequests, time.Since(start).Milliseconds(), clientIP)
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		applog.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	})
}

// sessionHandler receives the verified session of the caller.
type sessionHandler func(w http.ResponseWriter, r *http.Request, accountID int64)

// requireSession resolves the bearer token and rejects the request with 401
// when it is missing or invalid.
func (s *Server) requireSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.unauthorized(w, r, "missing bearer token")
			return
		}

		session, err := s.accounts.Resolve(r.Context(), token)
		if errors.Is(err, auth.ErrInvalidToken) {
			applog.FromContext(r.Context()).DebugContext(r.Context(), "Session rejected", applog.FieldError, err)
			s.unauthorized(w, r, "invalid or expired session")
			return
		}
		if err != nil {
			s.internalError(w, r, "Session lookup failed", err)
			return
		}

		logger := applog.FromContext(r.Context()).With(applog.FieldAccountID, session.AccountID)
		next(w, r.WithContext(applog.WithContext(r.Context(), logger)), session.AccountID)
	}
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	s.metrics.unauthorized.Add(1)
	w.Header().Set("WWW-Authenticate", `Bearer realm="spendbook"`)
	writeError(w, http.StatusUnauthorized, msg)
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// responseWriter captures the status code for access logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
