package controlplane

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fentz26/nudge/internal/logging"
)

// OwnerHeader names the owner when token auth is disabled.
const OwnerHeader = "X-Owner"

type ownerKey struct{}

// OwnerFromContext returns the authenticated owner of the request.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// withOwner attaches the request owner. With a token service configured the
// owner is the subject of a bearer token; otherwise it is taken from the
// X-Owner header or the owner query parameter.
func (s *Server) withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var owner string
		if s.tokens != nil {
			header := r.Header.Get("Authorization")
			if header == "" {
				s.writeError(w, r, fmt.Errorf("%w: missing authorization header", ErrUnauthorized))
				return
			}
			scheme, token, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				s.writeError(w, r, fmt.Errorf("%w: invalid authorization header format", ErrUnauthorized))
				return
			}
			sub, err := s.tokens.Validate(strings.TrimSpace(token))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			owner = sub
		} else {
			owner = strings.TrimSpace(r.Header.Get(OwnerHeader))
			if owner == "" {
				owner = strings.TrimSpace(r.URL.Query().Get("owner"))
			}
			if owner == "" {
				s.writeError(w, r, fmt.Errorf("%w: owner is required", ErrUnauthorized))
				return
			}
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("owner", owner))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs each request and stores a request-scoped logger in the context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With("request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), logger)))

		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
