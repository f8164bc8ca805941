package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/example/supervision-scheduler/internal/application"
)

// Claims are the bearer token claims issued by the identity provider.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RequireBearer authenticates requests with an HS256 bearer token and stores
// the resulting principal in the request context.
func RequireBearer(secret []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	responder := newResponder(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractTokenFromRequest(r)
			if token == "" {
				responder.writeError(r.Context(), w, http.StatusUnauthorized, errMissingToken)
				return
			}

			principal, err := parseToken(secret, token)
			if err != nil {
				responder.loggerFor(r.Context()).WarnContext(r.Context(), "bearer token rejected", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusUnauthorized, errorResponse{ErrorCode: "UNAUTHENTICATED", Message: errInvalidToken.Error()})
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseToken(secret []byte, raw string) (application.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return application.Principal{}, err
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return application.Principal{}, errors.New("token has no subject")
	}

	role := application.Role(strings.ToUpper(strings.TrimSpace(claims.Role)))
	switch role {
	case application.RoleStudent, application.RoleAdmin:
	default:
		return application.Principal{}, fmt.Errorf("token has unknown role %q", claims.Role)
	}

	return application.Principal{UserID: subject, IsAdmin: role == application.RoleAdmin}, nil
}

// SignToken issues an HS256 token for the given user. It is used by the
// token command and by tests.
func SignToken(secret []byte, subject string, role application.Role, expiresAt time.Time) (string, error) {
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func extractTokenFromRequest(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	var counter atomic.Uint64

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := counter.Add(1)
			logger := base.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ContextWithLogger(r.Context(), logger)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			logger.InfoContext(ctx, "request started")
			next.ServeHTTP(recorder, r.WithContext(ctx))
			logger.InfoContext(ctx, "request completed", "status", recorder.status, "duration", time.Since(start))
		})
	}
}
