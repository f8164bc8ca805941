package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/example/supervision-scheduler/internal/application"
)

var testSecret = []byte("test-secret-of-sufficient-length")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustSign(t *testing.T, subject string, role application.Role) string {
	t.Helper()
	token, err := SignToken(testSecret, subject, role, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	return token
}

func TestRequireBearer(t *testing.T) {
	t.Parallel()

	t.Run("rejects requests without valid bearer tokens", func(t *testing.T) {
		t.Parallel()

		expired, err := SignToken(testSecret, "student-1", application.RoleStudent, time.Now().Add(-time.Minute))
		if err != nil {
			t.Fatalf("SignToken: %v", err)
		}
		foreign, err := SignToken([]byte("another-secret-of-enough-bytes"), "student-1", application.RoleStudent, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("SignToken: %v", err)
		}
		noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			Role:             "ADMIN",
			RegisteredClaims: jwt.RegisteredClaims{Subject: "admin-1"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("sign none token: %v", err)
		}
		unknownRole, err := SignToken(testSecret, "student-1", application.Role("GUEST"), time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("SignToken: %v", err)
		}

		tests := []struct {
			name   string
			header string
		}{
			{name: "missing credentials"},
			{name: "malformed bearer header", header: "Bearer malformed"},
			{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
			{name: "expired token", header: "Bearer " + expired},
			{name: "signed with another secret", header: "Bearer " + foreign},
			{name: "unsigned token", header: "Bearer " + noneToken},
			{name: "unknown role", header: "Bearer " + unknownRole},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				recorder := httptest.NewRecorder()

				handler := RequireBearer(testSecret, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatal("next handler should not be called when authentication fails")
				}))
				handler.ServeHTTP(recorder, req)

				if recorder.Code != http.StatusUnauthorized {
					t.Fatalf("expected 401, got %d", recorder.Code)
				}
				var body errorResponse
				if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
					t.Fatalf("decode body: %v", err)
				}
				if body.ErrorCode != "UNAUTHENTICATED" {
					t.Fatalf("expected UNAUTHENTICATED, got %q", body.ErrorCode)
				}
			})
		}
	})

	t.Run("attaches authenticated principal to request context", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name string
			role application.Role
			want application.Principal
		}{
			{name: "student", role: application.RoleStudent, want: application.Principal{UserID: "student-1"}},
			{name: "admin", role: application.RoleAdmin, want: application.Principal{UserID: "student-1", IsAdmin: true}},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				t.Parallel()

				req := httptest.NewRequest(http.MethodGet, "/protected", nil)
				req.Header.Set("Authorization", "bearer "+mustSign(t, "student-1", tc.role))
				recorder := httptest.NewRecorder()

				var got application.Principal
				handler := RequireBearer(testSecret, quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					principal, ok := PrincipalFromContext(r.Context())
					if !ok {
						t.Fatal("principal missing from context")
					}
					got = principal
					w.WriteHeader(http.StatusNoContent)
				}))
				handler.ServeHTTP(recorder, req)

				if recorder.Code != http.StatusNoContent {
					t.Fatalf("expected 204, got %d", recorder.Code)
				}
				if got != tc.want {
					t.Fatalf("expected %+v, got %+v", tc.want, got)
				}
			})
		}
	})
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFromContext(r.Context()) == nil {
			t.Fatal("request logger missing from context")
		}
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/supervisions", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var completed map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &completed); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if completed["msg"] != "request completed" {
		t.Fatalf("unexpected message %v", completed["msg"])
	}
	if completed["status"] != float64(http.StatusTeapot) {
		t.Fatalf("expected status 418, got %v", completed["status"])
	}
	if completed["request_id"] != float64(1) {
		t.Fatalf("expected request_id 1, got %v", completed["request_id"])
	}
	if completed["path"] != "/supervisions" {
		t.Fatalf("unexpected path %v", completed["path"])
	}
}
