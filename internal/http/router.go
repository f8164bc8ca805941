package http

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
)

type RouterConfig struct {
	Supervisions *SupervisionHandler
	Conflicts    *ConflictHandler
	Swaps        *SwapHandler
	Availability *AvailabilityHandler
	Users        *UserHandler
	Middleware   []func(http.Handler) http.Handler
	// CORSOrigins enables cross-origin requests from the listed origins.
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Supervisions != nil {
		mux.HandleFunc("/supervisions", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Supervisions.List(w, r)
			case http.MethodPost:
				cfg.Supervisions.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/supervisions/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Supervisions.Get(w, r)
			case http.MethodPut:
				cfg.Supervisions.Update(w, r)
			case http.MethodDelete:
				cfg.Supervisions.Delete(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		})
	}

	if cfg.Conflicts != nil {
		mux.HandleFunc("/conflicts/availability", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Conflicts.Availability(w, r)
		})
		mux.HandleFunc("/conflicts/enrollments", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Conflicts.Enrollments(w, r)
		})
	}

	if cfg.Swaps != nil {
		mux.HandleFunc("/supervisions/{id}/swap-targets", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Swaps.Targets(w, r)
		})
		mux.HandleFunc("/swap-requests", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Swaps.List(w, r)
			case http.MethodPost:
				cfg.Swaps.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/swap-requests/pending-count", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Swaps.PendingCount(w, r)
		})
		mux.HandleFunc("/swap-requests/{id}/{action}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			switch r.PathValue("action") {
			case "accept":
				cfg.Swaps.Accept(w, r)
			case "reject":
				cfg.Swaps.Reject(w, r)
			case "cancel":
				cfg.Swaps.Cancel(w, r)
			default:
				http.NotFound(w, r)
			}
		})
	}

	if cfg.Availability != nil {
		mux.HandleFunc("/availability", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Availability.List(w, r)
			case http.MethodPost:
				cfg.Availability.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
		mux.HandleFunc("/availability/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				methodNotAllowed(w, http.MethodDelete)
				return
			}
			cfg.Availability.Delete(w, r)
		})
	}

	if cfg.Users != nil {
		mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Users.List(w, r)
		})
		mux.HandleFunc("/users/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPut {
				methodNotAllowed(w, http.MethodPut)
				return
			}
			cfg.Users.Sync(w, r)
		})
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	if len(cfg.CORSOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		}).Handler(handler)
	}

	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
