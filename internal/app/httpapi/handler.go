package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	app "github.com/R3E-Network/canvas/internal/app"
	"github.com/R3E-Network/canvas/internal/app/domain/user"
	"github.com/R3E-Network/canvas/internal/app/metrics"
	apperrors "github.com/R3E-Network/canvas/internal/errors"
	"github.com/R3E-Network/canvas/internal/httputil"
	"github.com/R3E-Network/canvas/internal/logging"
	"github.com/R3E-Network/canvas/internal/middleware"
)

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins   []string
	SecureCookies bool
	// TrustedProxies may forward client addresses; nil trusts none.
	TrustedProxies *middleware.TrustedProxies
	Logger         *logging.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app      *app.Application
	log      *logging.Logger
	validate *validator.Validate
	secure   bool
	proxies  *middleware.TrustedProxies
}

// NewHandler returns the router exposing the REST API, /api/health and
// /metrics, wrapped in request tracing and CORS.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{app: application, log: log, validate: newValidator(), secure: opts.SecureCookies, proxies: opts.TrustedProxies}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, log, apperrors.NotFound("Resource"))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, req, log, apperrors.New("METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed, "Method not allowed"))
	})
	r.Use(middleware.MetricsMiddleware())

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/health", h.health).Methods(http.MethodGet)

	limits := middleware.NewRateLimit(application.Limiter, log.Named("ratelimit"))
	auth := middleware.NewAuthMiddleware(application.Auth, log.Named("auth"), nil)
	adminOnly := middleware.RequireRole(log, user.RoleAdmin)

	api := r.PathPrefix("/api").Subrouter()

	// Unauthenticated auth endpoints.
	api.Handle("/auth/login", limits.Handler(middleware.LoginPolicy, h.proxies.ByIP)(http.HandlerFunc(h.login))).Methods(http.MethodPost)
	api.Handle("/auth/refresh", limits.Handler(middleware.RefreshPolicy, h.refreshKey)(http.HandlerFunc(h.refresh))).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost)

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Handler)

	protected.HandleFunc("/auth/me", h.me).Methods(http.MethodGet)
	protected.HandleFunc("/auth/reset-password", h.changePassword).Methods(http.MethodPost)

	admin := protected.PathPrefix("/auth").Subrouter()
	admin.Use(adminOnly)
	admin.Handle("/register", limits.Handler(middleware.RegisterPolicy, h.proxies.ByUser)(http.HandlerFunc(h.register))).Methods(http.MethodPost)
	admin.HandleFunc("/users", h.listUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id}", h.updateUser).Methods(http.MethodPatch)
	admin.HandleFunc("/users/{id}", h.deleteUser).Methods(http.MethodDelete)
	admin.HandleFunc("/users/{id}/reset-password", h.adminResetPassword).Methods(http.MethodPost)

	protected.HandleFunc("/vbus", h.listVBUs).Methods(http.MethodGet)
	protected.HandleFunc("/vbus", h.createVBU).Methods(http.MethodPost)
	protected.HandleFunc("/vbus/{id}", h.getVBU).Methods(http.MethodGet)
	protected.HandleFunc("/vbus/{id}", h.updateVBU).Methods(http.MethodPatch)
	protected.HandleFunc("/vbus/{id}", h.deleteVBU).Methods(http.MethodDelete)
	protected.HandleFunc("/vbus/{id}/canvas", h.getCanvas).Methods(http.MethodGet)
	protected.HandleFunc("/vbus/{id}/canvas", h.updateCanvas).Methods(http.MethodPut)
	protected.HandleFunc("/vbus/{id}/canvas/pdf", h.exportPDF).Methods(http.MethodGet)

	protected.HandleFunc("/thesis-categories", h.listCategories).Methods(http.MethodGet)
	protected.HandleFunc("/canvases/{id}/theses", h.listTheses).Methods(http.MethodGet)
	protected.HandleFunc("/canvases/{id}/theses", h.createThesis).Methods(http.MethodPost)
	protected.HandleFunc("/canvases/{id}/theses/reorder", h.reorderTheses).Methods(http.MethodPut)
	protected.HandleFunc("/theses/{id}", h.updateThesis).Methods(http.MethodPatch)
	protected.HandleFunc("/theses/{id}", h.deleteThesis).Methods(http.MethodDelete)
	protected.HandleFunc("/theses/{id}/proof-points", h.listProofPoints).Methods(http.MethodGet)
	protected.HandleFunc("/theses/{id}/proof-points", h.createProofPoint).Methods(http.MethodPost)
	protected.HandleFunc("/proof-points/{id}", h.updateProofPoint).Methods(http.MethodPatch)
	protected.HandleFunc("/proof-points/{id}", h.deleteProofPoint).Methods(http.MethodDelete)

	protected.HandleFunc("/attachments", h.uploadAttachment).Methods(http.MethodPost)
	protected.HandleFunc("/attachments/{id}", h.downloadAttachment).Methods(http.MethodGet)
	protected.HandleFunc("/attachments/{id}/meta", h.attachmentMeta).Methods(http.MethodGet)
	protected.HandleFunc("/attachments/{id}", h.deleteAttachment).Methods(http.MethodDelete)

	protected.HandleFunc("/canvases/{id}/reviews", h.listReviews).Methods(http.MethodGet)
	protected.HandleFunc("/canvases/{id}/reviews", h.createReview).Methods(http.MethodPost)
	protected.HandleFunc("/canvases/{id}/review-options", h.reviewOptions).Methods(http.MethodGet)
	protected.HandleFunc("/reviews/{id}", h.getReview).Methods(http.MethodGet)

	protected.HandleFunc("/portfolio/summary", h.portfolioSummary).Methods(http.MethodGet)
	protected.HandleFunc("/portfolio/notes", h.portfolioNotes).Methods(http.MethodGet)
	protected.HandleFunc("/portfolio/notes", h.updatePortfolioNotes).Methods(http.MethodPatch)

	var root http.Handler = r
	root = middleware.NewCORSMiddleware(opts.CORSOrigins).Handler(root)
	root = middleware.NewTracingMiddleware(log.Named("http")).Handler(root)
	return root
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actor returns the authenticated user placed in the context by the auth
// middleware.
func (h *handler) actor(r *http.Request) user.User {
	u, _ := middleware.UserFrom(r.Context())
	return u
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, h.log, err)
}

func (h *handler) ok(w http.ResponseWriter, data interface{}) {
	httputil.WriteData(w, http.StatusOK, data)
}

func (h *handler) created(w http.ResponseWriter, data interface{}) {
	httputil.WriteData(w, http.StatusCreated, data)
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

// decode reads a JSON body into dst and runs struct validation.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := httputil.DecodeJSON(w, r, dst); err != nil {
		return err
	}
	return h.check(dst)
}

// queryInt parses an optional positive integer query parameter; 0 means
// absent.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.InvalidFormat(name, "must be a positive integer")
	}
	return n, nil
}

// queryList merges repeated and comma-separated query values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
