package syncbridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alumnihub/authflow/pkg/logger"
)

// Cookie names used for the mirrored session.
const (
	CookieAccessToken  = "auth_access_token"
	CookieRefreshToken = "auth_refresh_token"
)

// HandlerConfig carries the server-side bridge settings.
type HandlerConfig struct {
	CookieDomain string        `env:"SYNC_BRIDGE_COOKIE_DOMAIN"`
	CookieSecure bool          `env:"SYNC_BRIDGE_COOKIE_SECURE" envDefault:"true"`
	CookieMaxAge time.Duration `env:"SYNC_BRIDGE_COOKIE_MAX_AGE" envDefault:"168h"`
}

// Handler is the server half of the bridge: it stores the pushed session in
// HTTP-only cookies so subsequent requests carry it implicitly. All routes
// are idempotent; pushing or dropping twice converges on the same state.
type Handler struct {
	cfg HandlerConfig
	log *slog.Logger
}

// NewHandler creates the bridge handler.
func NewHandler(cfg HandlerConfig, log *slog.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{cfg: cfg, log: log}
}

// Routes mounts the bridge endpoints on a chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/session", h.putSession)
	r.Get("/session", h.getSession)
	r.Delete("/session", h.deleteSession)
	return r
}

func (h *Handler) putSession(w http.ResponseWriter, r *http.Request) {
	var payload tokenPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "malformed session payload", http.StatusBadRequest)
		return
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		http.Error(w, "missing tokens", http.StatusBadRequest)
		return
	}

	h.setCookie(w, CookieAccessToken, payload.AccessToken)
	h.setCookie(w, CookieRefreshToken, payload.RefreshToken)
	h.log.Debug("session stored", logger.Component("syncbridge"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	active := false
	if c, err := r.Cookie(CookieAccessToken); err == nil && c.Value != "" {
		active = true
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(statusPayload{Active: active})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	h.expireCookie(w, CookieAccessToken)
	h.expireCookie(w, CookieRefreshToken)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   int(h.cfg.CookieMaxAge.Seconds()),
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		Secure:   h.cfg.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
