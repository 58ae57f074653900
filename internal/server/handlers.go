package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/songmatch/songmatch/internal/pairing"
	"github.com/songmatch/songmatch/internal/shared"
)

// PairingHandler adapts the pairing flows to the HTTP surface. All JSON
// bodies are produced here; the coordinator knows nothing about HTTP.
type PairingHandler struct {
	coordinator *pairing.Coordinator
	logger      *log.Logger
}

// NewPairingHandler creates the handler set for the pairing routes.
func NewPairingHandler(c *pairing.Coordinator, logger *log.Logger) *PairingHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PairingHandler{coordinator: c, logger: logger}
}

// Register wires every pairing route into the router.
func (h *PairingHandler) Register(r Router) {
	r.Handle(http.MethodPost, "/session", http.HandlerFunc(h.CreateSession))
	r.Handle(http.MethodGet, "/join/{id}", http.HandlerFunc(h.Join))
	r.Handle(http.MethodGet, "/auth/start", http.HandlerFunc(h.StartAuth))
	r.Handle(http.MethodGet, "/auth/callback", http.HandlerFunc(h.Callback))
	r.Handle(http.MethodGet, "/session/{id}/status", http.HandlerFunc(h.Status))
	r.Handle(http.MethodGet, "/session/{id}/common", http.HandlerFunc(h.Common))
}

// CreateSession handles POST /session.
func (h *PairingHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	created, err := h.coordinator.CreateSession(r.Context())
	if err != nil {
		h.fail(w, err, "Session error")
		return
	}
	respondJSON(w, h.logger, http.StatusOK, created)
}

// Join handles GET /join/{id}: the guest's entry point, redirecting into the
// initiation flow.
func (h *PairingHandler) Join(w http.ResponseWriter, r *http.Request) {
	target, err := h.coordinator.JoinRedirect(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "Join error")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// StartAuth handles GET /auth/start?session&who.
func (h *PairingHandler) StartAuth(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target, err := h.coordinator.StartAuth(r.Context(), q.Get("session"), q.Get("who"))
	if err != nil {
		h.fail(w, err, "Auth error")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Callback handles GET /auth/callback?code&state: the upstream redirect that
// completes one party's flow.
func (h *PairingHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		http.Error(w, "Missing code/state", http.StatusBadRequest)
		return
	}

	target, err := h.coordinator.CompleteAuth(r.Context(), code, state)
	if err != nil {
		if isValidation(err) {
			http.Error(w, "Bad params", http.StatusBadRequest)
			return
		}
		h.logger.Error("callback failed", "error", err)
		http.Error(w, "Callback error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Status handles GET /session/{id}/status, the cheap polling endpoint.
func (h *PairingHandler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.coordinator.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "Status error")
		return
	}
	if report == nil {
		respondJSON(w, h.logger, http.StatusNotFound, map[string]any{"ok": false})
		return
	}
	respondJSON(w, h.logger, http.StatusOK, report)
}

// Common handles GET /session/{id}/common, returning the stored result or
// an explicit not-ready response.
func (h *PairingHandler) Common(w http.ResponseWriter, r *http.Request) {
	common, err := h.coordinator.Common(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, err, "Result error")
		return
	}
	if common == nil {
		respondJSON(w, h.logger, http.StatusNotFound, map[string]any{"ok": false, "message": "Not ready"})
		return
	}
	respondJSON(w, h.logger, http.StatusOK, map[string]any{
		"ok":    true,
		"ids":   common.IDs,
		"names": common.Names,
	})
}

// fail maps coordinator errors onto the response taxonomy: validation 400,
// unknown session 404, everything else logged and reduced to a generic 500.
func (h *PairingHandler) fail(w http.ResponseWriter, err error, generic string) {
	switch {
	case isValidation(err):
		http.Error(w, "Bad params", http.StatusBadRequest)
	case errors.Is(err, shared.ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	default:
		h.logger.Error("request failed", "error", err)
		http.Error(w, generic, http.StatusInternalServerError)
	}
}

func isValidation(err error) bool {
	return errors.Is(err, shared.ErrInvalidInput) || errors.Is(err, shared.ErrInvalidRole)
}

// respondJSON writes a JSON body with the given status.
func respondJSON(w http.ResponseWriter, logger *log.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}
