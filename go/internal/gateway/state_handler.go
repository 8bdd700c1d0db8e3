package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/timersync/go/internal/controller"
	"github.com/mcdev12/timersync/go/internal/session"
	"github.com/mcdev12/timersync/go/internal/timers"
)

const maxRequestBody = 16 * 1024

// StateController is the part of the controller the HTTP API drives.
type StateController interface {
	Dispatch(ctx context.Context, cmd controller.Command) (controller.State, error)
	State(ctx context.Context) (controller.State, error)
	GeneratePresets(ctx context.Context, prompt string) (controller.State, error)
}

type addTimerRequest struct {
	Label           string `json:"label"`
	DurationSeconds int    `json:"durationSeconds"`
}

type globalRequest struct {
	Action string `json:"action"`
}

type roleRequest struct {
	Role string `json:"role"`
}

type connectRequest struct {
	Target string `json:"target"`
}

type presetsRequest struct {
	Prompt string `json:"prompt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// StateHandler serves the JSON control API over a controller.
type StateHandler struct {
	controller StateController
}

// NewStateHandler creates a new state handler
func NewStateHandler(ctrl StateController) *StateHandler {
	return &StateHandler{controller: ctrl}
}

// HandleGetState handles GET /api/state
func (h *StateHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.State(r.Context())
	h.respond(w, st, err)
}

// HandleAddTimer handles POST /api/timers
func (h *StateHandler) HandleAddTimer(w http.ResponseWriter, r *http.Request) {
	var req addTimerRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	st, err := h.controller.Dispatch(r.Context(), controller.AddTimer{
		Label:           req.Label,
		DurationSeconds: req.DurationSeconds,
	})
	h.respond(w, st, err)
}

// HandleToggleTimer handles POST /api/timers/{id}/toggle
func (h *StateHandler) HandleToggleTimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.Dispatch(r.Context(), controller.ToggleTimer{ID: r.PathValue("id")})
	h.respond(w, st, err)
}

// HandleResetTimer handles POST /api/timers/{id}/reset
func (h *StateHandler) HandleResetTimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.Dispatch(r.Context(), controller.ResetTimer{ID: r.PathValue("id")})
	h.respond(w, st, err)
}

// HandleDeleteTimer handles DELETE /api/timers/{id}
func (h *StateHandler) HandleDeleteTimer(w http.ResponseWriter, r *http.Request) {
	st, err := h.controller.Dispatch(r.Context(), controller.DeleteTimer{ID: r.PathValue("id")})
	h.respond(w, st, err)
}

// HandleGlobal handles POST /api/timers/global
func (h *StateHandler) HandleGlobal(w http.ResponseWriter, r *http.Request) {
	var req globalRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	action, err := timers.ParseGlobalAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	st, err := h.controller.Dispatch(r.Context(), controller.GlobalControl{Action: action})
	h.respond(w, st, err)
}

// HandleSetRole handles POST /api/role
func (h *StateHandler) HandleSetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	role, err := session.ParseRole(req.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	st, err := h.controller.Dispatch(r.Context(), controller.SetRole{Role: role})
	h.respond(w, st, err)
}

// HandleConnect handles POST /api/connect
func (h *StateHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	st, err := h.controller.Dispatch(r.Context(), controller.Connect{Target: req.Target})
	h.respond(w, st, err)
}

// HandleGeneratePresets handles POST /api/presets
func (h *StateHandler) HandleGeneratePresets(w http.ResponseWriter, r *http.Request) {
	var req presetsRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	st, err := h.controller.GeneratePresets(r.Context(), req.Prompt)
	h.respond(w, st, err)
}

// RegisterStateRoutes registers the control API routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", h.HandleGetState)
	mux.HandleFunc("POST /api/timers", h.HandleAddTimer)
	mux.HandleFunc("POST /api/timers/global", h.HandleGlobal)
	mux.HandleFunc("POST /api/timers/{id}/toggle", h.HandleToggleTimer)
	mux.HandleFunc("POST /api/timers/{id}/reset", h.HandleResetTimer)
	mux.HandleFunc("DELETE /api/timers/{id}", h.HandleDeleteTimer)
	mux.HandleFunc("POST /api/role", h.HandleSetRole)
	mux.HandleFunc("POST /api/connect", h.HandleConnect)
	mux.HandleFunc("POST /api/presets", h.HandleGeneratePresets)
}

func (h *StateHandler) respond(w http.ResponseWriter, st controller.State, err error) {
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("control request failed")
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, timers.ErrInvalidDuration),
		errors.Is(err, timers.ErrCapacity),
		errors.Is(err, controller.ErrNoTarget):
		return http.StatusBadRequest
	case errors.Is(err, controller.ErrReadOnly),
		errors.Is(err, controller.ErrNotSlave),
		errors.Is(err, controller.ErrLinkActive):
		return http.StatusConflict
	case errors.Is(err, controller.ErrTimerNotFound):
		return http.StatusNotFound
	case errors.Is(err, controller.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
