package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"twin_service/internal/core"
	"twin_service/internal/domain/model"
	"twin_service/internal/infrastructure/twinclient"
)

// settleTimeout bounds GET /sessions/{id}?wait=true.
const settleTimeout = 30 * time.Second

type Handler struct {
	service  *core.Service
	sessions *SessionStore
	logger   *zap.Logger
}

func NewHandler(service *core.Service, sessions *SessionStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, sessions: sessions, logger: logger}
}

// NewRouter mounts the handler under /api with CORS, recovery and request
// logging.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := mux.NewRouter()
	r.Use(RecoveryMiddleware(h.logger))
	r.Use(LoggingMiddleware(h.logger))

	api := r.PathPrefix("/api").Subrouter()
	h.RegisterRoutes(api)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Origin", "X-Requested-With"},
		MaxAge:         86400,
	})
	return c.Handler(r)
}

func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/localities", h.Localities).Methods(http.MethodGet)

	r.HandleFunc("/sessions", h.CreateSession).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}", h.GetSession).Methods(http.MethodGet)
	r.HandleFunc("/sessions/{id}", h.DeleteSession).Methods(http.MethodDelete)
	r.HandleFunc("/sessions/{id}/locality", h.SelectLocality).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/actions", h.SetActions).Methods(http.MethodPatch)
	r.HandleFunc("/sessions/{id}/horizon", h.SetHorizon).Methods(http.MethodPut)
	r.HandleFunc("/sessions/{id}/chat", h.SendChat).Methods(http.MethodPost)
	r.HandleFunc("/sessions/{id}/chat", h.ChatHistory).Methods(http.MethodGet)
}

type CreateSessionRequest struct {
	Horizon *int               `json:"time_horizon_years,omitempty"`
	Actions *model.ActionPatch `json:"actions,omitempty"`
}

type CreateSessionResponse struct {
	ID       string        `json:"id"`
	Snapshot core.Snapshot `json:"snapshot"`
}

// SelectLocalityRequest names a city, optionally with its ancestors. A bare
// city is looked up in the hierarchy.
type SelectLocalityRequest struct {
	Country  string `json:"country,omitempty"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
	Locality string `json:"locality"`
}

type SetHorizonRequest struct {
	Years int `json:"years"`
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Reply    core.ChatMessage   `json:"reply"`
	Messages []core.ChatMessage `json:"messages"`
}

type SelectLocalityResponse struct {
	Path     model.Path    `json:"path"`
	Snapshot core.Snapshot `json:"snapshot"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.sessions.Len(),
	})
}

func (h *Handler) Localities(w http.ResponseWriter, r *http.Request) {
	localities, err := h.service.Localities(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, localities)
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var opts []core.Option
	if req.Horizon != nil {
		if *req.Horizon < core.MinHorizon || *req.Horizon > core.MaxHorizon {
			writeError(w, http.StatusBadRequest, core.ErrInvalidHorizon.Error())
			return
		}
		opts = append(opts, core.WithHorizon(*req.Horizon))
	}
	if req.Actions != nil {
		// Omitted levers keep their defaults.
		actions := req.Actions.Apply(model.DefaultActions())
		if err := actions.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts = append(opts, core.WithActions(actions))
	}

	sess := h.sessions.Create(opts...)
	writeJSON(w, http.StatusCreated, CreateSessionResponse{ID: sess.ID, Snapshot: sess.Orch.Snapshot()})
}

// GetSession returns the orchestrator state. With ?wait=true it blocks until
// the prediction is settled or the last fetch failed.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusOK, sess.Orch.Snapshot())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), settleTimeout)
	defer cancel()
	snap, err := sess.Orch.Wait(ctx, func(s core.Snapshot) bool {
		return s.Locality == "" || s.Settled() || s.Failed()
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Delete(mux.Vars(r)["id"]) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectLocality(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SelectLocalityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Locality == "" {
		writeError(w, http.StatusBadRequest, core.ErrNoLocality.Error())
		return
	}

	path, err := h.service.Resolve(r.Context(), model.Path{
		Country:  req.Country,
		State:    req.State,
		District: req.District,
		City:     req.Locality,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := sess.Orch.SelectLocality(path.City); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SelectLocalityResponse{Path: path, Snapshot: sess.Orch.Snapshot()})
}

func (h *Handler) SetActions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var patch model.ActionPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := sess.Orch.SetActions(patch); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Orch.Snapshot())
}

func (h *Handler) SetHorizon(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req SetHorizonRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := sess.Orch.SetHorizon(req.Years); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Orch.Snapshot())
}

func (h *Handler) SendChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	reply, err := sess.Chat.Send(r.Context(), req.Message, sess.Orch.ChatContext())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Reply: reply, Messages: sess.Chat.Messages()})
}

func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":      sess.Chat.Messages(),
		"input_enabled": sess.Chat.InputEnabled(),
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, ok := h.sessions.Get(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Session not found")
	}
	return sess, ok
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// errorStatus maps domain errors to HTTP status codes. Anything unrecognised
// is treated as an upstream failure.
func errorStatus(err error) int {
	var apiErr *twinclient.APIError
	switch {
	case errors.Is(err, core.ErrInvalidHorizon),
		errors.Is(err, core.ErrNoLocality),
		errors.Is(err, core.ErrEmptyMessage),
		errors.Is(err, model.ErrInvalidActions),
		errors.Is(err, model.ErrUnknownLocality):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrChatBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrClosed):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg, "code": status})
}
