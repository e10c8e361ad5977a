package session

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bissquit/apron-guard/internal/domain"
	"github.com/bissquit/apron-guard/internal/pkg/httputil"
	"github.com/bissquit/apron-guard/internal/tools"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
	{Error: ErrVersionConflict, Status: http.StatusConflict, Message: "session was modified concurrently, retry"},
	{Error: ErrActionLogRewrite, Status: http.StatusConflict, Message: "action log is append-only"},
	{Error: ErrActionNotAllowed, Status: http.StatusBadRequest},
	{Error: tools.ErrUnknownKind, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for incident sessions.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new session handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: httputil.NewValidator(),
	}
}

// RegisterRoutes registers session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/{id}", h.GetSession)
		r.Delete("/{id}", h.DeleteSession)
		r.Patch("/{id}/incident", h.UpdateIncident)
		r.Post("/{id}/actions", h.RecordAction)
		r.Get("/{id}/action-log", h.GetActionLog)
		r.Post("/{id}/tools/{kind}", h.ExecuteTool)
	})
}

// IncidentRequest carries incident fields reported by the operator.
// Omitted fields stay unknown.
type IncidentRequest struct {
	Position     *string    `json:"position" validate:"omitempty,min=1,max=128"`
	Substance    *string    `json:"substance" validate:"omitempty,oneof=fuel hydraulic oil other"`
	Continuous   *bool      `json:"continuous"`
	PowerState   *string    `json:"power_state" validate:"omitempty,oneof=running apu off"`
	Size         *string    `json:"size" validate:"omitempty,oneof=small medium large"`
	Category     *string    `json:"category" validate:"omitempty,oneof=fuel_leak oil_leak hydraulic_leak other"`
	IncidentTime *time.Time `json:"incident_time"`
	FlightNo     *string    `json:"flight_no" validate:"omitempty,min=2,max=16"`
	AircraftReg  *string    `json:"aircraft_reg" validate:"omitempty,min=2,max=16"`
}

func (req IncidentRequest) snapshot() domain.IncidentSnapshot {
	s := domain.IncidentSnapshot{
		Position:     req.Position,
		Continuous:   req.Continuous,
		IncidentTime: req.IncidentTime,
		FlightNo:     req.FlightNo,
		AircraftReg:  req.AircraftReg,
	}
	if req.Substance != nil {
		s.Substance = domain.Ptr(domain.Substance(*req.Substance))
	}
	if req.PowerState != nil {
		s.PowerState = domain.Ptr(domain.PowerState(*req.PowerState))
	}
	if req.Size != nil {
		s.Size = domain.Ptr(domain.LeakSize(*req.Size))
	}
	if req.Category != nil {
		s.Category = domain.Ptr(domain.Scenario(*req.Category))
	}
	return s
}

// RecordActionRequest represents an externally performed action.
type RecordActionRequest struct {
	Action  string `json:"action" validate:"required,oneof=notify_fire_department notify_atc notify_airline confirm_cleanup"`
	Outcome string `json:"outcome" validate:"omitempty,oneof=success failure"`
	Target  string `json:"target" validate:"max=256"`
	Detail  string `json:"detail" validate:"max=1024"`
}

// ToolRequest holds explicit tool parameters.
type ToolRequest struct {
	TargetPhase   string     `json:"target_phase" validate:"omitempty,oneof=INIT P1_INFO_COLLECTION P2_RISK_ASSESSMENT P3_IMPACT_ANALYSIS P4_NOTIFICATION P5_MONITORING COMPLETED"`
	Position      string     `json:"position" validate:"max=128"`
	WindowStart   *time.Time `json:"window_start"`
	WindowMinutes int        `json:"window_minutes" validate:"gte=0,lte=1440"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req IncidentRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	sess, err := h.service.Create(r.Context(), req.snapshot())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sess)
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sess)
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateIncident handles PATCH /sessions/{id}/incident.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	var req IncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sess, err := h.service.UpdateIncident(r.Context(), chi.URLParam(r, "id"), req.snapshot())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, sess)
}

// RecordAction handles POST /sessions/{id}/actions.
func (h *Handler) RecordAction(w http.ResponseWriter, r *http.Request) {
	var req RecordActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	sess, err := h.service.RecordAction(r.Context(), chi.URLParam(r, "id"), ActionInput{
		Action:  req.Action,
		Outcome: domain.Outcome(req.Outcome),
		Target:  req.Target,
		Detail:  req.Detail,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, sess)
}

// GetActionLog handles GET /sessions/{id}/action-log.
func (h *Handler) GetActionLog(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ActionLog(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, entries)
}

// ExecuteTool handles POST /sessions/{id}/tools/{kind}.
func (h *Handler) ExecuteTool(w http.ResponseWriter, r *http.Request) {
	kind, err := tools.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	var req ToolRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}

	result, err := h.service.ExecuteTool(r.Context(), chi.URLParam(r, "id"), kind, tools.Params{
		TargetPhase:   domain.Phase(req.TargetPhase),
		Position:      req.Position,
		WindowStart:   req.WindowStart,
		WindowMinutes: req.WindowMinutes,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, result)
}

// decodeOptional decodes and validates a body that may be empty.
func (h *Handler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httputil.ValidationError(w, err)
		return false
	}
	return true
}
