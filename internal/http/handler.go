package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fleet-safety-service/internal/http/middleware"
	"fleet-safety-service/internal/model"
	"fleet-safety-service/internal/repository"
	"fleet-safety-service/internal/service"
)

type Handler struct {
	orchestrator *service.OrchestratorService
	telemetry    *service.TelemetryService
	log          zerolog.Logger
}

func NewHandler(
	orchestrator *service.OrchestratorService,
	telemetry *service.TelemetryService,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		telemetry:    telemetry,
		log:          log,
	}
}

func (h *Handler) planRoute(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	var req struct {
		Origin      string `json:"origin" binding:"required"`
		Destination string `json:"destination" binding:"required"`
		VehicleID   string `json:"vehicle_id" binding:"required"`
		DriverID    string `json:"driver_id" binding:"required"`
		DepartureAt string `json:"departure_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	vehicleID, err := uuid.Parse(strings.TrimSpace(req.VehicleID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid vehicle_id"))
		return
	}
	driverID, err := uuid.Parse(strings.TrimSpace(req.DriverID))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid driver_id"))
		return
	}

	departureAt := time.Now()
	if req.DepartureAt != "" {
		departureAt, err = time.Parse(time.RFC3339, req.DepartureAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid departure_at, expected RFC3339"))
			return
		}
	}

	result, err := h.orchestrator.PlanRoute(c.Request.Context(), principal, service.RoutePlanRequest{
		Origin:      req.Origin,
		Destination: req.Destination,
		VehicleID:   vehicleID,
		DriverID:    driverID,
		DepartureAt: departureAt,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(result))
}

func (h *Handler) activateTrip(c *gin.Context) {
	h.tripLifecycle(c, h.orchestrator.ActivateTrip)
}

func (h *Handler) completeTrip(c *gin.Context) {
	h.tripLifecycle(c, h.orchestrator.CompleteTrip)
}

func (h *Handler) cancelTrip(c *gin.Context) {
	h.tripLifecycle(c, h.orchestrator.CancelTrip)
}

func (h *Handler) tripLifecycle(c *gin.Context, op func(ctx context.Context, principal model.Principal, tripID uuid.UUID) (*model.Trip, error)) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	trip, err := op(c.Request.Context(), principal, tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(trip))
}

func (h *Handler) getTrip(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	tripID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid trip id"))
		return
	}

	record, err := h.orchestrator.TripStatus(c.Request.Context(), tripID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(record))
}

func (h *Handler) dashboard(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	summary, err := h.orchestrator.Dashboard(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(summary))
}

func (h *Handler) analytics(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	req, err := parseAnalyticsQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	snapshot, err := h.orchestrator.BuildAnalytics(c.Request.Context(), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(snapshot))
}

func (h *Handler) acknowledgeAlert(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	alertID, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("invalid alert id"))
		return
	}

	alert, err := h.orchestrator.AcknowledgeAlert(c.Request.Context(), principal, alertID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(alert))
}

func (h *Handler) listAlerts(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	filter, err := parseAlertQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	alerts, err := h.orchestrator.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(gin.H{"items": alerts}))
}

type telemetryPayload struct {
	VehicleID      string   `json:"vehicle_id" binding:"required"`
	Timestamp      string   `json:"timestamp" binding:"required"`
	Type           string   `json:"type" binding:"required"`
	Magnitude      float64  `json:"magnitude"`
	Lat            *float64 `json:"lat"`
	Lng            *float64 `json:"lng"`
	SpeedMph       *float64 `json:"speed_mph"`
	PostedLimitMph *float64 `json:"posted_limit_mph"`
	EnergyLevelPct *float64 `json:"energy_level_pct"`
}

func (h *Handler) ingestTelemetry(c *gin.Context) {
	if _, ok := middleware.MustPrincipal(c); !ok {
		c.JSON(http.StatusUnauthorized, errorResponse("principal missing"))
		return
	}

	var req struct {
		Events []telemetryPayload `json:"events" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	events := make([]model.TelemetryEvent, 0, len(req.Events))
	for _, payload := range req.Events {
		vehicleID, err := uuid.Parse(strings.TrimSpace(payload.VehicleID))
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid vehicle_id"))
			return
		}
		ts, err := time.Parse(time.RFC3339, payload.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse("invalid timestamp, expected RFC3339"))
			return
		}
		events = append(events, model.TelemetryEvent{
			VehicleID:      vehicleID,
			Timestamp:      ts,
			Type:           model.TelemetryEventType(strings.ToUpper(strings.TrimSpace(payload.Type))),
			Magnitude:      payload.Magnitude,
			Lat:            payload.Lat,
			Lng:            payload.Lng,
			SpeedMph:       payload.SpeedMph,
			PostedLimitMph: payload.PostedLimitMph,
			EnergyLevelPct: payload.EnergyLevelPct,
		})
	}

	accepted := h.telemetry.Ingest(events)

	c.JSON(http.StatusAccepted, successResponse(gin.H{
		"accepted": accepted,
		"received": len(events),
	}))
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInvalidStatus):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNoFeasibleRoute):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInsufficientData):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, service.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func parseAnalyticsQuery(c *gin.Context) (service.AnalyticsRequest, error) {
	var req service.AnalyticsRequest

	if from := strings.TrimSpace(c.Query("window_start")); from != "" {
		ts, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return req, err
		}
		req.WindowStart = ts
	}
	if to := strings.TrimSpace(c.Query("window_end")); to != "" {
		ts, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return req, err
		}
		req.WindowEnd = ts
	}
	if vehicleID := strings.TrimSpace(c.Query("vehicle_id")); vehicleID != "" {
		id, err := uuid.Parse(vehicleID)
		if err != nil {
			return req, err
		}
		req.VehicleID = &id
	}
	if driverID := strings.TrimSpace(c.Query("driver_id")); driverID != "" {
		id, err := uuid.Parse(driverID)
		if err != nil {
			return req, err
		}
		req.DriverID = &id
	}

	return req, nil
}

func parseAlertQuery(c *gin.Context) (repository.AlertFilter, error) {
	var filter repository.AlertFilter

	if subjectType := strings.TrimSpace(c.Query("subject_type")); subjectType != "" {
		value := model.AlertSubject(strings.ToUpper(subjectType))
		filter.SubjectType = &value
	}
	if subjectID := strings.TrimSpace(c.Query("subject_id")); subjectID != "" {
		id, err := uuid.Parse(subjectID)
		if err != nil {
			return filter, err
		}
		filter.SubjectID = &id
	}
	if severityParam := c.Query("severity"); severityParam != "" {
		for _, val := range splitCSV(severityParam) {
			filter.Severities = append(filter.Severities, model.AlertSeverity(strings.ToUpper(val)))
		}
	}
	if reasonParam := c.Query("reason"); reasonParam != "" {
		for _, val := range splitCSV(reasonParam) {
			filter.Reasons = append(filter.Reasons, model.AlertReason(strings.ToLower(val)))
		}
	}
	filter.Unacked = c.Query("unacked") == "true"
	if limit := strings.TrimSpace(c.Query("limit")); limit != "" {
		if v, err := strconv.Atoi(limit); err == nil {
			filter.Limit = v
		}
	}
	if offset := strings.TrimSpace(c.Query("offset")); offset != "" {
		if v, err := strconv.Atoi(offset); err == nil {
			filter.Offset = v
		}
	}

	return filter, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

type responseEnvelope struct {
	Data interface{} `json:"data"`
}

func successResponse(data interface{}) responseEnvelope {
	return responseEnvelope{Data: data}
}

func errorResponse(msg string) gin.H {
	return gin.H{"error": msg}
}
