package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/models"
	"github.com/nextstop/nextstop/internal/api/response"
	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/settings"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/watch"
)

// WatchHandler handles refreshing pattern sessions.
type WatchHandler struct {
	manager  *watch.Manager
	settings *settings.Service
	logger   zerolog.Logger
	now      func() time.Time
}

// NewWatchHandler creates a new WatchHandler. settingsService may be nil.
func NewWatchHandler(manager *watch.Manager, settingsService *settings.Service, logger zerolog.Logger) *WatchHandler {
	return &WatchHandler{
		manager:  manager,
		settings: settingsService,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateWatch handles POST /v1/watches - open a pattern screen.
func (h *WatchHandler) CreateWatch(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	var req models.CreateWatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if req.RunRef == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "runRef", Message: "is required", Code: "REQUIRED"})
	}
	mode := transit.RouteTypeTrain
	switch {
	case req.Mode != "":
		rt, err := transit.ParseRouteType(req.Mode)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "mode", Message: "unknown mode " + strconv.Quote(req.Mode), Code: "INVALID"})
		}
		mode = rt
	case h.settings != nil:
		mode = h.settings.DefaultMode(r.Context(), deviceID)
	}
	if req.FromStop < 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "fromStop", Message: "must be a stop id", Code: "INVALID"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	session, err := h.manager.Open(deviceID, watch.OpenRequest{
		RunRef:    req.RunRef,
		RouteType: mode,
		FromStop:  req.FromStop,
		Hidden:    req.Hidden,
	})
	if err != nil {
		h.writeWatchError(w, r, err)
		return
	}

	response.Created(w, r, "/v1/watches/"+session.ID, h.watchResponse(session, h.expandedDefault(r, deviceID)))
}

// GetWatch handles GET /v1/watches/{watchId}?expanded= - the latest view.
func (h *WatchHandler) GetWatch(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	expanded := h.expandedDefault(r, deviceID)
	if raw := r.URL.Query().Get("expanded"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "expanded", Message: "must be a boolean", Code: "INVALID"},
			})
			return
		}
		expanded = b
	}

	session, err := h.manager.Get(deviceID, chi.URLParam(r, "watchId"))
	if err != nil {
		h.writeWatchError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.watchResponse(session, expanded))
}

// SetVisibility handles PUT /v1/watches/{watchId}/visibility.
func (h *WatchHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	var req models.VisibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if req.Visible == nil {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "visible", Message: "is required", Code: "REQUIRED"},
		})
		return
	}

	session, err := h.manager.SetVisible(deviceID, chi.URLParam(r, "watchId"), *req.Visible)
	if err != nil {
		h.writeWatchError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.watchResponse(session, h.expandedDefault(r, deviceID)))
}

// DeleteWatch handles DELETE /v1/watches/{watchId} - the screen was dismissed.
func (h *WatchHandler) DeleteWatch(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	if err := h.manager.Close(deviceID, chi.URLParam(r, "watchId")); err != nil {
		h.writeWatchError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

func (h *WatchHandler) expandedDefault(r *http.Request, deviceID string) bool {
	if h.settings == nil {
		return false
	}
	return h.settings.Bool(r.Context(), deviceID, settings.KeyExpandedPattern, false)
}

func (h *WatchHandler) watchResponse(session *watch.Session, expanded bool) models.Watch {
	view := session.View(expanded)

	out := models.Watch{
		ID:        session.ID,
		RunRef:    session.RunRef,
		Mode:      session.RouteType.String(),
		FromStop:  session.FromStop,
		State:     string(view.State),
		Visible:   session.Visible(),
		CreatedAt: models.Timestamp(session.CreatedAt),
		Stats: models.WatchStats{
			Fetches:           view.Stats.Fetches,
			Failures:          view.Stats.Failures,
			TransportFailures: view.Stats.TransportFailures,
			DecodeFailures:    view.Stats.DecodeFailures,
			LastError:         view.Stats.LastError,
			LastFailureAt:     models.NewTimestamp(view.Stats.LastFailureAt),
			UpdatedAt:         models.NewTimestamp(view.Stats.UpdatedAt),
		},
	}
	if view.Snapshot != nil {
		opts := pattern.LayoutOptions{Expanded: expanded, FromStop: session.FromStop}
		out.Pattern = toPattern(view.Snapshot, session.RouteType, opts, h.now())
	}
	return out
}

func (h *WatchHandler) writeWatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, watch.ErrSessionNotFound):
		response.NotFound(w, r, "watch not found")
	case errors.Is(err, watch.ErrInvalidRequest):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, watch.ErrTooManySessions):
		response.TooManyRequests(w, r, err.Error())
	case errors.Is(err, watch.ErrShutdown):
		response.ServiceUnavailable(w, r, "shutting down")
	default:
		h.logger.Error().Err(err).Msg("watch request failed")
		response.InternalError(w, r, "internal server error")
	}
}
