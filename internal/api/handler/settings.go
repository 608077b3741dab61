package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/models"
	"github.com/nextstop/nextstop/internal/api/response"
	"github.com/nextstop/nextstop/internal/settings"
)

// DefaultKeepAlive is the interval between SSE keep-alive comments.
const DefaultKeepAlive = 25 * time.Second

// SettingsHandler handles preferences, their change stream and recents.
type SettingsHandler struct {
	settings  *settings.Service
	logger    zerolog.Logger
	keepAlive time.Duration
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settingsService *settings.Service, logger zerolog.Logger) *SettingsHandler {
	return &SettingsHandler{
		settings:  settingsService,
		logger:    logger,
		keepAlive: DefaultKeepAlive,
	}
}

// ListSettings handles GET /v1/me/settings.
func (h *SettingsHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	prefs, err := h.settings.List(r.Context(), deviceID)
	if err != nil {
		h.logger.Error().Err(err).Str("device_id", deviceID).Msg("listing settings failed")
		response.InternalError(w, r, "internal server error")
		return
	}

	out := models.SettingsResponse{Settings: make([]models.Setting, 0, len(prefs))}
	for _, p := range prefs {
		out.Settings = append(out.Settings, toSetting(p))
	}
	sort.Slice(out.Settings, func(i, j int) bool { return out.Settings[i].Key < out.Settings[j].Key })

	response.JSON(w, r, http.StatusOK, out)
}

// PutSetting handles PUT /v1/me/settings/{key}.
func (h *SettingsHandler) PutSetting(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	var req models.PutSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if len(req.Value) == 0 {
		response.BadRequest(w, r, "validation failed", []models.FieldError{
			{Field: "value", Message: "is required", Code: "REQUIRED"},
		})
		return
	}

	var value any
	if err := json.Unmarshal(req.Value, &value); err != nil {
		response.BadRequest(w, r, "invalid value", nil)
		return
	}

	pref, err := h.settings.Put(r.Context(), deviceID, chi.URLParam(r, "key"), value)
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toSetting(pref))
}

// DeleteSetting handles DELETE /v1/me/settings/{key} - revert to the default.
func (h *SettingsHandler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	if err := h.settings.Delete(r.Context(), deviceID, chi.URLParam(r, "key")); err != nil {
		h.writeSettingsError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

// Events handles GET /v1/me/settings/events - a server-sent event stream of
// the device's preference changes.
func (h *SettingsHandler) Events(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	flusher, ok := response.StartStream(w, r)
	if !ok {
		response.InternalError(w, r, "streaming unsupported")
		return
	}

	changes, cancel := h.settings.Subscribe(deviceID)
	defer cancel()

	if err := response.Comment(w, flusher, "subscribed"); err != nil {
		return
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			event := models.SettingChange{
				Kind:  string(change.Kind),
				Key:   change.Key,
				Value: change.Value,
				At:    models.Timestamp(change.At),
			}
			if err := response.Event(w, flusher, "change", event); err != nil {
				h.logger.Debug().Err(err).Str("device_id", deviceID).Msg("settings stream closed")
				return
			}
		case <-ticker.C:
			if err := response.Comment(w, flusher, "keep-alive"); err != nil {
				return
			}
		}
	}
}

// ListRecents handles GET /v1/me/recents/{list}.
func (h *SettingsHandler) ListRecents(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	list := chi.URLParam(r, "list")
	items, err := h.settings.Recents(r.Context(), deviceID, list)
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toRecents(list, items))
}

// PushRecent handles POST /v1/me/recents/{list}.
func (h *SettingsHandler) PushRecent(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	var req models.PushRecentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	list := chi.URLParam(r, "list")
	items, err := h.settings.PushRecent(r.Context(), deviceID, list, settings.RecentItem{
		Key:      req.Key,
		Title:    req.Title,
		Subtitle: req.Subtitle,
		Ref:      req.Ref,
	}, req.Capacity)
	if err != nil {
		h.writeSettingsError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, toRecents(list, items))
}

// ClearRecents handles DELETE /v1/me/recents/{list}.
func (h *SettingsHandler) ClearRecents(w http.ResponseWriter, r *http.Request) {
	deviceID := GetDeviceID(r.Context())
	if deviceID == "" {
		response.Unauthorized(w, r, "device not authenticated")
		return
	}

	if err := h.settings.ClearRecents(r.Context(), deviceID, chi.URLParam(r, "list")); err != nil {
		h.writeSettingsError(w, r, err)
		return
	}

	response.NoContent(w, r)
}

func (h *SettingsHandler) writeSettingsError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *settings.ValidationError
	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, r, "validation failed", validationErr.Errors)
	case errors.Is(err, settings.ErrPreferenceNotFound):
		response.NotFound(w, r, "setting not found")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("settings request failed")
		response.InternalError(w, r, "internal server error")
	}
}

func toSetting(p *settings.Preference) models.Setting {
	return models.Setting{
		Key:       p.Key,
		Value:     p.Value,
		Default:   p.UpdatedAt.IsZero(),
		UpdatedAt: models.NewTimestamp(p.UpdatedAt),
	}
}

func toRecents(list string, items []settings.RecentItem) models.RecentsResponse {
	out := models.RecentsResponse{List: list, Items: make([]models.RecentItem, 0, len(items))}
	for _, it := range items {
		out.Items = append(out.Items, models.RecentItem{
			Key:      it.Key,
			Title:    it.Title,
			Subtitle: it.Subtitle,
			Ref:      it.Ref,
			AddedAt:  models.Timestamp(it.AddedAt),
		})
	}
	return out
}
