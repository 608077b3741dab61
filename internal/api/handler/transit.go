package handler

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/api/models"
	"github.com/nextstop/nextstop/internal/api/response"
	"github.com/nextstop/nextstop/internal/livery"
	"github.com/nextstop/nextstop/internal/pattern"
	"github.com/nextstop/nextstop/internal/transit"
)

// maxDeparturesPerRoute bounds the maxResults query parameter.
const maxDeparturesPerRoute = 50

// TransitHandler handles departures, patterns, search and disruptions.
type TransitHandler struct {
	transit *transit.Service
	logger  zerolog.Logger
	now     func() time.Time
}

// NewTransitHandler creates a new TransitHandler.
func NewTransitHandler(transitService *transit.Service, logger zerolog.Logger) *TransitHandler {
	return &TransitHandler{
		transit: transitService,
		logger:  logger,
		now:     time.Now,
	}
}

// Departures handles GET /v1/stops/{stopId}/departures.
func (h *TransitHandler) Departures(w http.ResponseWriter, r *http.Request) {
	var fieldErrors []models.FieldError

	stopID, err := strconv.Atoi(chi.URLParam(r, "stopId"))
	if err != nil || stopID <= 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "stopId", Message: "must be a positive integer", Code: "INVALID"})
	}
	mode, fieldErrors := parseMode(r, fieldErrors)

	opts := transit.DeparturesOptions{Platforms: queryList(r, "platform")}
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDeparturesPerRoute {
			fieldErrors = append(fieldErrors, models.FieldError{
				Field:   "maxResults",
				Message: "must be between 1 and " + strconv.Itoa(maxDeparturesPerRoute),
				Code:    "OUT_OF_RANGE",
			})
		}
		opts.MaxResults = n
	}

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	resp, err := h.transit.Departures(r.Context(), mode, stopID, opts)
	if err != nil {
		h.writeTransitError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, h.departuresResponse(resp, mode, stopID))
}

func (h *TransitHandler) departuresResponse(resp *transit.Departures, mode transit.RouteType, stopID int) models.DeparturesResponse {
	now := h.now()

	stop, ok := resp.Stops[stopID]
	if !ok {
		stop = transit.Stop{ID: stopID}
	}

	deps := append([]transit.Departure(nil), resp.Departures...)
	sort.SliceStable(deps, func(i, j int) bool {
		return deps[i].EstimatedOrScheduled().Before(deps[j].EstimatedOrScheduled())
	})

	out := models.DeparturesResponse{
		Stop:       toStop(stop),
		Mode:       mode.String(),
		Departures: make([]models.Departure, 0, len(deps)),
		FetchedAt:  models.NewTimestamp(resp.FetchedAt),
	}

	referenced := make(map[int64]bool)
	for i := range deps {
		d := &deps[i]
		route := resp.Routes[d.RouteID]
		l := livery.For(mode, d.RouteID)

		item := models.Departure{
			RunRef:        d.RunRef,
			RouteID:       d.RouteID,
			RouteName:     route.Name,
			RouteNumber:   route.Number,
			Platform:      d.Platform,
			ScheduledAt:   models.Timestamp(d.Scheduled),
			Timing:        toTiming(d, mode, now),
			Colour:        l.Colour,
			LineGroup:     l.Group,
			DisruptionIDs: d.DisruptionIDs,
		}
		if d.Estimated != nil {
			item.EstimatedAt = models.NewTimestamp(*d.Estimated)
		}
		if dir, ok := resp.Directions[d.DirectionID]; ok {
			item.Direction = dir.Name
		}
		if run, ok := resp.Run(d.RunRef); ok {
			item.Destination = run.DestinationName
			item.Express = run.IsExpress()
			item.Cancelled = run.IsCancelled()
			item.Vehicle = toVehicle(run, mode)
		}
		for _, id := range d.DisruptionIDs {
			referenced[id] = true
		}
		out.Departures = append(out.Departures, item)
	}

	for id := range referenced {
		if dis, ok := resp.Disruptions[id]; ok && dis.IsActive(now) {
			out.Disruptions = append(out.Disruptions, toDisruption(dis))
		}
	}
	sort.Slice(out.Disruptions, func(i, j int) bool { return out.Disruptions[i].ID < out.Disruptions[j].ID })

	return out
}

// Pattern handles GET /v1/runs/{runRef}/pattern - a one-shot pattern view.
func (h *TransitHandler) Pattern(w http.ResponseWriter, r *http.Request) {
	runRef := strings.TrimSpace(chi.URLParam(r, "runRef"))

	var fieldErrors []models.FieldError
	if runRef == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "runRef", Message: "is required", Code: "REQUIRED"})
	}
	mode, fieldErrors := parseMode(r, fieldErrors)
	opts, fieldErrors := parseLayout(r, fieldErrors)

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	resp, err := h.transit.Pattern(r.Context(), runRef, mode)
	if err != nil {
		h.writeTransitError(w, r, err)
		return
	}

	now := h.now()
	snap := pattern.NewSnapshot(resp, runRef, now)
	response.JSON(w, r, http.StatusOK, toPattern(snap, mode, opts, now))
}

// Search handles GET /v1/search?q=&modes=.
func (h *TransitHandler) Search(w http.ResponseWriter, r *http.Request) {
	var fieldErrors []models.FieldError

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "q", Message: "is required", Code: "REQUIRED"})
	}

	var modes []transit.RouteType
	for _, raw := range queryList(r, "modes") {
		rt, err := transit.ParseRouteType(raw)
		if err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "modes", Message: "unknown mode " + strconv.Quote(raw), Code: "INVALID"})
			continue
		}
		modes = append(modes, rt)
	}

	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "validation failed", fieldErrors)
		return
	}

	result, err := h.transit.Search(r.Context(), term, modes)
	if err != nil {
		h.writeTransitError(w, r, err)
		return
	}

	out := models.SearchResponse{
		Term:   term,
		Stops:  make([]models.Stop, 0, len(result.Stops)),
		Routes: make([]models.Route, 0, len(result.Routes)),
	}
	for _, s := range result.Stops {
		out.Stops = append(out.Stops, toStop(s))
	}
	for _, rt := range result.Routes {
		out.Routes = append(out.Routes, models.Route{
			ID:     rt.ID,
			Name:   rt.Name,
			Number: rt.Number,
			Mode:   rt.Type.String(),
			Colour: livery.For(rt.Type, rt.ID).Colour,
		})
	}
	response.JSON(w, r, http.StatusOK, out)
}

// Disruptions handles GET /v1/disruptions?routeId= - disruptions in effect now.
func (h *TransitHandler) Disruptions(w http.ResponseWriter, r *http.Request) {
	routeID := 0
	if raw := r.URL.Query().Get("routeId"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, r, "validation failed", []models.FieldError{
				{Field: "routeId", Message: "must be a positive integer", Code: "INVALID"},
			})
			return
		}
		routeID = n
	}

	active, err := h.transit.ActiveDisruptions(r.Context(), routeID)
	if err != nil {
		h.writeTransitError(w, r, err)
		return
	}

	out := models.DisruptionsResponse{Disruptions: make([]models.Disruption, 0, len(active))}
	for _, d := range active {
		out.Disruptions = append(out.Disruptions, toDisruption(d))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// writeTransitError maps transit errors to problem responses. Malformed is
// checked before unavailable because the service wraps both.
func (h *TransitHandler) writeTransitError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, transit.ErrNotFound):
		response.NotFound(w, r, "not found upstream")
	case errors.Is(err, transit.ErrInvalidRequest), errors.Is(err, transit.ErrUnknownRouteType):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, transit.ErrMalformedResponse):
		h.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("malformed upstream response")
		response.BadGateway(w, r, "the timetable provider returned an unreadable response")
	case errors.Is(err, transit.ErrProviderUnavailable):
		response.ServiceUnavailable(w, r, "the timetable provider is unavailable")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("transit request failed")
		response.InternalError(w, r, "internal server error")
	}
}

// parseMode reads the mode query parameter, defaulting to train.
func parseMode(r *http.Request, errs []models.FieldError) (transit.RouteType, []models.FieldError) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		return transit.RouteTypeTrain, errs
	}
	rt, err := transit.ParseRouteType(raw)
	if err != nil {
		errs = append(errs, models.FieldError{Field: "mode", Message: "unknown mode " + strconv.Quote(raw), Code: "INVALID"})
	}
	return rt, errs
}

// parseLayout reads the expanded and fromStop query parameters.
func parseLayout(r *http.Request, errs []models.FieldError) (pattern.LayoutOptions, []models.FieldError) {
	var opts pattern.LayoutOptions
	q := r.URL.Query()

	if raw := q.Get("expanded"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, models.FieldError{Field: "expanded", Message: "must be a boolean", Code: "INVALID"})
		}
		opts.Expanded = b
	}
	if raw := q.Get("fromStop"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			errs = append(errs, models.FieldError{Field: "fromStop", Message: "must be a stop id", Code: "INVALID"})
		}
		opts.FromStop = n
	}
	return opts, errs
}

// queryList accepts both repeated parameters and comma-separated values.
func queryList(r *http.Request, name string) []string {
	var out []string
	for _, v := range r.URL.Query()[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
