// Package ptv is a client for the PTV Timetable API v3.
package ptv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/transit"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "ptv"

	// DefaultBaseURL is the timetable API host.
	DefaultBaseURL = "https://timetableapi.ptv.vic.gov.au"

	apiVersion = "/v3"
)

// ClientConfig holds configuration for the PTV client.
type ClientConfig struct {
	// DevID is the developer id issued by PTV (required).
	DevID string

	// APIKey is the shared signing key issued with DevID (required).
	APIKey string

	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// HTTPClient is the resilient client to use. Defaults are used if nil.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// ErrMissingCredentials is returned when the developer id or key is unset.
var ErrMissingCredentials = errors.New("PTV_DEV_ID and PTV_API_KEY must be set")

// ConfigFromEnv reads PTV_DEV_ID, PTV_API_KEY and PTV_BASE_URL.
func ConfigFromEnv() (ClientConfig, error) {
	cfg := ClientConfig{
		DevID:   os.Getenv("PTV_DEV_ID"),
		APIKey:  os.Getenv("PTV_API_KEY"),
		BaseURL: os.Getenv("PTV_BASE_URL"),
	}
	if cfg.DevID == "" || cfg.APIKey == "" {
		return ClientConfig{}, ErrMissingCredentials
	}
	return cfg, nil
}

// Client is a PTV Timetable API client.
type Client struct {
	signer     *Signer
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new PTV client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		signer:     NewSigner(cfg.DevID, cfg.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Departures fetches upcoming departures for a stop, expanded with stops,
// routes, runs, directions and disruptions.
func (c *Client) Departures(ctx context.Context, routeType transit.RouteType, stopID int, opts transit.DeparturesOptions) (*transit.Departures, error) {
	path := fmt.Sprintf("%s/departures/route_type/%d/stop/%d", apiVersion, int(routeType), stopID)

	q := url.Values{}
	q.Set("expand", "All")
	q.Set("include_skipped_stops", "true")
	if opts.MaxResults > 0 {
		q.Set("max_results", strconv.Itoa(opts.MaxResults))
	}
	for _, p := range opts.Platforms {
		q.Add("platform_numbers", p)
	}

	var resp departuresResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	return resp.toDomain()
}

// Pattern fetches the full stopping pattern of a run.
func (c *Client) Pattern(ctx context.Context, runRef string, routeType transit.RouteType) (*transit.Departures, error) {
	path := fmt.Sprintf("%s/pattern/run/%s/route_type/%d", apiVersion, url.PathEscape(runRef), int(routeType))

	q := url.Values{}
	q.Set("expand", "All")
	q.Set("include_skipped_stops", "true")

	var resp departuresResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	return resp.toDomain()
}

// Search finds stops and routes matching term, optionally limited to modes.
func (c *Client) Search(ctx context.Context, term string, routeTypes []transit.RouteType) (*transit.SearchResult, error) {
	path := fmt.Sprintf("%s/search/%s", apiVersion, url.PathEscape(term))

	q := url.Values{}
	q.Set("include_outlets", "false")
	for _, rt := range routeTypes {
		q.Add("route_types", strconv.Itoa(int(rt)))
	}

	var resp searchResponse
	if err := c.get(ctx, path, q, &resp); err != nil {
		return nil, err
	}

	result := &transit.SearchResult{
		Stops:  make([]transit.Stop, 0, len(resp.Stops)),
		Routes: make([]transit.Route, 0, len(resp.Routes)),
	}
	for i := range resp.Stops {
		result.Stops = append(result.Stops, resp.Stops[i].toDomain())
	}
	for i := range resp.Routes {
		result.Routes = append(result.Routes, resp.Routes[i].toDomain())
	}

	return result, nil
}

// Disruptions fetches all current disruptions across modes.
func (c *Client) Disruptions(ctx context.Context) ([]transit.Disruption, error) {
	var resp disruptionsResponse
	if err := c.get(ctx, apiVersion+"/disruptions", url.Values{}, &resp); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	disruptions := make([]transit.Disruption, 0)
	for _, group := range resp.Disruptions {
		for i := range group {
			if seen[group[i].ID] {
				continue
			}
			seen[group[i].ID] = true
			disruptions = append(disruptions, group[i].toDomain())
		}
	}

	return disruptions, nil
}

// get performs a signed GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + c.signer.Sign(path, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: executing request: %w", transit.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("ptv request completed")

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", transit.ErrNotFound, upstreamMessage(resp.Body))
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", transit.ErrInvalidRequest, upstreamMessage(resp.Body))
	default:
		return fmt.Errorf("%w: unexpected status code: %d", transit.ErrProviderUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", transit.ErrMalformedResponse, err)
	}

	return nil
}

// upstreamMessage extracts the message field of an error body.
func upstreamMessage(body io.Reader) string {
	var e errorResponse
	if err := json.NewDecoder(io.LimitReader(body, 64<<10)).Decode(&e); err != nil || e.Message == "" {
		return "no message"
	}
	return e.Message
}

// parseTime parses an upstream UTC timestamp. Empty yields the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
