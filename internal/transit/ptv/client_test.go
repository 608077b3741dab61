package ptv_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstop/nextstop/internal/provider/resilience"
	"github.com/nextstop/nextstop/internal/transit"
	"github.com/nextstop/nextstop/internal/transit/ptv"
)

const (
	testDevID = "3000165"
	testKey   = "9c132d31-6a30-4cac-8d8b-8a1970834799"
)

func TestSigner_Sign(t *testing.T) {
	signer := ptv.NewSigner(testDevID, testKey)

	q := url.Values{}
	q.Set("expand", "All")

	got := signer.Sign("/v3/departures/route_type/0/stop/1071", q)
	assert.Equal(t,
		"/v3/departures/route_type/0/stop/1071?devid=3000165&expand=All&signature=19F2473D275EE4578AB7A2A742225BB388DB86A7",
		got)

	// The caller's query is not modified.
	assert.Empty(t, q.Get("devid"))
}

// verifySignature checks the request carries a valid signature for testKey.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	uri := r.URL.RequestURI()
	idx := strings.Index(uri, "&signature=")
	if !assert.Positive(t, idx, "request is not signed: %s", uri) {
		return
	}

	signer := ptv.NewSigner(testDevID, testKey)
	assert.Equal(t, signer.Signature(uri[:idx]), uri[idx+len("&signature="):])
	assert.Equal(t, testDevID, r.URL.Query().Get("devid"))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *ptv.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := resilience.DefaultClientConfig("ptv-test")
	cfg.MaxRetries = 0
	return ptv.NewClient(ptv.ClientConfig{
		DevID:      testDevID,
		APIKey:     testKey,
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(cfg),
		Logger:     zerolog.Nop(),
	})
}

const departuresBody = `{
  "departures": [
    {
      "stop_id": 1071, "route_id": 6, "run_id": -1, "run_ref": "948012", "direction_id": 1,
      "disruption_ids": [338917],
      "scheduled_departure_utc": "2025-03-14T08:30:00Z",
      "estimated_departure_utc": "2025-03-14T08:32:05Z",
      "at_platform": false, "platform_number": "4", "flags": "S_VTR",
      "departure_sequence": 0,
      "skipped_stops": [
        {"stop_id": 1181, "stop_name": "Southern Cross", "stop_suburb": "Melbourne City", "stop_latitude": -37.81, "stop_longitude": 144.95}
      ]
    },
    {
      "stop_id": 1071, "route_id": 6, "run_ref": "948014", "direction_id": 1,
      "scheduled_departure_utc": "2025-03-14T08:45:00Z",
      "estimated_departure_utc": null,
      "at_platform": false, "platform_number": null,
      "departure_sequence": 0
    }
  ],
  "stops": {"1071": {"stop_id": 1071, "stop_name": "Flinders Street Station", "stop_suburb": "Melbourne City", "route_type": 0, "stop_latitude": -37.818, "stop_longitude": 144.967}},
  "routes": {"6": {"route_id": 6, "route_name": "Frankston", "route_number": "", "route_type": 0, "route_gtfs_id": "2-FKN"}},
  "runs": {
    "948012": {
      "run_id": -1, "run_ref": "948012", "route_id": 6, "route_type": 0, "final_stop_id": 1073,
      "destination_name": "Frankston", "status": "updated", "direction_id": 1, "express_stop_count": 3,
      "vehicle_position": {"latitude": -37.82, "longitude": 144.97, "bearing": 120.5, "datetime_utc": "2025-03-14T08:29:40Z"},
      "vehicle_descriptor": {"operator": "Metro Trains Melbourne", "id": "9012M", "low_floor": null, "air_conditioned": true, "description": "7 Car HCMT", "supplier": "", "length": "7"}
    },
    "948014": {"run_ref": "948014", "route_id": 6, "route_type": 0, "destination_name": "Frankston", "status": "scheduled", "vehicle_descriptor": null}
  },
  "directions": {"1": {"direction_id": 1, "direction_name": "Frankston", "route_id": 6}},
  "disruptions": {"338917": {"disruption_id": 338917, "title": "Buses replace trains", "disruption_status": "Current", "disruption_type": "Planned Works", "from_date": "2025-03-14T00:00:00Z", "to_date": null, "routes": [{"route_id": 6}]}}
}`

func TestClient_Departures(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, "/v3/departures/route_type/0/stop/1071", r.URL.Path)
		assert.Equal(t, "All", r.URL.Query().Get("expand"))
		assert.Equal(t, "true", r.URL.Query().Get("include_skipped_stops"))
		assert.Equal(t, "3", r.URL.Query().Get("max_results"))
		assert.Equal(t, []string{"4", "5"}, r.URL.Query()["platform_numbers"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(departuresBody))
	})

	deps, err := client.Departures(context.Background(), transit.RouteTypeTrain, 1071, transit.DeparturesOptions{
		MaxResults: 3,
		Platforms:  []string{"4", "5"},
	})
	require.NoError(t, err)
	require.Len(t, deps.Departures, 2)

	first := deps.Departures[0]
	assert.Equal(t, "948012", first.RunRef)
	assert.Equal(t, time.Date(2025, 3, 14, 8, 30, 0, 0, time.UTC), first.Scheduled)
	require.NotNil(t, first.Estimated)
	delay, ok := first.Delay()
	require.True(t, ok)
	assert.Equal(t, 125*time.Second, delay)
	assert.Equal(t, "4", first.Platform)
	require.Len(t, first.SkippedStops, 1)
	assert.Equal(t, "Southern Cross", first.SkippedStops[0].Name)
	assert.Equal(t, []int64{338917}, first.DisruptionIDs)

	second := deps.Departures[1]
	assert.Nil(t, second.Estimated)
	assert.Empty(t, second.Platform)

	assert.Equal(t, "Flinders Street Station", deps.Stops[1071].Name)
	assert.Equal(t, "Frankston", deps.Routes[6].Name)
	assert.Equal(t, "Frankston", deps.Directions[1].Name)

	run, ok := deps.Run("948012")
	require.True(t, ok)
	assert.True(t, run.IsExpress())
	require.NotNil(t, run.Vehicle)
	assert.Equal(t, "9012M", run.Vehicle.ID)
	require.NotNil(t, run.Vehicle.AirConditioned)
	assert.True(t, *run.Vehicle.AirConditioned)
	assert.Nil(t, run.Vehicle.LowFloor)
	require.NotNil(t, run.Position)
	assert.InDelta(t, 120.5, run.Position.Bearing, 0.001)

	other, ok := deps.Run("948014")
	require.True(t, ok)
	assert.Nil(t, other.Vehicle)

	disruption := deps.Disruptions[338917]
	assert.Equal(t, "Buses replace trains", disruption.Title)
	assert.True(t, disruption.To.IsZero())
	assert.True(t, disruption.AffectsRoute(6))
}

func TestClient_Pattern(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, "/v3/pattern/run/948012/route_type/0", r.URL.Path)
		_, _ = w.Write([]byte(departuresBody))
	})

	deps, err := client.Pattern(context.Background(), "948012", transit.RouteTypeTrain)
	require.NoError(t, err)
	assert.Len(t, deps.Departures, 2)
}

func TestClient_Search(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, "/v3/search/flinders st", r.URL.Path)
		assert.Equal(t, []string{"0", "1"}, r.URL.Query()["route_types"])
		_, _ = w.Write([]byte(`{
			"stops": [{"stop_id": 1071, "stop_name": "Flinders Street Station", "route_type": 0,
			           "routes": [{"route_id": 6}, {"route_id": 11}]}],
			"routes": [{"route_id": 6, "route_name": "Frankston", "route_type": 0}],
			"outlets": []
		}`))
	})

	result, err := client.Search(context.Background(), "flinders st", []transit.RouteType{transit.RouteTypeTrain, transit.RouteTypeTram})
	require.NoError(t, err)
	require.Len(t, result.Stops, 1)
	assert.Equal(t, []int{6, 11}, result.Stops[0].RouteIDs)
	require.Len(t, result.Routes, 1)
	assert.Equal(t, "Frankston", result.Routes[0].Name)
}

func TestClient_Disruptions(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, "/v3/disruptions", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"disruptions": {
				"metro_train": [{"disruption_id": 1, "title": "Works", "from_date": "2025-03-01T00:00:00Z", "to_date": "2025-03-30T00:00:00Z"}],
				"metro_tram": [{"disruption_id": 2, "title": "Diversion"}],
				"general": [{"disruption_id": 1, "title": "Works"}]
			}
		}`))
	})

	disruptions, err := client.Disruptions(context.Background())
	require.NoError(t, err)
	assert.Len(t, disruptions, 2)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusInternalServerError, `{}`, transit.ErrProviderUnavailable},
		{"forbidden", http.StatusForbidden, `{"message":"Forbidden"}`, transit.ErrProviderUnavailable},
		{"bad request", http.StatusBadRequest, `{"message":"run_ref is invalid"}`, transit.ErrInvalidRequest},
		{"not found", http.StatusNotFound, `{"message":"no such run"}`, transit.ErrNotFound},
		{"malformed json", http.StatusOK, `{"departures": [`, transit.ErrMalformedResponse},
		{"bad timestamp", http.StatusOK, `{"departures": [{"run_ref": "1", "scheduled_departure_utc": "yesterday"}]}`, transit.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Pattern(context.Background(), "1", transit.RouteTypeTrain)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	cfg := resilience.DefaultClientConfig("ptv-down")
	cfg.MaxRetries = 0
	client := ptv.NewClient(ptv.ClientConfig{
		DevID:      testDevID,
		APIKey:     testKey,
		BaseURL:    server.URL,
		HTTPClient: resilience.NewClient(cfg),
		Logger:     zerolog.Nop(),
	})

	_, err := client.Disruptions(context.Background())
	assert.ErrorIs(t, err, transit.ErrProviderUnavailable)
	assert.Equal(t, "ptv", client.Name())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("PTV_DEV_ID", "")
	t.Setenv("PTV_API_KEY", "")

	_, err := ptv.ConfigFromEnv()
	require.ErrorIs(t, err, ptv.ErrMissingCredentials)

	t.Setenv("PTV_DEV_ID", testDevID)
	t.Setenv("PTV_API_KEY", testKey)
	t.Setenv("PTV_BASE_URL", "http://localhost:9000")

	cfg, err := ptv.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, testDevID, cfg.DevID)
	assert.Equal(t, testKey, cfg.APIKey)
	assert.Equal(t, "http://localhost:9000", cfg.BaseURL)
}
