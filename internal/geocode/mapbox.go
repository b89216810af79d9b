package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/disasterwatch/disasterwatch/internal/inference"
	"github.com/disasterwatch/disasterwatch/internal/models"
	"github.com/disasterwatch/disasterwatch/internal/retry"
)

const mapboxModel = "mapbox.places"

// MapboxConfig configures the Mapbox forward geocoding client.
type MapboxConfig struct {
	Token   string
	BaseURL string
	Timeout time.Duration
	// Retry applies to rate limiting and 5xx responses. The zero value
	// makes a single attempt.
	Retry retry.Policy
}

// MapboxClient performs forward geocoding against Mapbox Geocoding v5.
type MapboxClient struct {
	token           string
	baseURL         string
	httpClient      *http.Client
	retry           retry.Policy
	inferenceLogger *inference.Logger
}

// NewMapboxClient creates a client. inferenceLogger may be nil.
func NewMapboxClient(cfg MapboxConfig, inferenceLogger *inference.Logger) *MapboxClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.mapbox.com"
	}

	return &MapboxClient{
		token:           cfg.Token,
		baseURL:         baseURL,
		httpClient:      &http.Client{Timeout: timeout},
		retry:           cfg.Retry,
		inferenceLogger: inferenceLogger,
	}
}

type mapboxResponse struct {
	Features []struct {
		PlaceName string    `json:"place_name"`
		Center    []float64 `json:"center"` // [longitude, latitude]
	} `json:"features"`
}

// Forward returns the best candidate for query, or nil when there is none.
func (c *MapboxClient) Forward(ctx context.Context, query string) (*models.Coordinates, error) {
	start := time.Now()
	var coords *models.Coordinates
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		coords, err = c.forward(ctx, query)
		return err
	})
	c.inferenceLogger.LogCall(ctx, inference.CallParams{
		Provider:  "mapbox",
		Model:     mapboxModel,
		Operation: models.OperationGeocode,
		Latency:   time.Since(start),
		Err:       err,
	})
	return coords, err
}

func (c *MapboxClient) forward(ctx context.Context, query string) (*models.Coordinates, error) {
	endpoint := fmt.Sprintf("%s/geocoding/v5/%s/%s.json", c.baseURL, mapboxModel, url.PathEscape(query))

	params := url.Values{}
	params.Set("access_token", c.token)
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("geocode request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, retry.After(err, retryAfter(resp.Header.Get("Retry-After")))
		case resp.StatusCode >= 500:
			return nil, retry.Transient(err)
		}
		return nil, err
	}

	var payload mapboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode geocode response: %w", err)
	}

	if len(payload.Features) == 0 || len(payload.Features[0].Center) < 2 {
		return nil, nil
	}

	center := payload.Features[0].Center
	coords := models.Coordinates{Latitude: center[1], Longitude: center[0]}
	if !coords.Valid() {
		return nil, nil
	}
	return &coords, nil
}

// retryAfter reads a Retry-After header given in seconds.
func retryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
