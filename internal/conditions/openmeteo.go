package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// OpenMeteoClient reads current air temperature and shortwave radiation from
// the free Open-Meteo forecast API.
type OpenMeteoClient struct {
	latitude  float64
	longitude float64
	client    *http.Client
}

func NewOpenMeteoClient(latitude, longitude float64) *OpenMeteoClient {
	return &OpenMeteoClient{
		latitude:  latitude,
		longitude: longitude,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type openMeteoResponse struct {
	Current struct {
		Time               string  `json:"time"`
		Temperature2m      float64 `json:"temperature_2m"`
		ShortwaveRadiation float64 `json:"shortwave_radiation"`
	} `json:"current"`
}

func (c *OpenMeteoClient) Get(ctx context.Context) (*Data, error) {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", c.latitude))
	query.Set("longitude", fmt.Sprintf("%.6f", c.longitude))
	query.Set("current", "temperature_2m,shortwave_radiation")
	query.Set("timezone", "auto")

	endpoint := url.URL{
		Scheme:   "https",
		Host:     "api.open-meteo.com",
		Path:     "/v1/forecast",
		RawQuery: query.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open-meteo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("open-meteo bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("open-meteo decode: %w", err)
	}

	if strings.TrimSpace(payload.Current.Time) == "" {
		return nil, fmt.Errorf("open-meteo current data missing")
	}

	observed, err := time.Parse("2006-01-02T15:04", payload.Current.Time)
	if err != nil {
		observed = time.Now()
	}

	return &Data{
		Temperature: payload.Current.Temperature2m,
		Irradiance:  payload.Current.ShortwaveRadiation,
		Source:      "openmeteo",
		ObservedAt:  observed,
	}, nil
}
