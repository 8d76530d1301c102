// Package enrich fetches optional context data (weather anomalies, soil
// condition, market pressure) from external services. Every fetch degrades
// gracefully: a failed or disabled source yields absent data, never a failed
// prediction.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"agrocast/internal/ensemble"
)

// WeatherData is the payload of the weather enrichment endpoint.
type WeatherData struct {
	Region          string  `json:"region"`
	ClimateAnomaly  float64 `json:"climate_anomaly"`
	SoilHealthIndex float64 `json:"soil_health_index"`
	RainfallMM      float64 `json:"rainfall_mm"`
	AvgTempC        float64 `json:"avg_temp_c"`
}

// MarketData is the payload of the market enrichment endpoint.
type MarketData struct {
	Crop          string  `json:"crop"`
	PricePressure float64 `json:"price_pressure"`
	DemandIndex   float64 `json:"demand_index"`
}

// MetricsTracker receives enrichment call outcomes. Nil disables reporting.
type MetricsTracker interface {
	EnrichmentRequestInc(source, outcome string)
}

// Client calls the enrichment services. An empty URL disables that source.
type Client struct {
	weatherURL string
	marketURL  string
	rest       *resty.Client
	metrics    MetricsTracker
}

// New creates an enrichment client. Empty URLs disable their sources and the
// client reports itself offline when both are empty.
func New(weatherURL, marketURL string, timeout time.Duration, metrics MetricsTracker) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{
		weatherURL: weatherURL,
		marketURL:  marketURL,
		rest:       r,
		metrics:    metrics,
	}
}

// Available reports whether any enrichment source is configured.
func (c *Client) Available() bool {
	return c.weatherURL != "" || c.marketURL != ""
}

// FetchWeather retrieves weather enrichment for a region. Returns nil data
// when the source is disabled or the call fails.
func (c *Client) FetchWeather(ctx context.Context, region string) (*WeatherData, error) {
	if c.weatherURL == "" {
		return nil, nil
	}

	var data WeatherData
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("region", region).
		SetResult(&data).
		Get(c.weatherURL)
	if err != nil {
		c.observe("weather", "error")
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		c.observe("weather", "error")
		return nil, fmt.Errorf("weather API error: status %d", resp.StatusCode())
	}

	c.observe("weather", "ok")
	return &data, nil
}

// FetchMarket retrieves market enrichment for a crop. Returns nil data when
// the source is disabled or the call fails.
func (c *Client) FetchMarket(ctx context.Context, crop string) (*MarketData, error) {
	if c.marketURL == "" {
		return nil, nil
	}

	var data MarketData
	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParam("crop", crop).
		SetResult(&data).
		Get(c.marketURL)
	if err != nil {
		c.observe("market", "error")
		return nil, fmt.Errorf("market request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		c.observe("market", "error")
		return nil, fmt.Errorf("market API error: status %d", resp.StatusCode())
	}

	c.observe("market", "ok")
	return &data, nil
}

// Context gathers all sources into the adjustment context. Failures are
// logged and leave their fields absent; the bool reports whether at least
// one source answered.
func (c *Client) Context(ctx context.Context, region, crop string) (ensemble.Context, bool) {
	var ec ensemble.Context
	online := false

	weather, err := c.FetchWeather(ctx, region)
	if err != nil {
		log.Warn().Err(err).Str("region", region).Msg("weather enrichment unavailable")
	} else if weather != nil {
		anomaly := weather.ClimateAnomaly
		soil := weather.SoilHealthIndex
		ec.ClimateAnomaly = &anomaly
		ec.SoilHealthIndex = &soil
		online = true
	}

	market, err := c.FetchMarket(ctx, crop)
	if err != nil {
		log.Warn().Err(err).Str("crop", crop).Msg("market enrichment unavailable")
	} else if market != nil {
		pressure := market.PricePressure
		ec.MarketPressure = &pressure
		online = true
	}

	return ec, online
}

func (c *Client) observe(source, outcome string) {
	if c.metrics != nil {
		c.metrics.EnrichmentRequestInc(source, outcome)
	}
}
