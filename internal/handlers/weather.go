package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	// DefaultWeatherBaseURL National Weather Service API
	DefaultWeatherBaseURL = "https://api.weather.gov"
	weatherUserAgent      = "mcp-agent-toolserver/1.0"
	maxWeatherItems       = 5
)

// WeatherClient 天气服务客户端
type WeatherClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewWeatherClient 创建天气客户端，baseURL 为空时使用 NWS
func NewWeatherClient(baseURL string, httpClient *http.Client) *WeatherClient {
	if baseURL == "" {
		baseURL = DefaultWeatherBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &WeatherClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Forecast 查询经纬度对应的天气预报
func (c *WeatherClient) Forecast(ctx context.Context, latitude, longitude float64) (string, error) {
	var points struct {
		Properties struct {
			Forecast string `json:"forecast"`
		} `json:"properties"`
	}
	pointsURL := fmt.Sprintf("%s/points/%s,%s", c.baseURL, FormatNumber(latitude), FormatNumber(longitude))
	if err := c.getJSON(ctx, pointsURL, &points); err != nil {
		return "", err
	}
	if points.Properties.Forecast == "" {
		return "", errors.Newf("no forecast available for %s, %s", FormatNumber(latitude), FormatNumber(longitude))
	}

	var forecast struct {
		Properties struct {
			Periods []struct {
				Name             string `json:"name"`
				Temperature      int    `json:"temperature"`
				TemperatureUnit  string `json:"temperatureUnit"`
				DetailedForecast string `json:"detailedForecast"`
			} `json:"periods"`
		} `json:"properties"`
	}
	if err := c.getJSON(ctx, points.Properties.Forecast, &forecast); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Weather forecast for %s, %s:\n\n", FormatNumber(latitude), FormatNumber(longitude))
	for i, period := range forecast.Properties.Periods {
		if i >= maxWeatherItems {
			break
		}
		fmt.Fprintf(&sb, "%s:\n", period.Name)
		fmt.Fprintf(&sb, "Temperature: %d°%s\n", period.Temperature, period.TemperatureUnit)
		fmt.Fprintf(&sb, "%s\n\n", period.DetailedForecast)
	}
	return sb.String(), nil
}

// Alerts 查询美国州的有效天气警报
func (c *WeatherClient) Alerts(ctx context.Context, state string) (string, error) {
	var alerts struct {
		Features []struct {
			Properties struct {
				Event    string `json:"event"`
				Severity string `json:"severity"`
				Headline string `json:"headline"`
			} `json:"properties"`
		} `json:"features"`
	}
	alertsURL := fmt.Sprintf("%s/alerts/active?area=%s", c.baseURL, url.QueryEscape(state))
	if err := c.getJSON(ctx, alertsURL, &alerts); err != nil {
		return "", err
	}

	if len(alerts.Features) == 0 {
		return fmt.Sprintf("No active alerts for %s", state), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Active weather alerts for %s:\n\n", state)
	for i, alert := range alerts.Features {
		if i >= maxWeatherItems {
			break
		}
		props := alert.Properties
		fmt.Fprintf(&sb, "Event: %s\n", orDefault(props.Event, "Unknown"))
		fmt.Fprintf(&sb, "Severity: %s\n", orDefault(props.Severity, "Unknown"))
		fmt.Fprintf(&sb, "Description: %s\n\n", orDefault(props.Headline, "No description"))
	}
	return sb.String(), nil
}

func (c *WeatherClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", weatherUserAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Newf("unexpected status code %d from %s", resp.StatusCode, rawURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
