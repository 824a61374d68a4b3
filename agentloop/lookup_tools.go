package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"time"
)

const (
	DefaultLocationURL = "https://ipapi.co/json/"
	DefaultWeatherURL  = "https://api.open-meteo.com/v1/forecast"
)

// maxLookupBody caps how much of a lookup response is read.
const maxLookupBody = 1 << 20

// LookupOptions configures the network lookup tools. Zero values select the
// public endpoints and a client with a 30s timeout.
type LookupOptions struct {
	HTTPClient  *http.Client
	LocationURL string
	WeatherURL  string
}

type weatherArgs struct {
	Latitude  coordinate `json:"latitude" validate:"required,latitude" jsonschema_description:"Latitude in decimal degrees"`
	Longitude coordinate `json:"longitude" validate:"required,longitude" jsonschema_description:"Longitude in decimal degrees"`
}

// coordinate holds decimal degrees given as a JSON string or number.
// getLocation reports numbers, and models often pass them on unchanged.
type coordinate string

func (c *coordinate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = coordinate(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return &json.UnmarshalTypeError{Value: typeErr.Value, Type: reflect.TypeOf(""), Offset: typeErr.Offset}
		}
		return err
	}
	*c = coordinate(n)
	return nil
}

// RegisterLookupTools registers getCurrentWeather and getLocation.
func RegisterLookupTools(reg *ToolRegistry, opts LookupOptions) error {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	locationURL := opts.LocationURL
	if locationURL == "" {
		locationURL = DefaultLocationURL
	}
	weatherURL := opts.WeatherURL
	if weatherURL == "" {
		weatherURL = DefaultWeatherURL
	}

	tools := []RegisteredTool{
		NewTool(ToolGetCurrentWeather,
			"Get the current weather in a given location",
			func(ctx context.Context, args weatherArgs) (string, error) {
				u, err := url.Parse(weatherURL)
				if err != nil {
					return "", fmt.Errorf("weather url: %w", err)
				}
				q := u.Query()
				q.Set("latitude", string(args.Latitude))
				q.Set("longitude", string(args.Longitude))
				q.Set("hourly", "apparent_temperature")
				u.RawQuery = q.Encode()
				return fetchJSON(ctx, client, u.String())
			}),
		NewTool(ToolGetLocation,
			"Get the user's location based on their IP address",
			func(ctx context.Context, _ noArgs) (string, error) {
				return fetchJSON(ctx, client, locationURL)
			}),
	}

	for _, tool := range tools {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// fetchJSON returns the body of a GET request as text.
func fetchJSON(ctx context.Context, client *http.Client, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", req.URL.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%s returned status %d", req.URL.Host, resp.StatusCode)
	}
	return string(body), nil
}
