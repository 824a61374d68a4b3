package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
)

type lookupServer struct {
	*httptest.Server
	mu      sync.Mutex
	queries []url.Values
	status  int
}

func newLookupServer(t *testing.T) *lookupServer {
	t.Helper()
	ls := &lookupServer{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/", func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		status := ls.status
		ls.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"city":"Berlin","latitude":52.52,"longitude":13.41}`))
	})
	mux.HandleFunc("/v1/forecast", func(w http.ResponseWriter, r *http.Request) {
		ls.mu.Lock()
		ls.queries = append(ls.queries, r.URL.Query())
		status := ls.status
		ls.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"hourly":{"apparent_temperature":[11.2,12.9]}}`))
	})
	ls.Server = httptest.NewServer(mux)
	t.Cleanup(ls.Close)
	return ls
}

func newLookupRegistry(t *testing.T, ls *lookupServer) *ToolRegistry {
	t.Helper()
	reg := NewToolRegistry()
	err := RegisterLookupTools(reg, LookupOptions{
		HTTPClient:  ls.Client(),
		LocationURL: ls.URL + "/json/",
		WeatherURL:  ls.URL + "/v1/forecast",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestGetLocation(t *testing.T) {
	ls := newLookupServer(t)
	reg := newLookupRegistry(t, ls)

	got, err := reg.Invoke(context.Background(), ToolGetLocation, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("getLocation: %v", err)
	}
	var loc map[string]any
	if err := json.Unmarshal([]byte(got), &loc); err != nil {
		t.Fatalf("result should be JSON text: %v", err)
	}
	if loc["city"] != "Berlin" {
		t.Errorf("unexpected location %v", loc)
	}
}

func TestGetCurrentWeather(t *testing.T) {
	ls := newLookupServer(t)
	reg := newLookupRegistry(t, ls)

	got, err := reg.Invoke(context.Background(), ToolGetCurrentWeather,
		json.RawMessage(`{"longitude":"13.41","latitude":"52.52"}`))
	if err != nil {
		t.Fatalf("getCurrentWeather: %v", err)
	}
	if !strings.Contains(got, "apparent_temperature") {
		t.Errorf("unexpected body %q", got)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.queries) != 1 {
		t.Fatalf("expected one forecast request, got %d", len(ls.queries))
	}
	q := ls.queries[0]
	if q.Get("latitude") != "52.52" || q.Get("longitude") != "13.41" || q.Get("hourly") != "apparent_temperature" {
		t.Errorf("unexpected query %v", q)
	}
}

func TestGetCurrentWeatherAcceptsNumbers(t *testing.T) {
	ls := newLookupServer(t)
	reg := newLookupRegistry(t, ls)

	if _, err := reg.Invoke(context.Background(), ToolGetCurrentWeather,
		json.RawMessage(`{"latitude":52.52,"longitude":-13.4}`)); err != nil {
		t.Fatalf("getCurrentWeather: %v", err)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.queries) != 1 {
		t.Fatalf("expected one forecast request, got %d", len(ls.queries))
	}
	if q := ls.queries[0]; q.Get("latitude") != "52.52" || q.Get("longitude") != "-13.4" {
		t.Errorf("coordinates should pass through unchanged, got %v", q)
	}
}

func TestGetCurrentWeatherValidatesCoordinates(t *testing.T) {
	ls := newLookupServer(t)
	reg := newLookupRegistry(t, ls)

	tests := []struct {
		name  string
		args  string
		field string
	}{
		{"latitude out of range", `{"latitude":"91","longitude":"13.41"}`, "latitude"},
		{"longitude not numeric", `{"latitude":"52.52","longitude":"east"}`, "longitude"},
		{"number out of range", `{"latitude":52.52,"longitude":181}`, "longitude"},
		{"not a coordinate", `{"latitude":true,"longitude":13.41}`, "latitude"},
		{"missing longitude", `{"latitude":"52.52"}`, "longitude"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Invoke(context.Background(), ToolGetCurrentWeather, json.RawMessage(tt.args))
			var argErr *ArgumentError
			if !errors.As(err, &argErr) {
				t.Fatalf("expected *ArgumentError, got %v", err)
			}
			if argErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, argErr.Field)
			}
		})
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.queries) != 0 {
		t.Errorf("invalid arguments must not reach the network, got %d requests", len(ls.queries))
	}
}

func TestLookupNonSuccessStatus(t *testing.T) {
	ls := newLookupServer(t)
	ls.status = http.StatusTooManyRequests
	reg := newLookupRegistry(t, ls)

	_, err := reg.Invoke(context.Background(), ToolGetLocation, nil)
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("expected a status failure, got %v", err)
	}
}
