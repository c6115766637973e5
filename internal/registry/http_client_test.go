package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nearbyhq/presenced/config"
)

func testCfg(url string) *config.RegistryConfig {
	return &config.RegistryConfig{
		DeploymentURL:          url,
		QueryTimeoutSeconds:    5,
		MaxConsecutiveTimeouts: 2,
	}
}

func TestHTTPClient_GetDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "success",
			"value":  []DeviceRecord{{MAC: "AA:BB:CC:DD:EE:01", Status: StatusPresent}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(testCfg(srv.URL))
	defer c.Close()

	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() error = %v", err)
	}
	if len(devices) != 1 || devices[0].MAC != "AA:BB:CC:DD:EE:01" {
		t.Errorf("GetDevices() = %v", devices)
	}
}

func TestHTTPClient_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(testCfg(srv.URL))
	defer c.Close()

	for i := 0; i < 2; i++ {
		if _, err := c.GetDevices(context.Background()); err == nil {
			t.Fatal("expected error from failing server")
		}
	}

	devices, err := c.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices() after breaker trip should return (nil, nil), got err=%v", err)
	}
	if devices != nil {
		t.Errorf("GetDevices() after breaker trip = %v, want nil", devices)
	}
}

func TestHTTPClient_UpdateDeviceStatus(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotBody = req.Args
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{"status": "success"})
	}))
	defer srv.Close()

	c := NewHTTPClient(testCfg(srv.URL))
	defer c.Close()

	if err := c.UpdateDeviceStatus(context.Background(), "AA:BB:CC:DD:EE:02", StatusPresent); err != nil {
		t.Fatalf("UpdateDeviceStatus() error = %v", err)
	}
	if gotBody["macAddress"] != "AA:BB:CC:DD:EE:02" || gotBody["status"] != "present" {
		t.Errorf("UpdateDeviceStatus() sent body = %v", gotBody)
	}
}

func TestHTTPClient_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "error",
			"errorMessage": "boom",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(testCfg(srv.URL))
	defer c.Close()

	if _, err := c.GetDevices(context.Background()); err == nil {
		t.Fatal("expected error from error envelope")
	}
}
