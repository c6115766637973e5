package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/logger"
)

// HTTPClient is a Convex-shaped HTTP JSON-RPC client: every call lands on
// /api/query, /api/mutation, or /api/action with a bearer admin key, run
// through a single-writer execution lane because the underlying client
// connection is not safe to share across goroutines.
type HTTPClient struct {
	baseURL  string
	adminKey string
	timeout  time.Duration
	http     *http.Client
	breaker  *breaker
	lane     chan func()
	laneDone chan struct{}
}

// NewHTTPClient builds a client against cfg.DeploymentURL (preferring
// cfg.SelfHostedURL/SelfHostedAdminKey if set).
func NewHTTPClient(cfg *config.RegistryConfig) *HTTPClient {
	baseURL := cfg.DeploymentURL
	adminKey := cfg.SelfHostedAdminKey
	if cfg.SelfHostedURL != "" {
		baseURL = cfg.SelfHostedURL
	}

	c := &HTTPClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		adminKey: adminKey,
		timeout:  time.Duration(cfg.QueryTimeoutSeconds) * time.Second,
		http:     &http.Client{},
		breaker:  newBreaker(cfg.MaxConsecutiveTimeouts),
		lane:     make(chan func(), 64),
		laneDone: make(chan struct{}),
	}
	go c.runLane()
	return c
}

func (c *HTTPClient) runLane() {
	defer close(c.laneDone)
	for fn := range c.lane {
		fn()
	}
}

// Close drains and stops the write lane. Call once during shutdown.
func (c *HTTPClient) Close() {
	close(c.lane)
	<-c.laneDone
}

// submit runs fn on the single-writer lane and blocks for its result.
func (c *HTTPClient) submit(fn func() error) error {
	result := make(chan error, 1)
	c.lane <- func() { result <- fn() }
	return <-result
}

type rpcRequest struct {
	Path string                 `json:"path"`
	Args map[string]interface{} `json:"args"`
}

func (c *HTTPClient) call(ctx context.Context, kind, path string, args map[string]interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{Path: path, Args: args})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/%s", c.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.adminKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("registry: %s %s returned %d: %s", kind, path, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}

	var envelope struct {
		Status string          `json:"status"`
		Value  json.RawMessage `json:"value"`
		Error  string          `json:"errorMessage"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return err
	}
	if envelope.Status == "error" {
		return fmt.Errorf("registry: %s %s failed: %s", kind, path, envelope.Error)
	}
	if len(envelope.Value) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Value, out)
}

// GetDevices returns the empty list immediately if the breaker is open,
// rather than paying the timeout on every cycle while the store is down.
func (c *HTTPClient) GetDevices(ctx context.Context) ([]DeviceRecord, error) {
	if c.breaker.Open() {
		logger.Debug("[registry] circuit open, skipping getDevices")
		return nil, nil
	}

	var devices []DeviceRecord
	err := c.submit(func() error {
		return c.call(ctx, "query", "devices:getDevices", map[string]interface{}{}, &devices)
	})
	c.record(err)
	if err != nil {
		logger.Warn("[registry] getDevices failed: %v", err)
		return nil, err
	}
	return devices, nil
}

func (c *HTTPClient) RegisterPendingDevice(ctx context.Context, mac, name string) (DeviceRecord, error) {
	var rec DeviceRecord
	err := c.submit(func() error {
		return c.call(ctx, "mutation", "devices:registerPendingDevice",
			map[string]interface{}{"macAddress": mac, "name": name}, &rec)
	})
	c.record(err)
	if err != nil {
		logger.Warn("[registry] registerPendingDevice(%s) failed: %v", mac, err)
	}
	return rec, err
}

func (c *HTTPClient) UpdateDeviceStatus(ctx context.Context, mac string, status Status) error {
	err := c.submit(func() error {
		return c.call(ctx, "mutation", "devices:updateDeviceStatus",
			map[string]interface{}{"macAddress": mac, "status": status}, nil)
	})
	c.record(err)
	if err != nil {
		logger.Warn("[registry] updateDeviceStatus(%s, %s) failed: %v", mac, status, err)
	}
	return err
}

func (c *HTTPClient) LogAttendance(ctx context.Context, userID, userName string, status Status, deviceID string) error {
	err := c.submit(func() error {
		return c.call(ctx, "mutation", "devices:logAttendance", map[string]interface{}{
			"userId":   userID,
			"userName": userName,
			"status":   status,
			"deviceId": deviceID,
		}, nil)
	})
	c.record(err)
	if err != nil {
		logger.Warn("[registry] logAttendance(%s) failed: %v", deviceID, err)
	}
	return err
}

func (c *HTTPClient) CleanupExpiredGracePeriods(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	err := c.submit(func() error {
		return c.call(ctx, "action", "devices:cleanupExpiredGracePeriods", map[string]interface{}{}, &result)
	})
	c.record(err)
	if err != nil {
		logger.Warn("[registry] cleanupExpiredGracePeriods failed: %v", err)
	}
	return result, err
}

func (c *HTTPClient) DeleteDevice(ctx context.Context, mac string) error {
	err := c.submit(func() error {
		return c.call(ctx, "mutation", "devices:deleteDevice", map[string]interface{}{"macAddress": mac}, nil)
	})
	c.record(err)
	if err != nil {
		logger.Warn("[registry] deleteDevice(%s) failed: %v", mac, err)
	}
	return err
}

func (c *HTTPClient) record(err error) {
	if err == nil {
		c.breaker.RecordSuccess()
		return
	}
	if c.breaker.RecordFailure() {
		logger.Error("[registry] circuit breaker tripped after consecutive failures")
	}
}

var _ Client = (*HTTPClient)(nil)
