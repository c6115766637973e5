package adapter

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nearbyhq/presenced/cache"
	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/logger"
)

// CLIDriver drives bluetoothctl and l2ping as subprocesses. It owns the
// info cache and serializes Disconnect, since BlueZ races on concurrent
// disconnects against the same adapter.
type CLIDriver struct {
	adapterPath string

	infoCache     *cache.Cache[string]
	disconnectMu  sync.Mutex
	warnedMissing map[string]bool
	warnMu        sync.Mutex
}

// NewCLIDriver builds a driver bound to cfg.AdapterPath, with an info cache
// of TTL cfg.DeviceInfoCacheSeconds.
func NewCLIDriver(cfg *config.AdapterConfig) *CLIDriver {
	return &CLIDriver{
		adapterPath:   cfg.AdapterPath,
		infoCache:     cache.New[string](time.Duration(cfg.DeviceInfoCacheSeconds) * time.Second),
		warnedMissing: map[string]bool{},
	}
}

func (d *CLIDriver) warnMissingOnce(binary string) {
	d.warnMu.Lock()
	defer d.warnMu.Unlock()
	if d.warnedMissing[binary] {
		return
	}
	d.warnedMissing[binary] = true
	logger.Error("[adapter] %s not found on PATH", binary)
}

func (d *CLIDriver) run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	if _, err := exec.LookPath(name); err != nil {
		d.warnMissingOnce(name)
		return "", err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, name, args...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

func (d *CLIDriver) bluetoothctl(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	return d.run(ctx, timeout, "bluetoothctl", args...)
}

// ListPaired returns every paired MAC known to the adapter.
func (d *CLIDriver) ListPaired(ctx context.Context) ([]MAC, error) {
	out, err := d.bluetoothctl(ctx, 10*time.Second, "devices", "Paired")
	if err != nil {
		logger.Warn("[adapter] list paired failed: %v", err)
		return nil, err
	}
	return parseDeviceLines(out), nil
}

// ListConnected returns every currently connected MAC.
func (d *CLIDriver) ListConnected(ctx context.Context) ([]MAC, error) {
	out, err := d.bluetoothctl(ctx, 10*time.Second, "devices", "Connected")
	if err != nil {
		logger.Warn("[adapter] list connected failed: %v", err)
		return nil, err
	}
	return parseDeviceLines(out), nil
}

func parseDeviceLines(out string) []MAC {
	var macs []MAC
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Device ") {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) < 2 {
			continue
		}
		if mac, ok := ParseMAC(fields[1]); ok {
			macs = append(macs, mac)
		}
	}
	return macs
}

// GetInfo returns the raw `bluetoothctl info` block for mac, read-through
// the info cache. Only successful fetches are cached; a cache miss never
// implies "not connected."
func (d *CLIDriver) GetInfo(ctx context.Context, mac MAC) (string, bool) {
	if !mac.Valid() {
		return "", false
	}

	if cached, ok := d.infoCache.Get(string(mac)); ok {
		return cached, true
	}

	out, err := d.bluetoothctl(ctx, 5*time.Second, "info", string(mac))
	if err != nil {
		logger.Debug("[adapter] info fetch failed for %s: %v", mac, err)
		return "", false
	}

	d.infoCache.Set(string(mac), out)
	return out, true
}

// GetDeviceName returns the device's friendly name, via GetInfo.
func (d *CLIDriver) GetDeviceName(ctx context.Context, mac MAC) (string, bool) {
	info, ok := d.GetInfo(ctx, mac)
	if !ok {
		return "", false
	}
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Name:") {
			name := strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			if name != "" {
				return name, true
			}
		}
	}
	return "", false
}

func infoHasProperty(info, key, value string) bool {
	for _, line := range strings.Split(info, "\n") {
		line = strings.TrimSpace(line)
		if line == key+": "+value {
			return true
		}
	}
	return false
}

// Connect issues a connect attempt, bounded by a fixed 10-second timeout.
func (d *CLIDriver) Connect(ctx context.Context, mac MAC) bool {
	if !mac.Valid() {
		return false
	}
	out, err := d.bluetoothctl(ctx, 10*time.Second, "connect", string(mac))
	if err != nil {
		return false
	}
	return strings.Contains(out, "Connection successful")
}

// Disconnect tears down a connection, serialized against every other
// Disconnect call to avoid BlueZ races on concurrent disconnects.
func (d *CLIDriver) Disconnect(ctx context.Context, mac MAC) bool {
	if !mac.Valid() {
		return false
	}

	d.disconnectMu.Lock()
	defer d.disconnectMu.Unlock()

	out, err := d.bluetoothctl(ctx, 10*time.Second, "disconnect", string(mac))
	if err != nil {
		return false
	}
	if strings.Contains(out, "Successful disconnected") {
		return true
	}

	// Don't trust the output alone — verify with a fresh info read.
	d.infoCache.Delete(string(mac))
	info, ok := d.GetInfo(ctx, mac)
	if ok && infoHasProperty(info, "Connected", "yes") {
		return false
	}
	return true
}

// Remove deletes mac from the adapter's paired-device list.
func (d *CLIDriver) Remove(ctx context.Context, mac MAC) bool {
	if !mac.Valid() {
		return false
	}
	out, err := d.bluetoothctl(ctx, 10*time.Second, "remove", string(mac))
	if err != nil {
		return false
	}
	return strings.Contains(out, "has been removed")
}

// Trust marks mac as trusted.
func (d *CLIDriver) Trust(ctx context.Context, mac MAC) bool {
	if !mac.Valid() {
		return false
	}
	out, err := d.bluetoothctl(ctx, 10*time.Second, "trust", string(mac))
	if err != nil {
		return false
	}
	return strings.Contains(out, "trust succeeded")
}

// L2Ping sends count L2CAP echo requests, returning true iff at least one
// reply was observed.
func (d *CLIDriver) L2Ping(ctx context.Context, mac MAC, count, timeoutSeconds int) bool {
	if !mac.Valid() {
		return false
	}

	out, err := d.run(ctx, time.Duration(timeoutSeconds+1)*time.Second,
		"l2ping", "-c", strconv.Itoa(count), "-t", strconv.Itoa(timeoutSeconds), string(mac))
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(out), "bytes from")
}

// ConnectProbe issues a short connect attempt capped at timeoutSeconds,
// returning true if the output shows any connected indicator even if the
// link is subsequently torn down.
func (d *CLIDriver) ConnectProbe(ctx context.Context, mac MAC, timeoutSeconds int) bool {
	if !mac.Valid() {
		return false
	}

	out, _ := d.run(ctx, time.Duration(timeoutSeconds)*time.Second,
		"bluetoothctl", "connect", string(mac))
	return strings.Contains(out, "Connected: yes") || strings.Contains(out, "Connection successful")
}
