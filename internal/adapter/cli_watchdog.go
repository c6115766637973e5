package adapter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/nearbyhq/presenced/logger"
)

// AdapterState reads Powered/Discoverable/Pairable/*Timeout off
// `bluetoothctl show`, BlueZ's human-readable adapter property dump.
func (d *CLIDriver) AdapterState(ctx context.Context) (AdapterState, bool) {
	out, err := d.bluetoothctl(ctx, 5*time.Second, "show")
	if err != nil {
		logger.Warn("[adapter] failed to read adapter state: %v", err)
		return AdapterState{}, false
	}
	return parseAdapterState(out), true
}

func parseAdapterState(out string) AdapterState {
	var s AdapterState
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Powered:"):
			s.Powered = boolField(line)
		case strings.HasPrefix(line, "Discoverable:"):
			s.Discoverable = boolField(line)
		case strings.HasPrefix(line, "Pairable:"):
			s.Pairable = boolField(line)
		case strings.HasPrefix(line, "DiscoverableTimeout:"):
			s.DiscoverableTimeout = intField(line)
		case strings.HasPrefix(line, "PairableTimeout:"):
			s.PairableTimeout = intField(line)
		}
	}
	return s
}

func boolField(line string) bool {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return false
	}
	return strings.TrimSpace(parts[0]) != "" && strings.Contains(strings.ToLower(parts[1]), "yes")
}

// intField extracts the decimal value from lines like
// "DiscoverableTimeout: 0x00000000 (0)".
func intField(line string) int {
	open := strings.LastIndex(line, "(")
	shut := strings.LastIndex(line, ")")
	if open < 0 || shut < 0 || shut < open {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[open+1 : shut]))
	if err != nil {
		return -1
	}
	return n
}

// Reconfigure reasserts powered/discoverable/pairable=on and resets both
// timeouts to never-expire, mirroring configure_adapter in the original
// Python agent.
func (d *CLIDriver) Reconfigure(ctx context.Context) bool {
	ok := true
	for _, args := range [][]string{
		{"power", "on"},
		{"discoverable", "on"},
		{"pairable", "on"},
		{"discoverable-timeout", "0"},
		{"pairable-timeout", "0"},
	} {
		if _, err := d.bluetoothctl(ctx, 5*time.Second, args...); err != nil {
			logger.Warn("[adapter] reconfigure step %v failed: %v", args, err)
			ok = false
		}
	}
	return ok
}

// AdvertiseNudge runs the configured nudge command (e.g. "bluetoothctl
// advertise on") as a subprocess, splitting it the way a shell would for a
// simple unquoted command line.
func (d *CLIDriver) AdvertiseNudge(ctx context.Context, command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return true
	}
	fields := strings.Fields(command)

	out, err := d.run(ctx, 10*time.Second, fields[0], fields[1:]...)
	if err != nil {
		logger.Warn("[adapter] advertise nudge command %q failed: %v", command, err)
		return false
	}
	logger.Info("[adapter] reissued advertising command (%s)", command)
	_ = out
	return true
}

// ScanPulse triggers a bounded `bluetoothctl scan on` to jog LE
// advertising/discovery back to life.
func (d *CLIDriver) ScanPulse(ctx context.Context, durationSeconds int) bool {
	if durationSeconds <= 0 {
		return true
	}
	_, err := d.bluetoothctl(ctx, time.Duration(durationSeconds+2)*time.Second,
		"--timeout", strconv.Itoa(durationSeconds), "scan", "on")
	if err != nil {
		logger.Warn("[adapter] scan pulse failed: %v", err)
		return false
	}
	return true
}
