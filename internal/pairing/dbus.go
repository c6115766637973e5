package pairing

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/logger"
)

const dbusCallTimeout = 5 * time.Second

func (m *Manager) callWithContext(obj dbus.BusObject, method string, args ...interface{}) *dbus.Call {
	ctx, cancel := context.WithTimeout(context.Background(), dbusCallTimeout)
	defer cancel()
	return obj.CallWithContext(ctx, method, 0, args...)
}

func (m *Manager) callMethod(obj dbus.BusObject, method string, args ...interface{}) error {
	return m.callWithContext(obj, method, args...).Err
}

func (m *Manager) objFor(path dbus.ObjectPath) dbus.BusObject {
	return m.conn.Object(bluezPrefix, path)
}

func (m *Manager) getAllDeviceProps(path dbus.ObjectPath) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	call := m.callWithContext(m.objFor(path), propsIface+".GetAll", deviceIface)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&props); err != nil {
		return nil, err
	}
	return props, nil
}

func (m *Manager) setDeviceProp(path dbus.ObjectPath, prop string, value interface{}) error {
	return m.callMethod(m.objFor(path), propsIface+".Set", deviceIface, prop, dbus.MakeVariant(value))
}

func (m *Manager) pairDevice(path dbus.ObjectPath) error {
	return m.callMethod(m.objFor(path), deviceIface+".Pair")
}

func (m *Manager) disconnectProfile(path dbus.ObjectPath, uuid string) error {
	return m.callMethod(m.objFor(path), deviceIface+".DisconnectProfile", uuid)
}

func extractString(props map[string]dbus.Variant, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.Value().(string); ok {
			return s
		}
	}
	return ""
}

func extractBool(props map[string]dbus.Variant, key string) bool {
	if v, ok := props[key]; ok {
		if b, ok := v.Value().(bool); ok {
			return b
		}
	}
	return false
}

func macFromProps(props map[string]dbus.Variant) (adapter.MAC, bool) {
	addr := extractString(props, "Address")
	if addr == "" {
		return "", false
	}
	return adapter.ParseMAC(addr)
}

func (m *Manager) deviceInfo(path dbus.ObjectPath) string {
	props, err := m.getAllDeviceProps(path)
	if err != nil {
		return string(path)
	}
	name := extractString(props, "Name")
	addr := extractString(props, "Address")
	if name == "" {
		name = "Unknown"
	}
	return name + " (" + addr + ")"
}

// ensurePairedAndTrusted initiates pairing (if needed) and sets Trusted,
// the same two-step the agent performs before accepting a non-audio
// service authorization.
func (m *Manager) ensurePairedAndTrusted(path dbus.ObjectPath) {
	props, err := m.getAllDeviceProps(path)
	if err != nil {
		logger.Warn("[pairing] failed reading props for %s: %v", path, err)
		return
	}

	if !extractBool(props, "Paired") {
		if err := m.pairDevice(path); err != nil {
			logger.Warn("[pairing] pair request failed for %s: %v", path, err)
		}
	}
	if !extractBool(props, "Trusted") {
		if err := m.setDeviceProp(path, "Trusted", true); err != nil {
			logger.Warn("[pairing] trust failed for %s: %v", path, err)
		}
	}
}
