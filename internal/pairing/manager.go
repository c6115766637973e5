// Package pairing exports a BlueZ Agent1 that auto-accepts pairing
// requests while rejecting audio profile connections, tracks each
// device's pairing_request -> paired|failed|timeout lifecycle, and emits
// fast-path presence events the instant a paired device connects.
package pairing

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/logger"
)

// Manager owns the exported Agent1 object, the D-Bus signal listeners that
// feed the pairing state machine, and the fast-path event sink.
type Manager struct {
	conn *dbus.Conn
	cfg  *config.PairingConfig

	tracker *Tracker
	sink    EventSink

	agentObj           *agent
	interfacesListener *dbusListener
	propertiesListener *dbusListener
}

// New builds a Manager bound to conn. sink may be nil, in which case
// fast-path events are dropped.
func New(conn *dbus.Conn, cfg *config.PairingConfig, sink EventSink) *Manager {
	m := &Manager{
		conn:    conn,
		cfg:     cfg,
		tracker: NewTracker(time.Duration(cfg.PairingTimeoutSeconds) * time.Second),
		sink:    sink,
	}
	m.agentObj = &agent{manager: m}
	return m
}

// Start exports the agent, registers it as BlueZ's default agent, and
// arms the InterfacesAdded/PropertiesChanged listeners.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.conn.Export(m.agentObj, dbus.ObjectPath(agentPath), agentIface); err != nil {
		return err
	}

	manager := m.objFor(dbus.ObjectPath(bluezPath))
	if err := m.callMethod(manager, registerAgentMethod, dbus.ObjectPath(agentPath), agentCapability); err != nil {
		return err
	}
	if err := m.callMethod(manager, requestAgentMethod, dbus.ObjectPath(agentPath)); err != nil {
		return err
	}
	logger.Info("[pairing] agent registered at %s (capability=%s)", agentPath, agentCapability)

	m.interfacesListener = newDBusListener(m.conn, ctx,
		"type='signal',interface='"+objManagerIface+"',member='InterfacesAdded'", m.onInterfacesAdded)
	if err := m.interfacesListener.Start(); err != nil {
		return err
	}

	m.propertiesListener = newDBusListener(m.conn, ctx,
		"type='signal',interface='"+propsIface+"',member='PropertiesChanged'", m.onPropertiesChanged)
	if err := m.propertiesListener.Start(); err != nil {
		m.interfacesListener.Stop()
		return err
	}

	logger.Info("[pairing] fast-path listeners armed for BlueZ connection events")
	return nil
}

// Stop tears down the listeners and unregisters the agent.
func (m *Manager) Stop() {
	if m.interfacesListener != nil {
		m.interfacesListener.Stop()
	}
	if m.propertiesListener != nil {
		m.propertiesListener.Stop()
	}

	manager := m.objFor(dbus.ObjectPath(bluezPath))
	if err := m.callMethod(manager, unregisterAgentMethod, dbus.ObjectPath(agentPath)); err != nil {
		logger.Warn("[pairing] failed to unregister agent: %v", err)
	} else {
		logger.Info("[pairing] agent unregistered")
	}
}

// emitConnectedEvent publishes a fast-path Event, but only for devices the
// tracker currently has in StatePaired — unpaired connects (e.g. a device
// still mid-handshake) never trigger the fast path.
func (m *Manager) emitConnectedEvent(mac adapter.MAC, props map[string]dbus.Variant) {
	if m.sink == nil || mac == "" {
		return
	}
	if state, tracked := m.tracker.State(mac); !tracked || state != StatePaired {
		logger.Debug("[pairing] skipping fast-path event for %s (state=%s, not paired)", mac, state)
		return
	}
	name := extractString(props, "Name")
	if m.sink.Publish(mac, name, "pairing") {
		logger.Info("[pairing] enqueued fast-path presence event for %s", mac)
	}
}

// IsPaired reports whether mac is tracked as currently paired.
func (m *Manager) IsPaired(mac adapter.MAC) bool {
	return m.tracker.IsPaired(mac)
}

// ResetDeviceState clears mac's pending-pairing bookkeeping.
func (m *Manager) ResetDeviceState(mac adapter.MAC) bool {
	return m.tracker.Reset(mac)
}

// CleanupFailedPairings ages out and removes failed/timed-out entries,
// returning the MACs so the caller can also remove them via bluetoothctl.
func (m *Manager) CleanupFailedPairings() []adapter.MAC {
	removed := m.tracker.CleanupFailed()
	if len(removed) > 0 {
		logger.Info("[pairing] cleaned up %d failed/timeout pairing(s): %v", len(removed), removed)
	}
	return removed
}
