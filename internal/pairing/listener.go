package pairing

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/nearbyhq/presenced/logger"
)

// SignalCallback is invoked for every signal matching a listener's match
// rule. Returning a non-nil error stops the listener.
type SignalCallback func(*dbus.Signal) error

// dbusListener subscribes to a D-Bus match rule and dispatches matching
// signals to a callback until the context is cancelled.
type dbusListener struct {
	conn      *dbus.Conn
	ctx       context.Context
	cancel    context.CancelFunc
	matchRule string
	callback  SignalCallback
	done      chan struct{}
}

func newDBusListener(conn *dbus.Conn, ctx context.Context, matchRule string, callback SignalCallback) *dbusListener {
	listenerCtx, cancel := context.WithCancel(ctx)
	return &dbusListener{
		conn:      conn,
		ctx:       listenerCtx,
		cancel:    cancel,
		matchRule: matchRule,
		callback:  callback,
		done:      make(chan struct{}),
	}
}

func (l *dbusListener) Start() error {
	if err := l.conn.BusObject().Call(addMatchMethod, 0, l.matchRule).Err; err != nil {
		return err
	}
	ch := make(chan *dbus.Signal, 16)
	l.conn.Signal(ch)
	go l.listen(ch)
	return nil
}

func (l *dbusListener) listen(ch chan *dbus.Signal) {
	defer l.conn.RemoveSignal(ch)
	for {
		select {
		case <-l.ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if err := l.callback(sig); err != nil {
				logger.Warn("[pairing] listener callback stopped: %v", err)
				close(l.done)
				return
			}
		}
	}
}

func (l *dbusListener) Stop() {
	l.cancel()
}

// onInterfacesAdded tracks newly discovered devices (InterfacesAdded) and
// fires a fast-path event if the device shows up already connected.
func (m *Manager) onInterfacesAdded(sig *dbus.Signal) error {
	if sig.Name != interfacesAddedSignal || len(sig.Body) < 2 {
		return nil
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return nil
	}
	props, ok := ifaces[deviceIface]
	if !ok {
		return nil
	}

	mac, ok := macFromProps(props)
	if ok {
		paired := extractBool(props, "Paired")
		if state, tracked := m.tracker.State(mac); tracked {
			if paired && (state == StatePairingRequest || state == StatePairing) {
				m.tracker.MarkPaired(mac)
				logger.Info("[pairing] %s marked as paired (InterfacesAdded)", mac)
			} else if !paired && state != StatePaired {
				m.tracker.MarkFailed(mac)
				logger.Info("[pairing] %s marked as failed (InterfacesAdded)", mac)
			}
		}
	}

	if extractBool(props, "Connected") {
		m.emitConnectedEvent(mac, props)
	}
	return nil
}

// onPropertiesChanged tracks pairing resolution and connection events on
// org.bluez.Device1 objects.
func (m *Manager) onPropertiesChanged(sig *dbus.Signal) error {
	if sig.Name != propChangedSignal || len(sig.Body) < 2 {
		return nil
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != deviceIface {
		return nil
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil
	}

	if pairedVar, hasPaired := changed["Paired"]; hasPaired {
		if props, err := m.getAllDeviceProps(sig.Path); err == nil {
			if mac, ok := macFromProps(props); ok {
				if paired, ok := pairedVar.Value().(bool); ok {
					if paired {
						if m.tracker.MarkPaired(mac) {
							logger.Info("[pairing] %s marked as paired", mac)
						}
					} else if m.tracker.MarkFailed(mac) {
						logger.Info("[pairing] %s marked as failed (unpaired)", mac)
					}
				}
			}
		}
	}

	if connectedVar, hasConnected := changed["Connected"]; hasConnected {
		if connected, ok := connectedVar.Value().(bool); ok && connected {
			props, err := m.getAllDeviceProps(sig.Path)
			if err == nil {
				mac, _ := macFromProps(props)
				m.emitConnectedEvent(mac, props)
			}
		}
	}

	return nil
}
