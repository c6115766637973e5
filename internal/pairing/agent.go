package pairing

import (
	"github.com/godbus/dbus/v5"

	"github.com/nearbyhq/presenced/logger"
)

// agent implements org.bluez.Agent1 with NoInputNoOutput semantics: every
// pairing prompt is auto-accepted, audio-profile service requests are
// rejected outright to keep routing off this host.
type agent struct {
	manager *Manager
}

func (a *agent) Release() *dbus.Error {
	logger.Info("[pairing] agent released")
	return nil
}

func (a *agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	logger.Info("[pairing] RequestPinCode: %s", a.manager.deviceInfo(device))
	return "", nil
}

func (a *agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	logger.Info("[pairing] RequestPasskey: %s", a.manager.deviceInfo(device))
	return 0, nil
}

func (a *agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	logger.Info("[pairing] DisplayPasskey: %s passkey=%06d entered=%d", a.manager.deviceInfo(device), passkey, entered)
	return nil
}

func (a *agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	logger.Info("[pairing] DisplayPinCode: %s pin=%s", a.manager.deviceInfo(device), pincode)
	return nil
}

func (a *agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	logger.Info("[pairing] RequestConfirmation: %s passkey=%06d", a.manager.deviceInfo(device), passkey)
	a.manager.trackPairingRequest(device)
	a.manager.setTrusted(device)
	return nil
}

func (a *agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	logger.Info("[pairing] RequestAuthorization: %s", a.manager.deviceInfo(device))
	a.manager.trackPairingRequest(device)
	a.manager.setTrusted(device)
	return nil
}

func (a *agent) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	info := a.manager.deviceInfo(device)
	if rejectedAudioUUIDs[uuid] {
		logger.Info("[pairing] rejecting audio profile %s for %s", uuid, info)
		if err := a.manager.disconnectProfile(device, uuid); err != nil {
			logger.Warn("[pairing] failed to disconnect audio profile %s for %s: %v", uuid, info, err)
		}
		return dbus.NewError("org.bluez.Error.Rejected", []interface{}{"Audio profile connection rejected"})
	}
	a.manager.ensurePairedAndTrusted(device)
	logger.Info("[pairing] authorized service %s for %s", uuid, info)
	return nil
}

func (a *agent) Cancel() *dbus.Error {
	failed := a.manager.tracker.CancelAll()
	if len(failed) > 0 {
		logger.Info("[pairing] cancelled, marked failed: %v", failed)
	}
	return nil
}

func (m *Manager) trackPairingRequest(device dbus.ObjectPath) {
	props, err := m.getAllDeviceProps(device)
	if err != nil {
		logger.Warn("[pairing] failed to read props while tracking request: %v", err)
		return
	}
	mac, ok := macFromProps(props)
	if !ok {
		return
	}
	m.tracker.MarkPairingRequest(mac)
	logger.Info("[pairing] %s marked as pairing_request", mac)
}

func (m *Manager) setTrusted(device dbus.ObjectPath) {
	if err := m.setDeviceProp(device, "Trusted", true); err != nil {
		logger.Warn("[pairing] failed to set trusted for %s: %v", device, err)
	}
}
