package pairing

const (
	bluezPrefix     = "org.bluez"
	adapterIface    = bluezPrefix + ".Adapter1"
	deviceIface     = bluezPrefix + ".Device1"
	propsIface      = "org.freedesktop.DBus.Properties"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"

	agentIface      = bluezPrefix + ".Agent1"
	agentManager    = bluezPrefix + ".AgentManager1"
	agentCapability = "NoInputNoOutput"

	bluezPath = "/org/bluez"
	agentPath = bluezPath + "/presenced_agent"

	registerAgentMethod   = agentManager + ".RegisterAgent"
	requestAgentMethod    = agentManager + ".RequestDefaultAgent"
	unregisterAgentMethod = agentManager + ".UnregisterAgent"

	propChangedSignal     = propsIface + ".PropertiesChanged"
	interfacesAddedSignal = objManagerIface + ".InterfacesAdded"

	addMatchMethod = "org.freedesktop.DBus.AddMatch"
)

// Audio profile UUIDs rejected by AuthorizeService to keep audio routing off
// this host: A2DP, HSP, HFP, HFP Audio Gateway.
var rejectedAudioUUIDs = map[string]bool{
	"0000110d-0000-1000-8000-00805f9b34fb": true,
	"00001108-0000-1000-8000-00805f9b34fb": true,
	"0000111e-0000-1000-8000-00805f9b34fb": true,
	"0000111f-0000-1000-8000-00805f9b34fb": true,
}
