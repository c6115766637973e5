package adapter

import "testing"

func TestParseDeviceLines(t *testing.T) {
	out := "Device AA:BB:CC:DD:EE:01 Phone\nDevice AA:BB:CC:DD:EE:02 Watch\n\nsome other line\n"
	macs := parseDeviceLines(out)

	if len(macs) != 2 {
		t.Fatalf("parseDeviceLines returned %d macs, want 2", len(macs))
	}
	if macs[0] != "AA:BB:CC:DD:EE:01" || macs[1] != "AA:BB:CC:DD:EE:02" {
		t.Errorf("parseDeviceLines = %v, want canonical MACs", macs)
	}
}

func TestParseDeviceLines_Empty(t *testing.T) {
	if macs := parseDeviceLines(""); macs != nil {
		t.Errorf("parseDeviceLines(\"\") = %v, want nil", macs)
	}
}

func TestInfoHasProperty(t *testing.T) {
	info := "Device AA:BB:CC:DD:EE:01\n\tConnected: yes\n\tPaired: yes\n"
	if !infoHasProperty(info, "Connected", "yes") {
		t.Error("expected Connected: yes to be found")
	}
	if infoHasProperty(info, "Connected", "no") {
		t.Error("did not expect Connected: no to be found")
	}
}
