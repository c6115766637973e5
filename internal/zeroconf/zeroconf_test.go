package zeroconf

import (
	"context"
	"testing"

	"github.com/nearbyhq/presenced/config"
)

func TestNew_Disabled(t *testing.T) {
	cfg := &config.ZeroconfConfig{Enabled: false}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Errorf("New() with disabled config returned error: %v", err)
	}
	if a != nil {
		t.Error("New() with disabled config should return nil announcer")
	}
}

func TestNew_Nil(t *testing.T) {
	a, err := New(context.Background(), nil)
	if err != nil || a != nil {
		t.Errorf("New(nil) = %v, %v, want nil, nil", a, err)
	}
}

func TestClose_ZeroValue(t *testing.T) {
	a := &Announcer{}
	// Should not panic.
	a.Close()
	a.Close()
}
