// Package zeroconf advertises this presence host on the local network via
// mDNS so operators (and remote-registry admin tooling) can find a running
// daemon without static configuration.
package zeroconf

import (
	"context"
	"fmt"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/logger"
)

// Announcer publishes a single mDNS service record advertising the daemon.
type Announcer struct {
	cfg *config.ZeroconfConfig

	server *zeroconf.Server
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates an Announcer ready to be started, or (nil, nil) when disabled.
func New(ctx context.Context, cfg *config.ZeroconfConfig) (*Announcer, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	return &Announcer{
		cfg:    cfg,
		ctx:    subCtx,
		cancel: cancel,
	}, nil
}

// Start publishes the service record and keeps it alive until ctx is cancelled.
func (a *Announcer) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return fmt.Errorf("zeroconf: announcer already started")
	}

	txt := []string{
		"role=presence-host",
		"adapter=" + a.cfg.AdapterPath,
	}

	server, err := zeroconf.Register(
		a.cfg.InstanceName,
		a.cfg.ServiceType,
		a.cfg.Domain,
		a.cfg.Port,
		txt,
		nil,
	)
	if err != nil {
		return err
	}

	a.server = server
	logger.Info("[zeroconf] advertising %s on %s (port %d)", a.cfg.InstanceName, a.cfg.ServiceType, a.cfg.Port)

	go func() {
		<-a.ctx.Done()
		a.Close()
	}()

	return nil
}

// Close stops advertising. Safe to call multiple times and on a zero-value Announcer.
func (a *Announcer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		logger.Debug("[zeroconf] announcer stopped")
	}

	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
}
