package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"

	"github.com/nearbyhq/presenced/config"
	"github.com/nearbyhq/presenced/internal/adapter"
	"github.com/nearbyhq/presenced/internal/engine"
	"github.com/nearbyhq/presenced/internal/fastpath"
	"github.com/nearbyhq/presenced/internal/overrides"
	"github.com/nearbyhq/presenced/internal/pairing"
	"github.com/nearbyhq/presenced/internal/presence"
	"github.com/nearbyhq/presenced/internal/probe"
	"github.com/nearbyhq/presenced/internal/registry"
	"github.com/nearbyhq/presenced/internal/scheduler"
	"github.com/nearbyhq/presenced/internal/watchdog"
	"github.com/nearbyhq/presenced/internal/zeroconf"
	"github.com/nearbyhq/presenced/logger"
)

func main() {
	if os.Getuid() == 0 {
		logger.Fatal("[%s] root user is strictly forbidden! presenced will not run as root.", config.AppName)
	}

	flag.Usage = usage
	configFile := flag.String("config", "", "path to configuration file")
	versionFlag := flag.Bool("version", false, "print version")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("%s\n", config.AppName)
		return
	}

	cfg, err := config.New(configFile)
	if err != nil {
		logger.Fatal("[%s] failed to load config: %v", config.AppName, err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := dbus.SystemBus()
	if err != nil {
		logger.Fatal("[%s] failed to connect to the system bus: %v", config.AppName, err)
	}
	defer conn.Close()

	driver := adapter.NewCLIDriver(cfg.Adapter)
	probeEngine := probe.New(driver, cfg.Probe)
	fastpathQueue := fastpath.New(cfg.FastPath)
	presenceEngine := presence.New(cfg.Presence)
	overridesStore := overrides.New(cfg.Overrides)
	schedulerEngine := scheduler.New(cfg.Scheduler)
	registryClient := registry.NewHTTPClient(cfg.Registry)
	pairingManager := pairing.New(conn, cfg.Pairing, fastpathQueue)
	watchdogLoop := watchdog.New(ctx, driver, cfg.Watchdog)

	announcer, err := zeroconf.New(ctx, cfg.Zeroconf)
	if err != nil {
		logger.Warn("[%s] zeroconf disabled: %v", config.AppName, err)
	}

	if err := pairingManager.Start(ctx); err != nil {
		logger.Fatal("[%s] failed to start pairing agent: %v", config.AppName, err)
	}

	overridesStore.Start(ctx)
	watchdogLoop.Start()
	if announcer != nil {
		if err := announcer.Start(); err != nil {
			logger.Warn("[%s] failed to start zeroconf announcer: %v", config.AppName, err)
		}
	}

	pollingLoop := engine.New(engine.Collaborators{
		Driver:    driver,
		Probe:     probeEngine,
		Pairing:   pairingManager,
		FastPath:  fastpathQueue,
		Registry:  registryClient,
		Scheduler: schedulerEngine,
		Presence:  presenceEngine,
		Overrides: overridesStore,
	}, cfg.Engine, cfg.Presence)
	pollingLoop.Run(ctx)

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("[%s] sd_notify READY failed: %v", config.AppName, err)
	} else if sent {
		logger.Debug("[%s] notified systemd of readiness", config.AppName)
	}

	logger.Info("[%s] started", config.AppName)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("[%s] shutdown signal received, stopping...", config.AppName)
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.Warn("[%s] sd_notify STOPPING failed: %v", config.AppName, err)
	}

	pollingLoop.Stop()
	watchdogLoop.Stop()
	overridesStore.Stop()
	pairingManager.Stop()
	registryClient.Close()
	if announcer != nil {
		announcer.Close()
	}
	cancel()

	logger.Info("[%s] stopped", config.AppName)
}

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  presenced [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  --config <path>  configuration file to use")
	fmt.Println("  --version        print version")
	fmt.Println("  -h, --help       this help message")
}
