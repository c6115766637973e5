// Package config loads presenced's runtime configuration from environment
// variables and an optional YAML file, following the precedence order
// env > file > default that viper gives us for free.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nearbyhq/presenced/logger"
)

const (
	AppName = "presenced"

	defaultBluetoothAdapterPath = "/org/bluez/hci0"
)

// AdapterConfig tunes the CLI-backed Bluetooth adapter driver.
type AdapterConfig struct {
	AdapterPath            string
	DeviceInfoCacheSeconds int
}

// ProbeConfig tunes the l2ping/connect-probe tiered presence primitive.
type ProbeConfig struct {
	L2pingTimeoutSeconds      int
	L2pingCount               int
	L2pingResistThreshold     int
	ConnectProbeTimeoutSeconds int
}

// PairingConfig tunes the pairing agent's state machine.
type PairingConfig struct {
	PairingTimeoutSeconds int
}

// WatchdogConfig tunes the adapter health watchdog.
type WatchdogConfig struct {
	IntervalSeconds       int
	AdvertiseNudgeCommand string
}

// SchedulerConfig tunes the active/warm/cold tier classifier and rotation.
type SchedulerConfig struct {
	ActiveTierMax            int
	WarmTierBatch            int
	ColdTierBatch            int
	WarmTierThresholdSeconds int
}

// PresenceConfig tunes the presence decision engine.
type PresenceConfig struct {
	PresentTTLSeconds               int
	AbsenceHoldSeconds              int
	AbsenceConsecutiveMissThreshold int
	EnableAdaptiveHysteresis        bool
	FlapMonitorWindowSeconds        int
	FlapAlertThreshold              int
	EnableAutoFreezeOnFlap          bool
	AutoFreezeDurationSeconds       int
	AllSilentAbsenceCycles          int
}

// EngineConfig tunes the polling loop orchestrator.
type EngineConfig struct {
	PollingIntervalSeconds      int
	GracePeriodSeconds          int
	RegistrationRetrySeconds    int
	UnpublishedDeviceTTLSeconds int
}

// FastPathConfig tunes the bounded queue between the pairing agent and the loop.
type FastPathConfig struct {
	Enabled                 bool
	EventSuppressionSeconds int
	QueueCapacity           int
}

// RegistryConfig points the remote registry client at a Convex-shaped deployment.
type RegistryConfig struct {
	DeploymentURL          string
	SelfHostedURL          string
	SelfHostedAdminKey     string
	QueryTimeoutSeconds    int
	MaxConsecutiveTimeouts int
}

// OverridesConfig points at the manual quarantine/force-status override file.
type OverridesConfig struct {
	File           string
	RefreshSeconds int
}

// ZeroconfConfig tunes mDNS advertisement of the daemon itself.
type ZeroconfConfig struct {
	Enabled      bool
	InstanceName string
	ServiceType  string
	Domain       string
	Port         int
	AdapterPath  string
}

// Config is the fully resolved runtime configuration for presenced.
type Config struct {
	LogLevel logger.Level

	Adapter   *AdapterConfig
	Probe     *ProbeConfig
	Pairing   *PairingConfig
	Watchdog  *WatchdogConfig
	Scheduler *SchedulerConfig
	Presence  *PresenceConfig
	Engine    *EngineConfig
	FastPath  *FastPathConfig
	Registry  *RegistryConfig
	Overrides *OverridesConfig
	Zeroconf  *ZeroconfConfig
}

// validateConfigPath rejects paths without a .yaml/.yml extension, paths that
// do not exist, and directories.
func validateConfigPath(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("config: unsupported config file extension %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: cannot stat config file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: config path %q is a directory", path)
	}
	return nil
}

// parseLogLevel maps a case-insensitive level name to logger.Level, defaulting
// to WARN for anything unrecognized (including empty).
func parseLogLevel(s string) logger.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return logger.DEBUG
	case "INFO":
		return logger.INFO
	case "WARN", "WARNING":
		return logger.WARN
	case "ERROR":
		return logger.ERROR
	case "FATAL":
		return logger.FATAL
	default:
		return logger.WARN
	}
}

func setDefaults() {
	viper.SetDefault("logLevel", "INFO")
	viper.SetDefault("bluetoothAdapterPath", defaultBluetoothAdapterPath)

	viper.SetDefault("adapter.deviceInfoCacheSeconds", 10)

	viper.SetDefault("probe.l2pingTimeoutSeconds", 5)
	viper.SetDefault("probe.l2pingCount", 1)
	viper.SetDefault("probe.l2pingResistThreshold", 3)
	viper.SetDefault("probe.connectProbeTimeoutSeconds", 8)

	viper.SetDefault("pairing.pairingTimeoutSeconds", 60)

	viper.SetDefault("watchdog.intervalSeconds", 30)
	viper.SetDefault("watchdog.advertiseNudgeCommand", "")

	viper.SetDefault("scheduler.activeTierMax", 10)
	viper.SetDefault("scheduler.warmTierBatch", 5)
	viper.SetDefault("scheduler.coldTierBatch", 3)
	viper.SetDefault("scheduler.warmTierThresholdSeconds", 3600)

	viper.SetDefault("presence.presentTTLSeconds", 90)
	viper.SetDefault("presence.absenceHoldSeconds", 300)
	viper.SetDefault("presence.absenceConsecutiveMissThreshold", 3)
	viper.SetDefault("presence.enableAdaptiveHysteresis", true)
	viper.SetDefault("presence.flapMonitorWindowSeconds", 3600)
	viper.SetDefault("presence.flapAlertThreshold", 4)
	viper.SetDefault("presence.enableAutoFreezeOnFlap", true)
	viper.SetDefault("presence.autoFreezeDurationSeconds", 300)
	viper.SetDefault("presence.allSilentAbsenceCycles", 2)

	viper.SetDefault("engine.pollingIntervalSeconds", 30)
	viper.SetDefault("engine.gracePeriodSeconds", 86400)
	viper.SetDefault("engine.registrationRetrySeconds", 60)
	viper.SetDefault("engine.unpublishedDeviceTTLSeconds", 3600)

	viper.SetDefault("fastpath.enabled", true)
	viper.SetDefault("fastpath.eventSuppressionSeconds", 10)
	viper.SetDefault("fastpath.queueCapacity", 128)

	viper.SetDefault("registry.convexDeploymentUrl", "")
	viper.SetDefault("registry.convexSelfHostedUrl", "")
	viper.SetDefault("registry.convexSelfHostedAdminKey", "")
	viper.SetDefault("registry.queryTimeoutSeconds", 5)
	viper.SetDefault("registry.maxConsecutiveTimeouts", 5)

	viper.SetDefault("overrides.deviceOverrideFile", "/etc/presenced/overrides.json")
	viper.SetDefault("overrides.deviceOverrideRefreshSeconds", 15)

	viper.SetDefault("zeroconf.enabled", false)
	viper.SetDefault("zeroconf.instanceName", AppName)
	viper.SetDefault("zeroconf.serviceType", "_presenced._tcp")
	viper.SetDefault("zeroconf.domain", "local.")
	viper.SetDefault("zeroconf.port", 8018)
}

// New resolves configuration from (in increasing precedence) defaults, an
// optional YAML file located at configFile or under /etc/presenced or
// $HOME/.config/presenced, and environment variables bound per-key below.
func New(configFile *string) (*Config, error) {
	if configFile != nil && *configFile == "" {
		configFile = nil
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnv()

	if configFile != nil {
		if err := validateConfigPath(*configFile); err != nil {
			return nil, err
		}
		viper.SetConfigFile(*configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(filepath.Join("/etc", AppName))
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", AppName))
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, isNotFound := err.(viper.ConfigFileNotFoundError); !isNotFound {
			if configFile != nil {
				return nil, fmt.Errorf("config: failed to read config file: %w", err)
			}
			log.Printf("warning: failed to read config: %v", err)
		}
	}

	cfg := &Config{
		LogLevel: parseLogLevel(viper.GetString("logLevel")),

		Adapter: &AdapterConfig{
			AdapterPath:            viper.GetString("bluetoothAdapterPath"),
			DeviceInfoCacheSeconds: viper.GetInt("adapter.deviceInfoCacheSeconds"),
		},
		Probe: &ProbeConfig{
			L2pingTimeoutSeconds:       viper.GetInt("probe.l2pingTimeoutSeconds"),
			L2pingCount:                viper.GetInt("probe.l2pingCount"),
			L2pingResistThreshold:      viper.GetInt("probe.l2pingResistThreshold"),
			ConnectProbeTimeoutSeconds: viper.GetInt("probe.connectProbeTimeoutSeconds"),
		},
		Pairing: &PairingConfig{
			PairingTimeoutSeconds: viper.GetInt("pairing.pairingTimeoutSeconds"),
		},
		Watchdog: &WatchdogConfig{
			IntervalSeconds:       viper.GetInt("watchdog.intervalSeconds"),
			AdvertiseNudgeCommand: viper.GetString("watchdog.advertiseNudgeCommand"),
		},
		Scheduler: &SchedulerConfig{
			ActiveTierMax:            viper.GetInt("scheduler.activeTierMax"),
			WarmTierBatch:            viper.GetInt("scheduler.warmTierBatch"),
			ColdTierBatch:            viper.GetInt("scheduler.coldTierBatch"),
			WarmTierThresholdSeconds: viper.GetInt("scheduler.warmTierThresholdSeconds"),
		},
		Presence: &PresenceConfig{
			PresentTTLSeconds:               viper.GetInt("presence.presentTTLSeconds"),
			AbsenceHoldSeconds:              viper.GetInt("presence.absenceHoldSeconds"),
			AbsenceConsecutiveMissThreshold: viper.GetInt("presence.absenceConsecutiveMissThreshold"),
			EnableAdaptiveHysteresis:        viper.GetBool("presence.enableAdaptiveHysteresis"),
			FlapMonitorWindowSeconds:        viper.GetInt("presence.flapMonitorWindowSeconds"),
			FlapAlertThreshold:              viper.GetInt("presence.flapAlertThreshold"),
			EnableAutoFreezeOnFlap:          viper.GetBool("presence.enableAutoFreezeOnFlap"),
			AutoFreezeDurationSeconds:       viper.GetInt("presence.autoFreezeDurationSeconds"),
			AllSilentAbsenceCycles:          viper.GetInt("presence.allSilentAbsenceCycles"),
		},
		Engine: &EngineConfig{
			PollingIntervalSeconds:      viper.GetInt("engine.pollingIntervalSeconds"),
			GracePeriodSeconds:          viper.GetInt("engine.gracePeriodSeconds"),
			RegistrationRetrySeconds:    viper.GetInt("engine.registrationRetrySeconds"),
			UnpublishedDeviceTTLSeconds: viper.GetInt("engine.unpublishedDeviceTTLSeconds"),
		},
		FastPath: &FastPathConfig{
			Enabled:                 viper.GetBool("fastpath.enabled"),
			EventSuppressionSeconds: viper.GetInt("fastpath.eventSuppressionSeconds"),
			QueueCapacity:           viper.GetInt("fastpath.queueCapacity"),
		},
		Registry: &RegistryConfig{
			DeploymentURL:          viper.GetString("registry.convexDeploymentUrl"),
			SelfHostedURL:          viper.GetString("registry.convexSelfHostedUrl"),
			SelfHostedAdminKey:     viper.GetString("registry.convexSelfHostedAdminKey"),
			QueryTimeoutSeconds:    viper.GetInt("registry.queryTimeoutSeconds"),
			MaxConsecutiveTimeouts: viper.GetInt("registry.maxConsecutiveTimeouts"),
		},
		Overrides: &OverridesConfig{
			File:           viper.GetString("overrides.deviceOverrideFile"),
			RefreshSeconds: viper.GetInt("overrides.deviceOverrideRefreshSeconds"),
		},
		Zeroconf: &ZeroconfConfig{
			Enabled:      viper.GetBool("zeroconf.enabled"),
			InstanceName: viper.GetString("zeroconf.instanceName"),
			ServiceType:  viper.GetString("zeroconf.serviceType"),
			Domain:       viper.GetString("zeroconf.domain"),
			Port:         viper.GetInt("zeroconf.port"),
			AdapterPath:  viper.GetString("bluetoothAdapterPath"),
		},
	}

	if cfg.Registry.QueryTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: registry.queryTimeoutSeconds must be positive, got %d", cfg.Registry.QueryTimeoutSeconds)
	}
	if cfg.Engine.PollingIntervalSeconds <= 0 {
		return nil, fmt.Errorf("config: engine.pollingIntervalSeconds must be positive, got %d", cfg.Engine.PollingIntervalSeconds)
	}
	if cfg.Zeroconf.Port <= 0 || cfg.Zeroconf.Port > 65535 {
		return nil, fmt.Errorf("config: invalid zeroconf port: %d", cfg.Zeroconf.Port)
	}

	return cfg, nil
}

// bindEnv binds every spec'd environment variable to its viper key so that,
// regardless of AutomaticEnv's PRESENCED_-prefix-free matching, the exact
// uppercase names from the external interface contract work.
func bindEnv() {
	pairs := map[string]string{
		"POLLING_INTERVAL_SECONDS":            "engine.pollingIntervalSeconds",
		"GRACE_PERIOD_SECONDS":                "engine.gracePeriodSeconds",
		"REGISTRATION_RETRY_SECONDS":          "engine.registrationRetrySeconds",
		"UNPUBLISHED_DEVICE_TTL_SECONDS":      "engine.unpublishedDeviceTTLSeconds",
		"PRESENT_TTL_SECONDS":                 "presence.presentTTLSeconds",
		"ABSENCE_HOLD_SECONDS":                "presence.absenceHoldSeconds",
		"ABSENCE_CONSECUTIVE_MISS_THRESHOLD":  "presence.absenceConsecutiveMissThreshold",
		"ENABLE_ADAPTIVE_HYSTERESIS":          "presence.enableAdaptiveHysteresis",
		"FLAP_MONITOR_WINDOW_SECONDS":         "presence.flapMonitorWindowSeconds",
		"FLAP_ALERT_THRESHOLD":                "presence.flapAlertThreshold",
		"ENABLE_AUTO_FREEZE_ON_FLAP":          "presence.enableAutoFreezeOnFlap",
		"AUTO_FREEZE_DURATION_SECONDS":        "presence.autoFreezeDurationSeconds",
		"ALL_SILENT_ABSENCE_CYCLES":           "presence.allSilentAbsenceCycles",
		"ACTIVE_TIER_MAX":                     "scheduler.activeTierMax",
		"WARM_TIER_BATCH":                     "scheduler.warmTierBatch",
		"COLD_TIER_BATCH":                     "scheduler.coldTierBatch",
		"WARM_TIER_THRESHOLD_SECONDS":         "scheduler.warmTierThresholdSeconds",
		"L2PING_TIMEOUT_SECONDS":              "probe.l2pingTimeoutSeconds",
		"L2PING_COUNT":                        "probe.l2pingCount",
		"L2PING_RESIST_THRESHOLD":             "probe.l2pingResistThreshold",
		"CONNECT_PROBE_TIMEOUT_SECONDS":       "probe.connectProbeTimeoutSeconds",
		"DEVICE_INFO_CACHE_SECONDS":           "adapter.deviceInfoCacheSeconds",
		"PAIRING_TIMEOUT_SECONDS":             "pairing.pairingTimeoutSeconds",
		"ADAPTER_WATCHDOG_INTERVAL_SECONDS":   "watchdog.intervalSeconds",
		"ADVERTISE_NUDGE_COMMAND":             "watchdog.advertiseNudgeCommand",
		"FAST_PATH_QUEUE_ENABLED":             "fastpath.enabled",
		"FAST_PATH_EVENT_SUPPRESSION_SECONDS": "fastpath.eventSuppressionSeconds",
		"CONVEX_QUERY_TIMEOUT":                "registry.queryTimeoutSeconds",
		"MAX_CONSECUTIVE_TIMEOUTS":            "registry.maxConsecutiveTimeouts",
		"CONVEX_DEPLOYMENT_URL":               "registry.convexDeploymentUrl",
		"CONVEX_SELF_HOSTED_URL":              "registry.convexSelfHostedUrl",
		"CONVEX_SELF_HOSTED_ADMIN_KEY":        "registry.convexSelfHostedAdminKey",
		"DEVICE_OVERRIDE_FILE":                "overrides.deviceOverrideFile",
		"DEVICE_OVERRIDE_REFRESH_SECONDS":     "overrides.deviceOverrideRefreshSeconds",
		"LOG_LEVEL":                           "logLevel",
		"BLUETOOTH_ADAPTER_PATH":              "bluetoothAdapterPath",
	}

	for env, key := range pairs {
		_ = viper.BindEnv(key, env)
	}
}
