// Package config loads toolkit configuration from an optional YAML
// file with sane defaults for the reference device, so every knob the
// probing engine exposes is a config value rather than a constant.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DeviceConfig identifies the target HID interface. Path wins over
// VID/PID when both are set; Interface is the preferred interface
// number when resolving a VID/PID pair.
type DeviceConfig struct {
	Path      string
	VendorID  uint16
	ProductID uint16
	Interface int
}

// ProbeConfig drives the continuous poll-and-diff strategy.
type ProbeConfig struct {
	ReportIDs     []byte
	PayloadLength int
	PollInterval  time.Duration
	Verbose       bool
}

// SnapshotConfig drives the capture-and-compare strategy.
type SnapshotConfig struct {
	Count    int
	Interval time.Duration
}

// InjectConfig drives the command-injection strategy.
type InjectConfig struct {
	Commands      [][]byte
	TargetReport  byte
	SettleDelay   time.Duration
	Retries       int
	ValidateIndex int
}

type LogConfig struct {
	Level string
	File  string
}

type Config struct {
	Device   DeviceConfig
	Probe    ProbeConfig
	Snapshot SnapshotConfig
	Inject   InjectConfig
	Log      LogConfig
}

// Candidate wake-up commands worth trying blind on an unknown device:
// common wake/report-request/mode-switch patterns plus two HID++-style
// frames seen on Logitech-like firmware.
var defaultCommands = []string{
	"01 00 00",
	"02 00 00",
	"04 00 00",
	"05 00 00",
	"06 00 00",
	"3F 00 00",
	"3F 01 00",
	"10 01 00",
	"11 01 00",
	"20 01 00",
	"21 01 00",
	"10 00 00 00",
	"11 00 1D 10 00 00 00",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.path", "")
	v.SetDefault("device.vendor_id", "0x3151")
	v.SetDefault("device.product_id", "0x5007")
	v.SetDefault("device.interface", 2)

	v.SetDefault("probe.report_ids", []string{})
	v.SetDefault("probe.payload_length", 32)
	v.SetDefault("probe.poll_interval", "500ms")
	v.SetDefault("probe.verbose", false)

	v.SetDefault("snapshot.count", 5)
	v.SetDefault("snapshot.interval", "2s")

	v.SetDefault("inject.commands", defaultCommands)
	v.SetDefault("inject.target_report", "0x3F")
	v.SetDefault("inject.settle_delay", "100ms")
	v.SetDefault("inject.retries", 3)
	v.SetDefault("inject.validate_index", 3)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// Load reads the config file at path, or looks for hidprobe.yaml in
// the working directory when path is empty. A missing default file is
// fine; an explicit path that can't be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("hidprobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Device.Path = v.GetString("device.path")
	cfg.Device.Interface = v.GetInt("device.interface")
	vid, err := ParseUint16(v.GetString("device.vendor_id"))
	if err != nil {
		return nil, fmt.Errorf("device.vendor_id: %w", err)
	}
	pid, err := ParseUint16(v.GetString("device.product_id"))
	if err != nil {
		return nil, fmt.Errorf("device.product_id: %w", err)
	}
	cfg.Device.VendorID = vid
	cfg.Device.ProductID = pid

	for _, tok := range v.GetStringSlice("probe.report_ids") {
		rid, err := ParseUint16(tok)
		if err != nil || rid > 0xFF {
			return nil, fmt.Errorf("probe.report_ids: bad report ID %q", tok)
		}
		cfg.Probe.ReportIDs = append(cfg.Probe.ReportIDs, byte(rid))
	}
	cfg.Probe.PayloadLength = v.GetInt("probe.payload_length")
	cfg.Probe.PollInterval = v.GetDuration("probe.poll_interval")
	cfg.Probe.Verbose = v.GetBool("probe.verbose")
	if cfg.Probe.PayloadLength < 1 {
		return nil, fmt.Errorf("probe.payload_length must be at least 1")
	}

	cfg.Snapshot.Count = v.GetInt("snapshot.count")
	cfg.Snapshot.Interval = v.GetDuration("snapshot.interval")
	if cfg.Snapshot.Count < 2 {
		return nil, fmt.Errorf("snapshot.count must be at least 2")
	}

	for _, raw := range v.GetStringSlice("inject.commands") {
		cmd, err := ParseCommand(raw)
		if err != nil {
			return nil, fmt.Errorf("inject.commands: %w", err)
		}
		cfg.Inject.Commands = append(cfg.Inject.Commands, cmd)
	}
	target, err := ParseUint16(v.GetString("inject.target_report"))
	if err != nil || target > 0xFF {
		return nil, fmt.Errorf("inject.target_report: bad report ID %q", v.GetString("inject.target_report"))
	}
	cfg.Inject.TargetReport = byte(target)
	cfg.Inject.SettleDelay = v.GetDuration("inject.settle_delay")
	cfg.Inject.Retries = v.GetInt("inject.retries")
	cfg.Inject.ValidateIndex = v.GetInt("inject.validate_index")
	if cfg.Inject.Retries < 1 {
		return nil, fmt.Errorf("inject.retries must be at least 1")
	}
	if cfg.Inject.ValidateIndex < 0 {
		return nil, fmt.Errorf("inject.validate_index must not be negative")
	}

	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.File = v.GetString("log.file")

	return cfg, nil
}

// ParseUint16 accepts decimal, 0x-prefixed, and h-suffixed hex tokens
// (0x3151 / 3151h / 12625).
func ParseUint16(tok string) (uint16, error) {
	cleaned := strings.ToLower(strings.TrimSpace(tok))
	base := 10
	if strings.HasPrefix(cleaned, "0x") {
		cleaned = cleaned[2:]
		base = 16
	} else if strings.HasSuffix(cleaned, "h") {
		cleaned = cleaned[:len(cleaned)-1]
		base = 16
	}
	n, err := strconv.ParseUint(cleaned, base, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", tok, err)
	}
	return uint16(n), nil
}

// ParseCommand decodes a hex command string like "3F 01 00" or
// "3f_01_00" into a wire buffer. A command needs at least the report
// ID byte.
func ParseCommand(raw string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", "_", "").Replace(raw)
	if len(cleaned) < 2 {
		return nil, fmt.Errorf("command %q is too short (need at least a report ID)", raw)
	}
	buf, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", raw, err)
	}
	return buf, nil
}
