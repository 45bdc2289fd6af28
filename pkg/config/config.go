// Package config holds the station configuration. Defaults are
// overridden by an optional YAML file, then AMBER_* environment
// variables, then command line flags.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/amber-eeg/prodloader/pkg/report"
	"github.com/amber-eeg/prodloader/pkg/validate"
)

// EnvPrefix prefixes environment overrides, e.g. AMBER_TIMING_CAPTURE=3s.
const EnvPrefix = "AMBER"

// Timing are the delays and bounds of a board session.
type Timing struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	LongQuery       time.Duration `mapstructure:"long_query"`
	Settle          time.Duration `mapstructure:"settle"`
	BootloaderEntry time.Duration `mapstructure:"bootloader_entry"`
	DataWait        time.Duration `mapstructure:"data_wait"`
	PowerSettle     time.Duration `mapstructure:"power_settle"`
	TestSettle      time.Duration `mapstructure:"test_settle"`
	Capture         time.Duration `mapstructure:"capture"`
}

// Attempts bound the retried stages.
type Attempts struct {
	Connect int `mapstructure:"connect"`
	Query   int `mapstructure:"query"`
	Supply  int `mapstructure:"supply"`
	Signal  int `mapstructure:"signal"`
}

// Config defines the configurations of a station.
type Config struct {
	// File is the optional YAML file, it is only settable by flag.
	File string `mapstructure:"-"`

	Image       string `mapstructure:"image"`
	LogDir      string `mapstructure:"log_dir"`
	SetSerial   bool   `mapstructure:"set_serial"`
	Simulate    bool   `mapstructure:"simulate"`
	Station     string `mapstructure:"station"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	MQTTURL     string `mapstructure:"mqtt_url"`
	USBOnly     bool   `mapstructure:"usb_only"`

	Timing   Timing                `mapstructure:"timing"`
	Attempts Attempts              `mapstructure:"attempts"`
	Limits   validate.Limits       `mapstructure:"limits"`
	Supplies validate.SupplyLimits `mapstructure:"supplies"`
	Ledger   report.LedgerConfig   `mapstructure:"ledger"`
}

var defaultConfig = Config{
	Image:  "Luchador.hex",
	LogDir: "Logs",
	Timing: Timing{
		PollInterval:    500 * time.Millisecond,
		ProbeTimeout:    time.Second,
		ReadTimeout:     time.Second,
		QueryTimeout:    time.Second,
		LongQuery:       2 * time.Second,
		Settle:          time.Second,
		BootloaderEntry: 2 * time.Second,
		DataWait:        10 * time.Second,
		PowerSettle:     3 * time.Second,
		TestSettle:      500 * time.Millisecond,
		Capture:         5 * time.Second,
	},
	Attempts: Attempts{
		Connect: 25,
		Query:   5,
		Supply:  2,
		Signal:  2,
	},
	Limits:   validate.DefaultLimits(),
	Supplies: validate.DefaultSupplyLimits(),
	Ledger: report.LedgerConfig{
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 90,
	},
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"board-logs":   "log_dir",
	"setser":       "set_serial",
	"simulate":     "simulate",
	"station":      "station",
	"metrics-addr": "metrics_addr",
	"mqtt":         "mqtt_url",
	"usb-only":     "usb_only",
	"ledger":       "ledger.filename",
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.File, "config", defaultConfig.File, "Optional YAML configuration file.")
	flag.StringVar(&defaultConfig.LogDir, "board-logs", defaultConfig.LogDir, "Directory of the per board logs.")
	flag.BoolVar(&defaultConfig.SetSerial, "setser", defaultConfig.SetSerial, "Write assigned serial numbers to the board.")
	flag.BoolVar(&defaultConfig.Simulate, "simulate", defaultConfig.Simulate, "Run against a simulated board.")
	flag.StringVar(&defaultConfig.Station, "station", defaultConfig.Station, "Station ID, derived from the machine ID if empty.")
	flag.StringVar(&defaultConfig.MetricsAddr, "metrics-addr", defaultConfig.MetricsAddr, "Listen address of the metrics endpoint, e.g. :9100.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL to publish results, e.g. mqtt://localhost:1883/amber/.")
	flag.BoolVar(&defaultConfig.USBOnly, "usb-only", defaultConfig.USBOnly, "Only watch USB serial ports.")
	flag.StringVar(&defaultConfig.Ledger.Filename, "ledger", defaultConfig.Ledger.Filename, "Results ledger file, disabled if empty.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// SetFlags returns the configuration keys of the flags given on the
// command line.
func SetFlags() []string {
	var keys []string
	flag.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			keys = append(keys, key)
		}
	})
	return keys
}

// Load overlays the file named by c.File and the environment onto c.
// Keys listed in keep retain the value in c.
func (c *Config) Load(keep ...string) (*Config, error) {
	v := viper.New()
	settings := c.settings()
	for key, val := range settings {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if c.File != "" {
		v.SetConfigFile(c.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", c.File, err)
		}
	}
	for _, key := range keep {
		if val, ok := settings[key]; ok {
			v.Set(key, val)
		}
	}

	conf := Config{File: c.File}
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate rejects settings a session cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Image == "":
		return fmt.Errorf("image path is empty")
	case c.Limits.Channels <= 0:
		return fmt.Errorf("limits.channels must be positive")
	case c.Limits.SampleInterval <= 0:
		return fmt.Errorf("limits.sample_interval must be positive")
	case c.Timing.PollInterval <= 0:
		return fmt.Errorf("timing.poll_interval must be positive")
	case c.Attempts.Connect <= 0 || c.Attempts.Query <= 0 || c.Attempts.Supply <= 0 || c.Attempts.Signal <= 0:
		return fmt.Errorf("attempts must be positive")
	}
	return nil
}

func (c *Config) settings() map[string]interface{} {
	m := map[string]interface{}{
		"image":        c.Image,
		"log_dir":      c.LogDir,
		"set_serial":   c.SetSerial,
		"simulate":     c.Simulate,
		"station":      c.Station,
		"metrics_addr": c.MetricsAddr,
		"mqtt_url":     c.MQTTURL,
		"usb_only":     c.USBOnly,

		"timing.poll_interval":    c.Timing.PollInterval,
		"timing.probe_timeout":    c.Timing.ProbeTimeout,
		"timing.read_timeout":     c.Timing.ReadTimeout,
		"timing.query_timeout":    c.Timing.QueryTimeout,
		"timing.long_query":       c.Timing.LongQuery,
		"timing.settle":           c.Timing.Settle,
		"timing.bootloader_entry": c.Timing.BootloaderEntry,
		"timing.data_wait":        c.Timing.DataWait,
		"timing.power_settle":     c.Timing.PowerSettle,
		"timing.test_settle":      c.Timing.TestSettle,
		"timing.capture":          c.Timing.Capture,

		"attempts.connect": c.Attempts.Connect,
		"attempts.query":   c.Attempts.Query,
		"attempts.supply":  c.Attempts.Supply,
		"attempts.signal":  c.Attempts.Signal,

		"limits.channels":        c.Limits.Channels,
		"limits.max_edge_offset": c.Limits.MaxEdgeOffset,
		"limits.sample_interval": c.Limits.SampleInterval,

		"ledger.filename":     c.Ledger.Filename,
		"ledger.max_size_mb":  c.Ledger.MaxSizeMB,
		"ledger.max_backups":  c.Ledger.MaxBackups,
		"ledger.max_age_days": c.Ledger.MaxAgeDays,
		"ledger.compress":     c.Ledger.Compress,
	}
	ranges := map[string]validate.Range{
		"limits.amp_high":  c.Limits.AmpHigh,
		"limits.amp_low":   c.Limits.AmpLow,
		"limits.frequency": c.Limits.Frequency,
		"supplies.vsys":    c.Supplies.VSys,
		"supplies.v33":     c.Supplies.V33,
		"supplies.v25p":    c.Supplies.V25Pos,
		"supplies.v25n":    c.Supplies.V25Neg,
	}
	for key, r := range ranges {
		m[key+".min"] = r.Min
		m[key+".max"] = r.Max
	}
	return m
}
