// Package config loads the device configuration from YAML. Missing
// fields are filled with defaults, so a partial file (or no file at
// all) yields a runnable configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Bus      BusConfig      `yaml:"bus"`
	Hardware HardwareConfig `yaml:"hardware"`
	Button   ButtonConfig   `yaml:"button"`
	BLE      BLEConfig      `yaml:"ble"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	UI       UIConfig       `yaml:"ui"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Battery  BatteryConfig  `yaml:"battery"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

type BusConfig struct {
	QueueLen int `yaml:"queue_len"`
}

// HardwareConfig names the GPIO lines. Offsets are character-device
// line offsets on the named chip.
type HardwareConfig struct {
	Chip        string `yaml:"chip"`
	ButtonLine  int    `yaml:"button_line"`
	LEDRed      int    `yaml:"led_red"`
	LEDGreen    int    `yaml:"led_green"`
	LEDBlue     int    `yaml:"led_blue"`
	BuzzerLine  int    `yaml:"buzzer_line"`
	I2CPath     string `yaml:"i2c_path"`
	DisplayAddr uint16 `yaml:"display_addr"`
}

type ButtonConfig struct {
	PollMs      int `yaml:"poll_ms"`
	DebounceMs  int `yaml:"debounce_ms"`
	LongPressMs int `yaml:"long_press_ms"`
}

type BLEConfig struct {
	DeviceName     string `yaml:"device_name"`
	Retries        int    `yaml:"retries"`          // attempts while stable
	RetriesShaky   int    `yaml:"retries_unstable"` // attempts while unstable
	SettleMs       int    `yaml:"settle_ms"`        // after each attempt
	BackoffMs      int    `yaml:"backoff_ms"`       // between attempts
	BurstRepeats   int    `yaml:"burst_repeats"`
	BurstSpacingMs int    `yaml:"burst_spacing_ms"`
	SuppressTailMs int    `yaml:"suppress_tail_ms"` // tail of the suppression window
	StabilityAgeS  int    `yaml:"stability_age_s"`  // connection age before "stable"
	FailureCap     int    `yaml:"failure_cap"`      // consecutive failures before "unstable"
}

// TimeoutConfig is the per-state timeout budget in seconds. Zero
// disables the timeout for that state group.
type TimeoutConfig struct {
	SetupLoginS   int `yaml:"setup_login_s"`
	UnlockS       int `yaml:"unlock_s"`
	RecordUploadS int `yaml:"record_upload_s"`
	ErrorS        int `yaml:"error_s"`
}

type UIConfig struct {
	ReconcileMs   int `yaml:"reconcile_ms"`
	FreezeCheckMs int `yaml:"freeze_check_ms"`
	FreezeAfterMs int `yaml:"freeze_after_ms"`
	LogoAltMs     int `yaml:"logo_alt_ms"`
	LoginPhaseMs  int `yaml:"login_phase_ms"`
	TickMs        int `yaml:"tick_ms"`
}

type WatchdogConfig struct {
	IntervalS        int    `yaml:"interval_s"`
	ActivityCeilingS int    `yaml:"activity_ceiling_s"`
	ErrorCap         int    `yaml:"error_cap"`
	DropWarnStep     uint32 `yaml:"drop_warn_step"` // warn every N bus drops
}

type BatteryConfig struct {
	IntervalS    int     `yaml:"interval_s"`
	Samples      int     `yaml:"samples"`
	DividerRatio float64 `yaml:"divider_ratio"`
	FullMilliV   int     `yaml:"full_mv"`
	EmptyMilliV  int     `yaml:"empty_mv"`
	LowWarnPct   float64 `yaml:"low_warn_pct"`
	IIOPath      string  `yaml:"iio_path"`
}

// Default returns a Config with the tuned production values.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Bus: BusConfig{QueueLen: 16},
		Hardware: HardwareConfig{
			Chip:        "gpiochip0",
			ButtonLine:  17,
			LEDRed:      22,
			LEDGreen:    23,
			LEDBlue:     24,
			BuzzerLine:  25,
			I2CPath:     "/dev/i2c-1",
			DisplayAddr: 0x3C,
		},
		Button: ButtonConfig{
			PollMs:      10,
			DebounceMs:  50,
			LongPressMs: 2000,
		},
		BLE: BLEConfig{
			DeviceName:     "RecBtn",
			Retries:        3,
			RetriesShaky:   5,
			SettleMs:       20,
			BackoffMs:      80,
			BurstRepeats:   3,
			BurstSpacingMs: 30,
			SuppressTailMs: 120,
			StabilityAgeS:  10,
			FailureCap:     2,
		},
		Timeouts: TimeoutConfig{
			SetupLoginS:   180,
			UnlockS:       120,
			RecordUploadS: 240,
			ErrorS:        30,
		},
		UI: UIConfig{
			ReconcileMs:   2000,
			FreezeCheckMs: 5000,
			FreezeAfterMs: 10000,
			LogoAltMs:     3000,
			LoginPhaseMs:  3500,
			TickMs:        100,
		},
		Watchdog: WatchdogConfig{
			IntervalS:        5,
			ActivityCeilingS: 30,
			ErrorCap:         10,
			DropWarnStep:     32,
		},
		Battery: BatteryConfig{
			IntervalS:    30,
			Samples:      8,
			DividerRatio: 2.0,
			FullMilliV:   4200,
			EmptyMilliV:  3300,
			LowWarnPct:   15,
			IIOPath:      "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
		},
	}
}

// Load reads and parses a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks the config for values the services cannot run with.
func (c *Config) Validate() error {
	if c.Bus.QueueLen <= 0 {
		return fmt.Errorf("bus.queue_len must be positive")
	}
	if c.Button.PollMs <= 0 || c.Button.DebounceMs < 0 {
		return fmt.Errorf("button poll/debounce must be positive")
	}
	if c.Button.LongPressMs <= c.Button.DebounceMs {
		return fmt.Errorf("button.long_press_ms must exceed debounce_ms")
	}
	if c.BLE.Retries <= 0 || c.BLE.RetriesShaky < c.BLE.Retries {
		return fmt.Errorf("ble.retries must be positive and <= retries_unstable")
	}
	if c.BLE.BurstRepeats <= 0 || c.BLE.BurstSpacingMs < 0 {
		return fmt.Errorf("ble burst parameters out of range")
	}
	if c.UI.ReconcileMs <= 0 || c.UI.FreezeCheckMs <= 0 || c.UI.FreezeAfterMs <= 0 {
		return fmt.Errorf("ui intervals must be positive")
	}
	if c.UI.TickMs <= 0 {
		return fmt.Errorf("ui.tick_ms must be positive")
	}
	if c.Watchdog.IntervalS <= 0 || c.Watchdog.ActivityCeilingS <= 0 {
		return fmt.Errorf("watchdog intervals must be positive")
	}
	if c.Watchdog.ErrorCap <= 0 {
		return fmt.Errorf("watchdog.error_cap must be positive")
	}
	if c.Battery.Samples <= 0 || c.Battery.DividerRatio <= 0 {
		return fmt.Errorf("battery sampling parameters out of range")
	}
	if c.Battery.FullMilliV <= c.Battery.EmptyMilliV {
		return fmt.Errorf("battery.full_mv must exceed empty_mv")
	}
	return nil
}

// Duration helpers keep call sites free of unit arithmetic.

func (c ButtonConfig) Poll() time.Duration      { return time.Duration(c.PollMs) * time.Millisecond }
func (c ButtonConfig) Debounce() time.Duration  { return time.Duration(c.DebounceMs) * time.Millisecond }
func (c ButtonConfig) LongPress() time.Duration { return time.Duration(c.LongPressMs) * time.Millisecond }

func (c BLEConfig) Settle() time.Duration       { return time.Duration(c.SettleMs) * time.Millisecond }
func (c BLEConfig) Backoff() time.Duration      { return time.Duration(c.BackoffMs) * time.Millisecond }
func (c BLEConfig) BurstSpacing() time.Duration { return time.Duration(c.BurstSpacingMs) * time.Millisecond }
func (c BLEConfig) SuppressTail() time.Duration { return time.Duration(c.SuppressTailMs) * time.Millisecond }
func (c BLEConfig) StabilityAge() time.Duration { return time.Duration(c.StabilityAgeS) * time.Second }

func (c UIConfig) Reconcile() time.Duration   { return time.Duration(c.ReconcileMs) * time.Millisecond }
func (c UIConfig) FreezeCheck() time.Duration { return time.Duration(c.FreezeCheckMs) * time.Millisecond }
func (c UIConfig) FreezeAfter() time.Duration { return time.Duration(c.FreezeAfterMs) * time.Millisecond }
func (c UIConfig) LogoAlt() time.Duration     { return time.Duration(c.LogoAltMs) * time.Millisecond }
func (c UIConfig) LoginPhase() time.Duration  { return time.Duration(c.LoginPhaseMs) * time.Millisecond }
func (c UIConfig) Tick() time.Duration        { return time.Duration(c.TickMs) * time.Millisecond }

func (c WatchdogConfig) Interval() time.Duration { return time.Duration(c.IntervalS) * time.Second }
func (c WatchdogConfig) ActivityCeiling() time.Duration {
	return time.Duration(c.ActivityCeilingS) * time.Second
}

func (c BatteryConfig) Interval() time.Duration { return time.Duration(c.IntervalS) * time.Second }
