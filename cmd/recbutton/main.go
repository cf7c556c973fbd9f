//go:build linux

// The recbutton daemon runs the control firmware for the wearable
// record button: button classification, the state controller, the BLE
// gateway, the display monitor, battery sampling and the watchdog, all
// connected through the in-process message bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"recbutton-go/bus"
	"recbutton-go/config"
	"recbutton-go/drivers/adc"
	"recbutton-go/drivers/ble"
	"recbutton-go/drivers/display"
	"recbutton-go/drivers/gpio"
	"recbutton-go/logger"
	"recbutton-go/services/battery"
	"recbutton-go/services/button"
	"recbutton-go/services/controller"
	"recbutton-go/services/gateway"
	"recbutton-go/services/hardware"
	"recbutton-go/services/uimon"
	"recbutton-go/services/watchdog"
	"recbutton-go/status"
	"recbutton-go/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply if empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "recbutton:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting", zap.String("device", cfg.BLE.DeviceName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := bus.NewBus(cfg.Bus.QueueLen)
	tracker := status.NewTracker(time.Now())

	// Hardware. Each driver failure is fatal except the display, which
	// degrades to a fake so the device still records headless.
	btnLine, err := gpio.NewRealInput(cfg.Hardware.Chip, cfg.Hardware.ButtonLine, true)
	if err != nil {
		return fmt.Errorf("button line: %w", err)
	}
	defer btnLine.Close()

	red, err := gpio.NewRealOutput(cfg.Hardware.Chip, cfg.Hardware.LEDRed)
	if err != nil {
		return fmt.Errorf("led red: %w", err)
	}
	defer red.Close()
	green, err := gpio.NewRealOutput(cfg.Hardware.Chip, cfg.Hardware.LEDGreen)
	if err != nil {
		return fmt.Errorf("led green: %w", err)
	}
	defer green.Close()
	blue, err := gpio.NewRealOutput(cfg.Hardware.Chip, cfg.Hardware.LEDBlue)
	if err != nil {
		return fmt.Errorf("led blue: %w", err)
	}
	defer blue.Close()
	buzzer, err := gpio.NewRealOutput(cfg.Hardware.Chip, cfg.Hardware.BuzzerLine)
	if err != nil {
		return fmt.Errorf("buzzer: %w", err)
	}
	defer buzzer.Close()

	disp := openDisplay(cfg.Hardware, log)
	defer disp.Close()

	transport := ble.NewBlueZ(cfg.BLE.DeviceName)
	defer transport.Close()

	source := adc.NewIIO(cfg.Battery.IIOPath, 0)

	// Services.
	gw := gateway.New(b.NewConnection("gateway"), tracker, transport, cfg.BLE, log.Named("gateway"))
	ctl := controller.New(b.NewConnection("controller"), tracker, gw, cfg.Timeouts, cfg.UI, log.Named("controller"))
	btn := button.New(b.NewConnection("button"), btnLine, cfg.Button, log.Named("button"))
	ui := uimon.New(b.NewConnection("uimon"), tracker, disp, cfg.UI, log.Named("uimon"))
	hw := hardware.New(b.NewConnection("hardware"), red, green, blue, buzzer, log.Named("hardware"))
	batt := battery.New(b.NewConnection("battery"), tracker, source, transport, cfg.Battery, log.Named("battery"))
	wd := watchdog.New(b.NewConnection("watchdog"), tracker, b, cfg.Watchdog, func() {
		// Let systemd restart us clean rather than limp on.
		log.Error("watchdog restart")
		os.Exit(1)
	}, log.Named("watchdog"))

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("ble gateway: %w", err)
	}
	ctl.Start(ctx)
	ui.Start(ctx)
	hw.Start(ctx)
	btn.Start(ctx)
	batt.Start(ctx)
	wd.Start(ctx)

	// Everything is listening; kick the machine out of Startup.
	boot := b.NewConnection("main")
	boot.Publish(boot.NewMessage(bus.TopicEvent,
		types.NewEvent(types.EvStartupComplete, types.StateLogo, "boot", types.OriginInternal), false))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	log.Info("shutting down", zap.String("signal", got.String()))

	// Farewell screen, then stop the services and clear the panel.
	boot.Publish(boot.NewMessage(bus.TopicRender, types.UIRenderCommand{
		Kind:         types.RenderLoadScreen,
		State:        types.StateShutdown,
		HighPriority: true,
		ForceRefresh: true,
		At:           time.Now(),
	}, false))
	time.Sleep(300 * time.Millisecond)

	cancel()
	time.Sleep(100 * time.Millisecond)
	disp.Clear()
	return nil
}

// openDisplay returns the OLED, or the recording fake if the panel is
// absent or unreadable.
func openDisplay(cfg config.HardwareConfig, log *zap.Logger) display.Display {
	i2c, err := display.OpenI2C(cfg.I2CPath)
	if err != nil {
		log.Warn("display bus unavailable, running headless", zap.Error(err))
		return display.NewFake()
	}
	oled, err := display.NewOLED(i2c, cfg.DisplayAddr)
	if err != nil {
		log.Warn("display init failed, running headless", zap.Error(err))
		i2c.Close()
		return display.NewFake()
	}
	return oled
}
