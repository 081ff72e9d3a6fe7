package main

import (
	"fmt"

	"github.com/dougsko/carbridged/pkg/canbus"
	"github.com/dougsko/carbridged/pkg/config"
	"github.com/dougsko/carbridged/pkg/engine"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/logging"
)

// CarBridgeDaemon wraps the engine with the process-level lifecycle the
// entrypoint drives.
type CarBridgeDaemon struct {
	config *config.Config
	engine *engine.Engine
}

// NewCarBridgeDaemon wires the engine against this host's backends: the
// vehicle-bus UART bridge, the gpiocdev lines, and the HTTPS firmware
// puller are real; the board-specific ADC/I2S/bluetooth/wifi drivers live
// behind their pkg/hardware contracts and are linked in at board
// integration time -- on a bench host the in-memory backends stand in so
// the whole supervisor, bus and vehicle-bus path run unmodified.
func NewCarBridgeDaemon(cfg *config.Config) (*CarBridgeDaemon, error) {
	deps := engine.Deps{
		NewTransport: func() (canbus.Transport, error) {
			return canbus.OpenSerialTransport(cfg.Vehiclebus.Device, cfg.Vehiclebus.BaudRate)
		},
		NewAdc: func(adcCfg hardware.AdcConfig) (hardware.ContinuousAdc, error) {
			return hardware.NewMockAdc(adcCfg), nil
		},
		NewI2s: func(i2sCfg hardware.I2sConfig) (hardware.I2sTx, error) {
			return hardware.NewMockI2s(i2sCfg), nil
		},
		BtStack: hardware.NewMockBluetoothStack(),
		Wifi:    &hardware.MockWifiStation{},
		Puller:  hardware.NewHttpFirmwarePuller(),
		Slot:    &hardware.MockFlashSlot{},
		Gpio: hardware.NewLinuxGPIO(
			cfg.Gpio.Chip,
			cfg.Gpio.UsbCutoff,
			cfg.Gpio.FlashBoot,
			cfg.Gpio.FlashReset,
		),
		RunningVersion: runningFirmwareVersion,
	}

	return &CarBridgeDaemon{
		config: cfg,
		engine: engine.New(cfg, deps),
	}, nil
}

// Start brings the engine (and with it every service) up.
func (d *CarBridgeDaemon) Start() error {
	logging.Infof("daemon", "starting on %s at %d baud",
		d.config.Vehiclebus.Device, d.config.Vehiclebus.BaudRate)
	if err := d.engine.Start(); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}
	return nil
}

// Stop tears the engine down gracefully.
func (d *CarBridgeDaemon) Stop() error {
	return d.engine.Stop()
}
