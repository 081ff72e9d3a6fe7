// Package engine assembles the whole bridge: it owns the bus, constructs
// every service against the injected hardware backends, runs them on their
// own goroutines, publishes the initial system record, and tears the fleet
// down with an aggregate error on Stop. It also runs the periodic
// diagnostics task.
package engine

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dougsko/carbridged/pkg/bus"
	"github.com/dougsko/carbridged/pkg/canbus"
	"github.com/dougsko/carbridged/pkg/config"
	"github.com/dougsko/carbridged/pkg/hardware"
	"github.com/dougsko/carbridged/pkg/lifecycle"
	"github.com/dougsko/carbridged/pkg/logging"
	"github.com/dougsko/carbridged/pkg/services/audiomux"
	"github.com/dougsko/carbridged/pkg/services/bluetooth"
	"github.com/dougsko/carbridged/pkg/services/commands"
	"github.com/dougsko/carbridged/pkg/services/displayrender"
	"github.com/dougsko/carbridged/pkg/services/microphone"
	"github.com/dougsko/carbridged/pkg/services/ota"
	"github.com/dougsko/carbridged/pkg/services/speakers"
	"github.com/dougsko/carbridged/pkg/services/vehiclebus"
)

// diagInterval is the cadence of the heap/goroutine diagnostics log line.
const diagInterval = 10 * time.Second

// Deps are the hardware backends the engine wires into the services. The
// daemon injects real Linux backends where they exist (serial transport,
// GPIO, HTTP firmware pull) and the board-specific backends elsewhere;
// tests inject mocks throughout.
type Deps struct {
	NewTransport func() (canbus.Transport, error)
	NewAdc       microphone.AdcFactory
	NewI2s       speakers.I2sFactory
	BtStack      hardware.BluetoothStack
	Wifi         hardware.WifiStation
	Puller       hardware.FirmwarePuller
	Slot         hardware.FlashSlot
	Gpio         hardware.GPIOController

	// RunningVersion is the monotonic version of the firmware currently
	// executing, compared against pulled OTA images.
	RunningVersion uint32
}

type namedService struct {
	name string
	run  func(context.Context) error
}

// Engine owns the bus and the service fleet.
type Engine struct {
	cfg  *config.Config
	deps Deps
	bus  *bus.Bus

	services []namedService

	cancel context.CancelFunc
	wg     sync.WaitGroup

	errMu   sync.Mutex
	runErrs []error
}

// New constructs the engine and every service. Nothing runs until Start.
func New(cfg *config.Config, deps Deps) *Engine {
	b := bus.New(cfg.Audio.IncomingCapacity, cfg.Audio.OutgoingCapacity)
	e := &Engine{cfg: cfg, deps: deps, bus: b}

	btSvc := bluetooth.New(b, bluetooth.Config{
		DeviceName:   cfg.Bluetooth.DeviceName,
		Pin:          cfg.Bluetooth.Pin,
		Discoverable: cfg.Bluetooth.Discoverable,
	}, deps.BtStack)

	e.services = []namedService{
		{"vehiclebus", vehiclebus.New(b, canbus.Publisher(cfg.Vehiclebus.PublisherID), deps.NewTransport).Run},
		{"bluetooth", btSvc.Run},
		{"audiomux", audiomux.New(b).Run},
		{"microphone", microphone.New(b, cfg.Audio.AdcChannel, deps.NewAdc, btSvc.RequestOutgoingData).Run},
		{"speakers", speakers.New(b, deps.NewI2s).Run},
		{"commands", commands.New(b, e.flashRequest).Run},
		{"radio_display", displayrender.NewRadio(b).Run},
		{"cockpit_display", displayrender.NewCockpit(b).Run},
		{"ota", ota.New(b, ota.Config{
			FirmwareURL:    cfg.Wifi.FirmwareURL,
			ScanTimeout:    time.Duration(cfg.Wifi.ScanTimeout) * time.Millisecond,
			RunningVersion: deps.RunningVersion,
		}, deps.Wifi, deps.Puller, deps.Slot).Run},
	}
	return e
}

// Bus exposes the shared bus, mainly so tests and the daemon can observe
// system state.
func (e *Engine) Bus() *bus.Bus { return e.bus }

// Start initializes the GPIO controller, launches every service and the
// diagnostics task, and publishes the initial system record: normal mode,
// system enabled.
func (e *Engine) Start() error {
	if err := e.deps.Gpio.Initialize(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for _, svc := range e.services {
		svc := svc
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := svc.run(ctx); err != nil {
				logging.Errorf("engine", "service %s exited: %v", svc.name, err)
				e.errMu.Lock()
				e.runErrs = append(e.runErrs, err)
				e.errMu.Unlock()
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.diagnostics(ctx)
	}()

	e.bus.System.Modify(func(sys *lifecycle.System) bool {
		sys.SetNormalMode()
		sys.SysEnabled = true
		return true
	})
	logging.Info("engine", "started")
	return nil
}

// Stop cancels every service, closes the bus so blocked waits unwind,
// waits for the fleet to exit, and returns the aggregate of every error
// collected during the run and the teardown.
func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.bus.Close()
	e.wg.Wait()

	var result *multierror.Error
	e.errMu.Lock()
	for _, err := range e.runErrs {
		result = multierror.Append(result, err)
	}
	e.errMu.Unlock()

	if err := e.deps.Gpio.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	logging.Info("engine", "stopped")
	return result.ErrorOrNil()
}

// flashRequest is wired into the command mediator's boot-window backdoor:
// drop to service mode, isolate the USB port, and run the boot/reset
// sequence. The sequence always reports a fault on real hardware (the
// target resets under us), so the error is logged, not propagated.
func (e *Engine) flashRequest() {
	logging.Warn("engine", "entering flash mode")
	e.bus.System.Modify(func(sys *lifecycle.System) bool {
		sys.SetServiceMode()
		return true
	})
	e.deps.Gpio.UsbCutoff(true)
	if err := hardware.EnterFlashMode(context.Background(), e.deps.Gpio); err != nil {
		logging.Warnf("engine", "flash mode sequence: %v", err)
	}
}

// diagnostics logs goroutine count and heap usage every diagInterval, the
// debug companion a memory-constrained target wants in its logs.
func (e *Engine) diagnostics(ctx context.Context) {
	ticker := time.NewTicker(diagInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			logging.Debugf("diag", "goroutines=%d heap_alloc=%d heap_sys=%d num_gc=%d",
				runtime.NumGoroutine(), m.HeapAlloc, m.HeapSys, m.NumGC)
		}
	}
}
