// Package hardware holds the peripheral driver interfaces each service
// borrows for the duration of its enabled run, plus the mock
// implementations used off-target, and the real Linux backends (GPIO,
// serial, OTA HTTP fetch) used on deployed hardware.
package hardware

import (
	"log"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// GPIOController owns the three discrete output lines named in the pin
// map: USB cutoff, flash-mode boot, flash-mode reset.
type GPIOController interface {
	Initialize() error
	Close() error
	UsbCutoff(active bool) error
	FlashBoot(low bool) error
	FlashReset(low bool) error
}

// LinuxGPIO drives the three lines through the gpiocdev character-device
// API, one gpiocdev.Line per pin, requested as outputs at Initialize and
// released at Close.
type LinuxGPIO struct {
	chip       string
	usbCutoff  int
	flashBoot  int
	flashReset int

	usbLine   *gpiocdev.Line
	bootLine  *gpiocdev.Line
	resetLine *gpiocdev.Line
}

// NewLinuxGPIO returns a controller bound to the given gpiochip and line
// offsets; no lines are requested until Initialize.
func NewLinuxGPIO(chip string, usbCutoff, flashBoot, flashReset int) *LinuxGPIO {
	return &LinuxGPIO{chip: chip, usbCutoff: usbCutoff, flashBoot: flashBoot, flashReset: flashReset}
}

// Initialize requests all three lines as outputs, both flash lines idling
// high (inactive) and USB cutoff idling low (not isolated).
func (g *LinuxGPIO) Initialize() error {
	var err error
	g.usbLine, err = gpiocdev.RequestLine(g.chip, g.usbCutoff, gpiocdev.AsOutput(0))
	if err != nil {
		return errors.Wrapf(err, "request usb cutoff line %d", g.usbCutoff)
	}
	g.bootLine, err = gpiocdev.RequestLine(g.chip, g.flashBoot, gpiocdev.AsOutput(1))
	if err != nil {
		g.usbLine.Close()
		return errors.Wrapf(err, "request flash boot line %d", g.flashBoot)
	}
	g.resetLine, err = gpiocdev.RequestLine(g.chip, g.flashReset, gpiocdev.AsOutput(1))
	if err != nil {
		g.usbLine.Close()
		g.bootLine.Close()
		return errors.Wrapf(err, "request flash reset line %d", g.flashReset)
	}
	log.Printf("gpio: initialized chip=%s usb_cutoff=%d flash_boot=%d flash_reset=%d",
		g.chip, g.usbCutoff, g.flashBoot, g.flashReset)
	return nil
}

// Close releases all three lines.
func (g *LinuxGPIO) Close() error {
	var first error
	for _, l := range []*gpiocdev.Line{g.usbLine, g.bootLine, g.resetLine} {
		if l == nil {
			continue
		}
		if err := l.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// UsbCutoff drives the USB cutoff line high to isolate the port, low to
// restore it.
func (g *LinuxGPIO) UsbCutoff(active bool) error {
	return g.usbLine.SetValue(boolToLine(active))
}

// FlashBoot drives the flash-mode boot line. low=true asserts the signal
// (drives it low).
func (g *LinuxGPIO) FlashBoot(low bool) error {
	return g.bootLine.SetValue(boolToLine(!low))
}

// FlashReset drives the flash-mode reset line. low=true asserts the signal.
func (g *LinuxGPIO) FlashReset(low bool) error {
	return g.resetLine.SetValue(boolToLine(!low))
}

func boolToLine(v bool) int {
	if v {
		return 1
	}
	return 0
}

// MockGPIO is an in-memory GPIOController for tests: every call is
// recorded rather than touching real hardware.
type MockGPIO struct {
	UsbCutoffActive bool
	BootLow         bool
	ResetLow        bool
	Closed          bool
}

func NewMockGPIO() *MockGPIO { return &MockGPIO{} }

func (g *MockGPIO) Initialize() error { return nil }
func (g *MockGPIO) Close() error      { g.Closed = true; return nil }

func (g *MockGPIO) UsbCutoff(active bool) error {
	g.UsbCutoffActive = active
	return nil
}

func (g *MockGPIO) FlashBoot(low bool) error {
	g.BootLow = low
	return nil
}

func (g *MockGPIO) FlashReset(low bool) error {
	g.ResetLow = low
	return nil
}
