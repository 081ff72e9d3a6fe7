// Package config loads and validates carbridged's on-disk YAML
// configuration: the vehicle-bus transport, audio peripheral parameters,
// the bluetooth identity, the GPIO line map, the OTA updater, and logging.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is carbridged's top-level configuration, one section per
// peripheral or ambient concern.
type Config struct {
	Vehiclebus struct {
		Device      string `yaml:"device"`
		BaudRate    int    `yaml:"baud_rate"`
		PublisherID int    `yaml:"publisher_id"`
	} `yaml:"vehiclebus"`

	Audio struct {
		IncomingCapacity int `yaml:"incoming_capacity"`
		OutgoingCapacity int `yaml:"outgoing_capacity"`

		AdcChannel     int `yaml:"adc_channel"`
		AdcSampleRate  int `yaml:"adc_sample_rate"`
		AdcAttenDb     int `yaml:"adc_atten_db"`

		I2sBclkPin int `yaml:"i2s_bclk_pin"`
		I2sDoutPin int `yaml:"i2s_dout_pin"`
		I2sWsPin   int `yaml:"i2s_ws_pin"`
	} `yaml:"audio"`

	Bluetooth struct {
		DeviceName    string `yaml:"device_name"`
		Pin           string `yaml:"pin"`
		Discoverable  bool   `yaml:"discoverable"`
	} `yaml:"bluetooth"`

	Gpio struct {
		Chip        string `yaml:"chip"`
		UsbCutoff   int    `yaml:"usb_cutoff_line"`
		FlashBoot   int    `yaml:"flash_boot_line"`
		FlashReset  int    `yaml:"flash_reset_line"`
	} `yaml:"gpio"`

	Wifi struct {
		FirmwareURL string `yaml:"firmware_url"`
		ScanTimeout int    `yaml:"scan_timeout_ms"`
	} `yaml:"wifi"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSize    int    `yaml:"max_size"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAge     int    `yaml:"max_age"`
		Compress   bool   `yaml:"compress"`
		Console    bool   `yaml:"console"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the YAML file at path, backfilling defaults
// (see applyDefaults) for the zero-valued fields that have one; other
// fields keep whatever the file gave them.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Vehiclebus.Device == "" {
		c.Vehiclebus.Device = "/dev/ttyUSB0"
	}
	if c.Vehiclebus.BaudRate == 0 {
		c.Vehiclebus.BaudRate = 500000
	}
	if c.Vehiclebus.PublisherID == 0 {
		c.Vehiclebus.PublisherID = 0x4021 // Bt publisher
	}

	if c.Audio.IncomingCapacity == 0 {
		c.Audio.IncomingCapacity = 1 << 16
	}
	if c.Audio.OutgoingCapacity == 0 {
		c.Audio.OutgoingCapacity = 1 << 14
	}
	if c.Audio.AdcSampleRate == 0 {
		c.Audio.AdcSampleRate = 20000
	}
	if c.Audio.AdcAttenDb == 0 {
		c.Audio.AdcAttenDb = 11
	}

	if c.Bluetooth.DeviceName == "" {
		c.Bluetooth.DeviceName = "Car Bridge"
	}
	if c.Bluetooth.Pin == "" {
		c.Bluetooth.Pin = "1234"
	}

	if c.Gpio.Chip == "" {
		c.Gpio.Chip = "gpiochip0"
	}
	if c.Gpio.UsbCutoff == 0 && c.Gpio.FlashBoot == 0 && c.Gpio.FlashReset == 0 {
		c.Gpio.UsbCutoff = 17
		c.Gpio.FlashBoot = 22
		c.Gpio.FlashReset = 23
	}

	if c.Wifi.ScanTimeout == 0 {
		c.Wifi.ScanTimeout = 10000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.File == "" {
		c.Logging.File = "/var/log/carbridged/carbridged.log"
	}
	if c.Logging.MaxSize == 0 {
		c.Logging.MaxSize = 10 // MB -- a headless in-vehicle device has little flash to spare
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 10
	}
	if c.Logging.MaxAge == 0 {
		c.Logging.MaxAge = 60
	}
}

// Validate reports the first configuration error found, if any.
func (c *Config) Validate() error {
	if c.Vehiclebus.Device == "" {
		return fmt.Errorf("vehiclebus device is required")
	}
	if c.Audio.IncomingCapacity <= 0 || c.Audio.OutgoingCapacity <= 0 {
		return fmt.Errorf("audio ring buffer capacities must be positive")
	}
	if c.Gpio.UsbCutoff == c.Gpio.FlashBoot || c.Gpio.UsbCutoff == c.Gpio.FlashReset || c.Gpio.FlashBoot == c.Gpio.FlashReset {
		return fmt.Errorf("gpio lines must be distinct")
	}
	return nil
}
