package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/dougsko/carbridged/pkg/config"
	"github.com/dougsko/carbridged/pkg/logging"
)

var (
	configPath  = flag.StringP("config", "c", "/etc/carbridged/config.yaml", "Configuration file path")
	pidFilePath = flag.String("pidfile", "", "PID file path (default: /var/run/carbridged.pid or ./carbridged.pid)")
	foreground  = flag.BoolP("foreground", "f", false, "Run in the foreground, echoing logs to the console")
	verboseFlag = flag.BoolP("verbose", "v", false, "Enable verbose (debug) logging")
	version     = flag.Bool("version", false, "Show version information")
)

const (
	Version = "0.1.0-dev"
	Build   = "development"

	// runningFirmwareVersion is the monotonic counter the OTA updater
	// compares pulled images against; bumped with every released image.
	runningFirmwareVersion = 1
)

// defaultPidFile prefers the system daemon location, falling back to the
// working directory when /var/run isn't writable (non-root bench runs).
func defaultPidFile() string {
	const system = "/var/run/carbridged.pid"
	probe := filepath.Join(filepath.Dir(system), ".carbridged_write_test")
	if f, err := os.Create(probe); err == nil {
		f.Close()
		os.Remove(probe)
		return system
	}
	return "./carbridged.pid"
}

// acquirePidFile claims pidFile for this process. An existing file naming a
// live process is an error; a stale or garbled one is removed and replaced.
func acquirePidFile(pidFile string) error {
	if data, err := os.ReadFile(pidFile); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pidAlive(pid) {
			return fmt.Errorf("carbridged is already running with PID %d", pid)
		}
		os.Remove(pidFile)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read existing PID file: %v", err)
	}

	if dir := filepath.Dir(pidFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create PID file directory: %v", err)
		}
	}
	return os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

func pidAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 probes for existence without delivering anything.
	return process.Signal(syscall.Signal(0)) == nil
}

func releasePidFile(pidFile string) {
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: failed to remove PID file %s: %v", pidFile, err)
	}
}

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("carbridged version %s (%s)\n", Version, Build)
		os.Exit(0)
	}

	actualPidFile := *pidFilePath
	if actualPidFile == "" {
		actualPidFile = defaultPidFile()
	}

	if err := acquirePidFile(actualPidFile); err != nil {
		log.Fatalf("Failed to create PID file: %v", err)
	}
	defer releasePidFile(actualPidFile)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *verboseFlag {
		cfg.Logging.Level = "debug"
	}
	if *foreground {
		cfg.Logging.Console = true
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logging.InitGlobalLogger(cfg); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}
	defer logging.CloseGlobalLogger()

	logging.Infof("main", "carbridged version %s starting...", Version)
	logging.Infof("main", "PID: %d, PID file: %s", os.Getpid(), actualPidFile)
	logging.Infof("main", "Vehicle bus: %s at %d baud", cfg.Vehiclebus.Device, cfg.Vehiclebus.BaudRate)
	logging.Infof("main", "Bluetooth identity: %s", cfg.Bluetooth.DeviceName)

	daemon, err := NewCarBridgeDaemon(cfg)
	if err != nil {
		logging.Errorf("main", "Failed to create daemon: %v", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := daemon.Start(); err != nil {
		logging.Errorf("main", "Failed to start daemon: %v", err)
		os.Exit(1)
	}

	logging.Info("main", "carbridged started successfully")

	<-sigChan
	logging.Info("main", "Shutting down...")

	if err := daemon.Stop(); err != nil {
		logging.Errorf("main", "Error during shutdown: %v", err)
	}

	logging.Info("main", "carbridged stopped")
}
