// Package logging is the daemon's level-gated log sink: a lumberjack-
// rotated file plus an optional console echo, keyed by a caller-supplied
// component name. Defaults are tuned for a headless in-vehicle target --
// small rotation size, more backups, no console, since production units
// have no terminal attached.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dougsko/carbridged/pkg/config"
	"gopkg.in/lumberjack.v2"
)

// LogLevel orders message severities; messages below the configured level
// are dropped.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel maps a config string to a LogLevel, defaulting to info.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes timestamped, component-tagged lines to its sinks.
type Logger struct {
	level   LogLevel
	file    *log.Logger
	console *log.Logger
	rotator *lumberjack.Logger
}

// NewLogger builds a logger from the config's logging section. With no
// file path configured, everything goes to the console regardless of the
// console flag, so a misconfigured unit still says something.
func NewLogger(cfg *config.Config) (*Logger, error) {
	l := &Logger{level: ParseLogLevel(cfg.Logging.Level)}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.rotator = &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
		}
		l.file = log.New(l.rotator, "", 0)
	}

	if cfg.Logging.Console || l.file == nil {
		l.console = log.New(os.Stdout, "", 0)
	}
	return l, nil
}

// Close flushes and closes the rotating file sink, if any.
func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

func (l *Logger) write(level LogLevel, component, message string) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] %s: %s",
		time.Now().Format("2006-01-02 15:04:05.000"), level, component, message)
	if l.file != nil {
		l.file.Println(line)
	}
	if l.console != nil {
		l.console.Println(line)
	}
}

func (l *Logger) Debug(component, message string) { l.write(LevelDebug, component, message) }
func (l *Logger) Info(component, message string)  { l.write(LevelInfo, component, message) }
func (l *Logger) Warn(component, message string)  { l.write(LevelWarn, component, message) }
func (l *Logger) Error(component, message string) { l.write(LevelError, component, message) }

func (l *Logger) Debugf(component, format string, args ...interface{}) {
	l.write(LevelDebug, component, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(component, format string, args ...interface{}) {
	l.write(LevelInfo, component, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(component, format string, args ...interface{}) {
	l.write(LevelWarn, component, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(component, format string, args ...interface{}) {
	l.write(LevelError, component, fmt.Sprintf(format, args...))
}

// The package-level default lets services log without threading a logger
// through every constructor. Before InitGlobalLogger runs (tests, early
// startup failures) it falls back to console-only at info level.
var globalLogger *Logger

// InitGlobalLogger builds the default logger from cfg.
func InitGlobalLogger(cfg *config.Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// GetGlobalLogger returns the default logger, creating the console
// fallback on first use if InitGlobalLogger never ran.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = &Logger{
			level:   LevelInfo,
			console: log.New(os.Stdout, "", 0),
		}
	}
	return globalLogger
}

// CloseGlobalLogger closes the default logger's file sink.
func CloseGlobalLogger() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

func Debug(component, message string) { GetGlobalLogger().Debug(component, message) }
func Info(component, message string)  { GetGlobalLogger().Info(component, message) }
func Warn(component, message string)  { GetGlobalLogger().Warn(component, message) }
func Error(component, message string) { GetGlobalLogger().Error(component, message) }

func Debugf(component, format string, args ...interface{}) {
	GetGlobalLogger().Debugf(component, format, args...)
}

func Infof(component, format string, args ...interface{}) {
	GetGlobalLogger().Infof(component, format, args...)
}

func Warnf(component, format string, args ...interface{}) {
	GetGlobalLogger().Warnf(component, format, args...)
}

func Errorf(component, format string, args ...interface{}) {
	GetGlobalLogger().Errorf(component, format, args...)
}
