package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel is used to determine which log severities should actually log
type LogLevel int

// LogFormat is used to set the how the log messages should be displayed
type LogFormat int

const (
	// NOTSET will log everything
	NOTSET LogLevel = 0
	// DEBUG will enable these logs and higher
	DEBUG LogLevel = 10
	// INFO will enable these logs and higher
	INFO LogLevel = 20
	// WARNING will enable these logs and higher
	WARNING LogLevel = 30
	// ERROR will enable these logs and higher
	ERROR LogLevel = 40
	// CRITICAL will enable these logs and higher
	CRITICAL LogLevel = 50
)

const (
	// JSON displays the logs as JSON dicts
	JSON LogFormat = 0
	// HUMAN displays the logs in a way that's nice for humans to read
	HUMAN LogFormat = 1
)

// String renders a LogLevel as its string value
func (l LogLevel) String() string {
	switch l {
	case NOTSET:
		return "NOTSET"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "INVALID"
	}
}

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case NOTSET:
		return zerolog.TraceLevel
	case DEBUG:
		return zerolog.DebugLevel
	case WARNING:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case CRITICAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

var (
	mu               sync.RWMutex
	currentLogLevel  = INFO
	currentLogFormat = HUMAN
	currentOutput    io.Writer = os.Stderr
	log                        = newLogger()
)

// newLogger must be called with mu held (or during init)
func newLogger() zerolog.Logger {
	out := currentOutput
	if currentLogFormat == HUMAN {
		out = zerolog.ConsoleWriter{
			Out:        currentOutput,
			TimeFormat: time.RFC3339,
			NoColor:    currentOutput != os.Stderr,
		}
	}

	return zerolog.New(out).
		Level(currentLogLevel.zerologLevel()).
		With().
		Timestamp().
		Logger()
}

// SetLoggerFormat adjusts the format used when writing log entries
func SetLoggerFormat(logFormat LogFormat) error {
	mu.Lock()
	defer mu.Unlock()

	switch logFormat {
	case JSON, HUMAN:
		currentLogFormat = logFormat
	default:
		return fmt.Errorf("invalid log format: log_format=%v", logFormat)
	}

	log = newLogger()
	return nil
}

// GetLoggerFormat parses the string version of a format
func GetLoggerFormat(formatName string) (LogFormat, error) {
	switch formatName {
	case "JSON":
		return JSON, nil
	case "HUMAN":
		return HUMAN, nil
	default:
		return HUMAN, fmt.Errorf("invalid log format: log_format=%q", formatName)
	}
}

// SetLoggerLevel takes the string version of the name and sets the current level
func SetLoggerLevel(levelName string) error {
	mu.Lock()
	defer mu.Unlock()

	switch levelName {
	case "NOTSET":
		currentLogLevel = NOTSET
	case "DEBUG":
		currentLogLevel = DEBUG
	case "INFO":
		currentLogLevel = INFO
	case "WARNING":
		currentLogLevel = WARNING
	case "ERROR":
		currentLogLevel = ERROR
	case "CRITICAL":
		currentLogLevel = CRITICAL
	default:
		return fmt.Errorf("invalid log level: level=%q", levelName)
	}

	log = newLogger()
	return nil
}

// GetLoggerLevel returns the current logger level
func GetLoggerLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()

	return currentLogLevel
}

// SetLoggerOutput redirects log entries to w
func SetLoggerOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	currentOutput = w
	log = newLogger()
}

// SetLoggerFile sends log entries to a size rotated file
func SetLoggerFile(path string) {
	SetLoggerOutput(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		LocalTime:  true,
	})
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	l := log
	return &l
}

// Debug emits an DEBUG level log
func Debug(msg string, a ...any) {
	current().Debug().Msgf(msg, a...)
}

// Info emits an INFO level log
func Info(msg string, a ...any) {
	current().Info().Msgf(msg, a...)
}

// Warning emits an WARNING level log
func Warning(msg string, a ...any) {
	current().Warn().Msgf(msg, a...)
}

// Error emits an ERROR level log
func Error(msg string, a ...any) {
	current().Error().Msg(fmt.Errorf(msg, a...).Error())
}

// Fatal emits an CRITICAL level log and stops the program
func Fatal(msg string, a ...any) {
	current().Fatal().Msg(fmt.Errorf(msg, a...).Error())
}
