package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tadaa_concierge/internal/config"
)

const serviceName = "tadaa-concierge"

var timeFormats = map[string]string{
	"rfc3339": time.RFC3339,
	"unix":    zerolog.TimeFormatUnix,
	"iso8601": "2006-01-02T15:04:05.000Z07:00",
}

// Logger is the process-wide logger. It writes to stderr until InitLogger runs.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

// sink is the file behind Logger, if any
var sink io.Closer

// New builds a logger for cfg without touching the global one. The returned
// closer is non-nil only for file output.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("invalid log level '%s': %w", cfg.Level, err)
	}

	out, closer, err := openOutput(cfg)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	l := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Caller().
		Str("service", serviceName).
		Logger()
	return l, closer, nil
}

// InitLogger replaces the global logger with one built from cfg
func InitLogger(cfg config.LogConfig) error {
	l, closer, err := New(cfg)
	if err != nil {
		return err
	}

	if format, ok := timeFormats[strings.ToLower(cfg.TimeFormat)]; ok {
		zerolog.TimeFieldFormat = format
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	previous := sink
	Logger, sink = l, closer
	log.Logger = Logger
	if previous != nil {
		_ = previous.Close()
	}

	Logger.Info().
		Str("level", cfg.Level).
		Str("format", cfg.Format).
		Str("output", cfg.Output).
		Msg("Logger initialized successfully")
	return nil
}

// Close releases the log file opened by InitLogger
func Close() error {
	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	return err
}

func openOutput(cfg config.LogConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file '%s': %w", cfg.FilePath, err)
		}
		return file, file, nil
	default:
		return os.Stdout, nil, nil
	}
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
