package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	customLog logger
	mu        sync.RWMutex
)

type logger struct {
	zl   zerolog.Logger
	file *os.File
	dir  string
}

func init() {
	InitLogger()
}

func consoleWriter(out io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
}

// InitLogger resets the process logger to a console writer on stdout at debug level.
func InitLogger() {
	mu.Lock()
	defer mu.Unlock()

	customLog = logger{
		zl:  zerolog.New(consoleWriter(os.Stdout)).With().Timestamp().Logger().Level(zerolog.DebugLevel),
		dir: "",
	}
}

// SetLevel changes the minimum level. Accepts debug, info, warn and error.
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	mu.Lock()
	defer mu.Unlock()
	customLog.zl = customLog.zl.Level(lvl)

	return nil
}

// ResetLogger mirrors every record into <oracleHome>/logs/<binary>.<pid>.log.
func ResetLogger(oracleHome string) {
	if oracleHome == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			Fatalf("Failed to get user home directory: %v", err)
		}
		oracleHome = filepath.Join(osHome, ".oracled")
	}

	dir := filepath.Join(oracleHome, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		Fatalf("Failed to create log directory %s: %v", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		Fatalf("Failed to create log file: %v", err)
	}

	Infof("From now on, all logs will also be written to %s", path)

	mu.Lock()
	defer mu.Unlock()

	level := customLog.zl.GetLevel()
	writer := zerolog.MultiLevelWriter(consoleWriter(os.Stdout), file)
	customLog.zl = zerolog.New(writer).With().Timestamp().Logger().Level(level)
	customLog.file = file
	customLog.dir = dir
}

// SetOutput redirects all records to w without console formatting. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	level := customLog.zl.GetLevel()
	customLog.zl = zerolog.New(w).With().Timestamp().Logger().Level(level)
}

// Close flushes and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if customLog.file == nil {
		return nil
	}
	err := customLog.file.Close()
	customLog.file = nil

	return err
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	zl := customLog.zl
	return &zl
}

func Debugf(format string, v ...any) {
	current().Debug().Msgf(format, v...)
}

func Infof(format string, v ...any) {
	current().Info().Msgf(format, v...)
}

func Warnf(format string, v ...any) {
	current().Warn().Msgf(format, v...)
}

func Errorf(format string, v ...any) {
	current().Error().Msgf(format, v...)
}

func Fatalf(format string, v ...any) {
	current().Fatal().Msgf(format, v...)
}

// DebugEnabled reports whether debug records are written. Use it to skip building expensive messages.
func DebugEnabled() bool {
	return current().GetLevel() <= zerolog.DebugLevel
}
