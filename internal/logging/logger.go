package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Config holds logger configuration
type Config struct {
	Level      LogLevel
	OutputFile string // Path to log file (empty = stderr only)
	MaxSize    int64  // Max size in bytes before rotation (default: 10MB)
	MaxBackups int    // Number of old log files to keep (default: 3)
	JSONFormat bool   // Use JSON format (default: false for debug, true otherwise)
	AddSource  bool   // Add source file and line number
}

// Logger wraps slog.Logger with file rotation and component tagging.
// Output goes to stderr, never stdout: stdout carries the tool RPC stream.
type Logger struct {
	slog      *slog.Logger
	config    Config
	file      *os.File
	mu        sync.Mutex
	debugMode bool
}

var (
	globalLogger *Logger
	once         sync.Once
)

// Initialize creates and configures the global logger.
// This must be called before any logging operations.
func Initialize(config Config) error {
	var initErr error
	once.Do(func() {
		logger, err := NewLogger(config)
		if err != nil {
			initErr = fmt.Errorf("failed to initialize logger: %w", err)
			return
		}
		globalLogger = logger
	})
	return initErr
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	logger := &Logger{
		config:    config,
		debugMode: config.Level == DEBUG,
	}

	writers := []io.Writer{os.Stderr}

	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}

		if err := logger.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("failed to rotate logs: %w", err)
		}

		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.OutputFile, err)
		}
		logger.file = file
		writers = append(writers, file)
	}

	multiWriter := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{
		Level:     logger.toSlogLevel(config.Level),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.JSONFormat {
		handler = slog.NewJSONHandler(multiWriter, opts)
	} else {
		handler = slog.NewTextHandler(multiWriter, opts)
	}

	logger.slog = slog.New(handler)
	return logger, nil
}

// rotateIfNeeded checks if log file needs rotation and performs it
func (l *Logger) rotateIfNeeded() error {
	if l.config.OutputFile == "" {
		return nil
	}

	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	if info.Size() < l.config.MaxSize {
		return nil
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}

	backupPath := fmt.Sprintf("%s.1", l.config.OutputFile)
	if err := os.Rename(l.config.OutputFile, backupPath); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	return nil
}

func (l *Logger) toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARN:
		return slog.LevelWarn
	case ERROR:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Slog exposes the underlying slog handle for components that take one.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...any) {
	l.slog.Debug(msg, args...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
}

// With returns a new logger with additional context
func (l *Logger) With(args ...any) *Logger {
	newLogger := *l
	newLogger.slog = l.slog.With(args...)
	return &newLogger
}

// Close closes the log file if one is open
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// ForComponent returns a component-tagged slog handle. Components receive
// their logger at construction; nothing reads the global on the hot path.
func ForComponent(name string) *slog.Logger {
	if globalLogger != nil {
		return globalLogger.slog.With("component", name)
	}
	return slog.Default().With("component", name)
}

// Debug logs a debug message using the global logger
func Debug(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.Debug(msg, args...)
	} else {
		slog.Debug(msg, args...)
	}
}

// Info logs an info message using the global logger
func Info(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.Info(msg, args...)
	} else {
		slog.Info(msg, args...)
	}
}

// Warn logs a warning message using the global logger
func Warn(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.Warn(msg, args...)
	} else {
		slog.Warn(msg, args...)
	}
}

// Error logs an error message using the global logger
func Error(msg string, args ...any) {
	if globalLogger != nil {
		globalLogger.Error(msg, args...)
	} else {
		slog.Error(msg, args...)
	}
}

// Close closes the global logger
func Close() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	if globalLogger != nil {
		return globalLogger.debugMode
	}
	return false
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig(debugMode bool) Config {
	level := INFO
	if debugMode {
		level = DEBUG
	}

	logDir := "logs"
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile := filepath.Join(logDir, fmt.Sprintf("cgraph_%s.log", timestamp))

	return Config{
		Level:      level,
		OutputFile: logFile,
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 3,
		JSONFormat: !debugMode,
		AddSource:  debugMode,
	}
}

// DebugConfig returns a configuration for interactive debugging: stderr
// only, human-readable, with source locations.
func DebugConfig() Config {
	return Config{
		Level:      DEBUG,
		OutputFile: "",
		JSONFormat: false,
		AddSource:  true,
	}
}
