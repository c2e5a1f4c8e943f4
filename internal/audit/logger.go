package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogTraining logs training lifecycle events
	LogTrainingStarted(ctx context.Context, runID string) error
	LogTrainingCompleted(ctx context.Context, runID string, samples int, duration time.Duration) error
	LogTrainingSkipped(ctx context.Context, runID, reason string) error
	LogTrainingFailed(ctx context.Context, runID string, err error) error

	// LogPrediction logs a completed prediction pass
	LogPredictionMade(ctx context.Context, slowdownRisk float64, duration time.Duration) error

	// LogRemediation logs remediation outcomes
	LogRemediationExecuted(ctx context.Context, action, process string, pid int32) error
	LogRemediationRefused(ctx context.Context, action, process string, pid int32, reason string) error

	// AppLogger returns the application logger sharing this logger's rotation setup
	AppLogger() *zap.Logger

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string

	// BufferSize is the number of events held before a forced flush
	BufferSize int

	// FlushInterval is how often buffered events are written out
	FlushInterval time.Duration
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath:  "logs/audit.log",
		AppLogPath:    "logs/hostpulse.log",
		MaxSize:       50, // megabytes
		MaxBackups:    5,
		MaxAge:        14, // days
		Compress:      true,
		LogLevel:      "info",
		BufferSize:    100,
		FlushInterval: 1 * time.Second,
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize < 1 {
		config.BufferSize = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 1 * time.Second
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, config.BufferSize),
		flushTicker: time.NewTicker(config.FlushInterval),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= l.config.BufferSize {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// LogTrainingStarted logs when a training run starts
func (l *auditLogger) LogTrainingStarted(ctx context.Context, runID string) error {
	event := NewEvent(EventTrainingStarted).
		WithCorrelationID(runID).
		WithComponent("model").
		WithResult(ResultPending).
		WithDescription(fmt.Sprintf("Training run %s started", runID))

	return l.Log(ctx, event)
}

// LogTrainingCompleted logs when a training run completes
func (l *auditLogger) LogTrainingCompleted(ctx context.Context, runID string, samples int, duration time.Duration) error {
	event := NewEvent(EventTrainingCompleted).
		WithCorrelationID(runID).
		WithComponent("model").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("samples", samples).
		WithDescription(fmt.Sprintf("Training run %s completed on %d samples", runID, samples))

	return l.Log(ctx, event)
}

// LogTrainingSkipped logs when a training run is skipped
func (l *auditLogger) LogTrainingSkipped(ctx context.Context, runID, reason string) error {
	event := NewEvent(EventTrainingSkipped).
		WithCorrelationID(runID).
		WithComponent("model").
		WithResult(ResultDenied).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Training run %s skipped: %s", runID, reason))

	return l.Log(ctx, event)
}

// LogTrainingFailed logs when a training run fails
func (l *auditLogger) LogTrainingFailed(ctx context.Context, runID string, err error) error {
	event := NewEvent(EventTrainingFailed).
		WithCorrelationID(runID).
		WithComponent("model").
		WithError(err, "training_error").
		WithDescription(fmt.Sprintf("Training run %s failed", runID))

	return l.Log(ctx, event)
}

// LogPredictionMade logs a completed prediction pass
func (l *auditLogger) LogPredictionMade(ctx context.Context, slowdownRisk float64, duration time.Duration) error {
	event := NewEvent(EventPredictionMade).
		WithComponent("predictor").
		WithResult(ResultSuccess).
		WithDuration(duration).
		WithMetadata("slowdown_risk", slowdownRisk).
		WithDescription(fmt.Sprintf("Prediction made with slowdown risk %.3f", slowdownRisk))

	return l.Log(ctx, event)
}

// LogRemediationExecuted logs an executed remediation action
func (l *auditLogger) LogRemediationExecuted(ctx context.Context, action, process string, pid int32) error {
	event := NewEvent(EventRemediationExecuted).
		WithComponent("remedy").
		WithAction(action).
		WithProcess(process, pid).
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("Remediation %s executed for %s (pid %d)", action, process, pid))

	return l.Log(ctx, event)
}

// LogRemediationRefused logs a refused remediation action
func (l *auditLogger) LogRemediationRefused(ctx context.Context, action, process string, pid int32, reason string) error {
	event := NewEvent(EventRemediationRefused).
		WithComponent("remedy").
		WithAction(action).
		WithProcess(process, pid).
		WithResult(ResultDenied).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("Remediation %s refused for %s (pid %d): %s", action, process, pid, reason))

	return l.Log(ctx, event)
}

// AppLogger returns the application logger sharing this logger's rotation setup
func (l *auditLogger) AppLogger() *zap.Logger {
	return l.appLogger
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value("correlation_id").(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, "correlation_id", id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
