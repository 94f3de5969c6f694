package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zap.Logger with additional functionality
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
	// rotator is the file output shared by every logger derived from New
	rotator *lumberjack.Logger
}

// Config contains logger configuration
type Config struct {
	Level  string
	Format string // json or console
	File   *FileConfig
}

// FileConfig contains file logging configuration
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSize    int // megabytes
	MaxAge     int // days
	MaxBackups int
	Compress   bool
}

// Option customises logger construction
type Option func(*options)

type options struct {
	output       zapcore.WriteSyncer
	redactor     Redactor
	redactFields bool
}

// WithOutput replaces stdout as the console destination
func WithOutput(w zapcore.WriteSyncer) Option {
	return func(o *options) { o.output = w }
}

// WithRedactor passes every message through r before it is written.
// With fields set, string fields and error messages are redacted too.
func WithRedactor(r Redactor, fields bool) Option {
	return func(o *options) {
		o.redactor = r
		o.redactFields = fields
	}
}

// New creates a new logger instance
func New(config Config, opts ...Option) (*Logger, error) {
	o := options{output: zapcore.AddSync(os.Stdout)}
	for _, opt := range opts {
		opt(&o)
	}

	// Parse log level
	parsed, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	level := zap.NewAtomicLevelAt(parsed)

	// Create encoder config
	var encoderConfig zapcore.EncoderConfig
	if config.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// Create encoder
	var encoder zapcore.Encoder
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, o.output, level),
	}

	// File output (if enabled), rotated by lumberjack
	var rotator *lumberjack.Logger
	if config.File != nil && config.File.Enabled {
		rotator = &lumberjack.Logger{
			Filename:   config.File.Path,
			MaxSize:    config.File.MaxSize,
			MaxAge:     config.File.MaxAge,
			MaxBackups: config.File.MaxBackups,
			Compress:   config.File.Compress,
		}

		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.TimeKey = "timestamp"
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(fileEncoderConfig),
			zapcore.AddSync(rotator),
			level,
		))
	}

	core := zapcore.NewTee(cores...)
	if o.redactor != nil {
		core = NewRedactingCore(core, o.redactor, o.redactFields)
	}

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return &Logger{Logger: logger, level: level, rotator: rotator}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop(), level: zap.NewAtomicLevel()}
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(level string) error {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.SetLevel(parsed)
	return nil
}

// Level returns the current level name
func (l *Logger) Level() string {
	return l.level.Level().String()
}

// WithRequestID adds a request ID to the logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.derive(l.Logger.With(zap.String("request_id", requestID)))
}

// WithComponent adds a component name to the logger context
func (l *Logger) WithComponent(component string) *Logger {
	return l.derive(l.Logger.With(zap.String("component", component)))
}

// Redacting returns a logger that passes every entry through r before it
// reaches the outputs of l. Both loggers share outputs, file rotation and
// level.
func (l *Logger) Redacting(r Redactor, fields bool) *Logger {
	return l.derive(l.Logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return NewRedactingCore(core, r, fields)
	})))
}

// Rotate closes the current log file and starts a new one. It is a no-op
// without file output.
func (l *Logger) Rotate() error {
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Rotate()
}

func (l *Logger) derive(z *zap.Logger) *Logger {
	return &Logger{Logger: z, level: l.level, rotator: l.rotator}
}
