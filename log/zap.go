package log

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"viral-clipper/internal/appdirs"
)

var Logger = zap.NewNop()

const logFileName = "app.log"

var appDirsResolver = appdirs.Resolve

// InitLogger tees JSON debug output to the log file and info output to the
// console. WithStderr moves console output off stdout so a CLI can keep
// stdout for its report.
func InitLogger(opts ...Option) {
	o := options{console: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	logDir, err := ResolveLogDir()
	if err != nil {
		panic("cannot resolve log dir: " + err.Error())
	}

	if err = os.MkdirAll(logDir, 0o755); err != nil {
		panic("cannot create log dir: " + err.Error())
	}

	logFilePath := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		panic("cannot open log file: " + err.Error())
	}

	fileSyncer := zapcore.AddSync(file)
	consoleSyncer := zapcore.AddSync(o.console)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileSyncer, zap.DebugLevel),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), consoleSyncer, o.consoleLevel),
	)

	Logger = zap.New(core, zap.AddCaller())
}

type options struct {
	console      *os.File
	consoleLevel zapcore.Level
}

type Option func(*options)

// WithStderr sends console output to stderr.
func WithStderr() Option {
	return func(o *options) { o.console = os.Stderr }
}

// WithConsoleLevel overrides the console threshold (default info).
func WithConsoleLevel(level zapcore.Level) Option {
	return func(o *options) { o.consoleLevel = level }
}

func ResolveLogDir() (string, error) {
	dirs, err := appDirsResolver()
	if err != nil {
		return "", err
	}

	logDir := strings.TrimSpace(dirs.LogDir)
	if logDir == "" {
		return ".", nil
	}

	return logDir, nil
}

func ResolveLogFilePath() (string, error) {
	logDir, err := ResolveLogDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(logDir, logFileName), nil
}

func GetLogger() *zap.Logger {
	return Logger
}
