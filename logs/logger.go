package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rustyeddy/wxtrader/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileHook writes every entry to a rotated log file with its own formatter.
type FileHook struct {
	formatter logrus.Formatter
	writer    io.Writer
}

func newFileHook(writer io.Writer, formatter logrus.Formatter) *FileHook {
	return &FileHook{writer: writer, formatter: formatter}
}

// Levels fires the hook for every level.
func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire formats and writes the entry.
func (h *FileHook) Fire(entry *logrus.Entry) error {
	b, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(b)
	return err
}

var (
	mu       sync.RWMutex
	log      = newConsoleLogger(os.Stderr, logrus.InfoLevel)
	fileHook *FileHook
)

func newConsoleLogger(out io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		TimestampFormat:        "2006-01-02 15:04:05",
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
	return l
}

// Init configures the package logger. Console output goes to stderr so
// command output on stdout stays machine readable. An empty cfg.File disables
// the rotated file.
func Init(cfg config.LogConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l := newConsoleLogger(os.Stderr, level)

	// Keep stray logrus calls from third-party code off the console.
	logrus.SetOutput(io.Discard)
	logrus.StandardLogger().Hooks = make(logrus.LevelHooks)

	var hook *FileHook
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		hook = newFileHook(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, &logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
		l.AddHook(hook)
	}

	mu.Lock()
	prev := fileHook
	log, fileHook = l, hook
	mu.Unlock()
	closeHook(prev)

	Debugf("logging initialized level=%s file=%q", level, cfg.File)
	return nil
}

// SetOutput redirects console output. Tests use it to capture or silence logs.
func SetOutput(w io.Writer) {
	logger().SetOutput(w)
}

// Close flushes and closes the rotated file, if any.
func Close() {
	mu.Lock()
	hook := fileHook
	fileHook = nil
	mu.Unlock()
	closeHook(hook)
}

func closeHook(h *FileHook) {
	if h == nil {
		return
	}
	if c, ok := h.writer.(io.Closer); ok {
		_ = c.Close()
	}
}

func logger() *logrus.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Logger exposes the underlying logrus logger.
func Logger() *logrus.Logger { return logger() }

// WithFields starts a structured entry.
func WithFields(fields logrus.Fields) *logrus.Entry { return logger().WithFields(fields) }

// WithError starts an entry carrying err.
func WithError(err error) *logrus.Entry { return logger().WithError(err) }

func Debug(args ...interface{})                 { logger().Debug(args...) }
func Debugf(format string, args ...interface{}) { logger().Debugf(format, args...) }
func Info(args ...interface{})                  { logger().Info(args...) }
func Infof(format string, args ...interface{})  { logger().Infof(format, args...) }
func Warn(args ...interface{})                  { logger().Warn(args...) }
func Warnf(format string, args ...interface{})  { logger().Warnf(format, args...) }
func Error(args ...interface{})                 { logger().Error(args...) }
func Errorf(format string, args ...interface{}) { logger().Errorf(format, args...) }
