package link

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Logging (logger.ILogger implementation + factory)
// --------------------------------------------------------------------------

// linkLogger writes level-prefixed lines tagged with the owning package name
type linkLogger struct {
	pkg   string
	level logger.LogLevel
	out   *log.Logger
}

func (l *linkLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *linkLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.write("DEBUG", format, args...)
	}
}

func (l *linkLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.write("INFO", format, args...)
	}
}

func (l *linkLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.write("WARN", format, args...)
	}
}

func (l *linkLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.write("ERROR", format, args...)
	}
}

func (l *linkLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *linkLogger) write(level string, format string, args ...interface{}) {
	l.out.Printf("%-5s [%s] %s", level, l.pkg, fmt.Sprintf(format, args...))
}

// CreateLogger is the logger.Factory installed by InitLoggers. New loggers
// start at INFO until configured.
func CreateLogger(pkgName string) logger.ILogger {
	return &linkLogger{
		pkg:   pkgName,
		level: logger.INFO,
		out:   log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
}

// parseLogLevel panics on unknown levels so a misconfiguration surfaces at
// startup, not mid-connection
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// InitLoggers installs the logger factory and sets every package logger of
// the adapter to the given level.
func InitLoggers(level string) {
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range []string{"link", "link/conn", "link/mux", "transport"} {
		logger.GetLogger(name).SetLevel(parseLogLevel(level))
	}
}
