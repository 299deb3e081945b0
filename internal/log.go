package internal

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	globalLogger *SecureLogger
	loggerMutex  sync.RWMutex
)

// InitLogger installs the process logger described by config. Debug mode
// forces the debug level; quiet mode keeps only errors.
func InitLogger(config *Config) error {
	output, err := logOutput(config.LogFile)
	if err != nil {
		return err
	}

	level := parseLogLevel(config.LogLevel)
	if config.EnableDebug {
		level = LogLevelDebug
	}

	SetLogger(NewSecureLogger(output, level, config.EnableDebug, config.QuietMode))
	return nil
}

func logOutput(path string) (io.Writer, error) {
	if path == "" {
		return os.Stderr, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, NewValidationError("log_file", "failed to open log file").
			WithSuggestion("Check file permissions and path validity").
			WithContext("file", path).
			WithContext("error", err.Error())
	}
	return file, nil
}

// GetLogger returns the process logger, creating a stderr logger on first use.
func GetLogger() *SecureLogger {
	loggerMutex.RLock()
	logger := globalLogger
	loggerMutex.RUnlock()
	if logger != nil {
		return logger
	}

	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefaultLogger(false, false)
	}
	return globalLogger
}

// SetLogger replaces the process logger.
func SetLogger(logger *SecureLogger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	globalLogger = logger
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func LogError(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

func LogWarn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

func LogInfo(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

func LogDebug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// LogLinkError writes err as a single key=value line at the level of its
// severity. The suggestion follows at debug level.
func LogLinkError(err *LinkError) {
	logger := GetLogger()
	line := linkErrorFields(err)

	switch {
	case err.IsCritical():
		logger.Error("CRITICAL %s", line)
	case err.Severity == SeverityWarning:
		logger.Warn("%s", line)
	case err.Severity == SeverityInfo:
		logger.Info("%s", line)
	default:
		logger.Error("%s", line)
	}

	if err.Suggestion != "" {
		logger.Debug("suggestion for %s: %s", err.Type, err.Suggestion)
	}
}

// linkErrorFields renders type, step, URL, status code, context and message
// in a stable order. The URL query is redacted.
func linkErrorFields(err *LinkError) string {
	fields := []string{"type=" + err.Type.String()}
	if err.Step != "" {
		fields = append(fields, "step="+err.Step)
	}
	if err.URL != "" {
		fields = append(fields, "url="+redactSensitiveURL(err.URL))
	}
	if err.Code != 0 {
		fields = append(fields, fmt.Sprintf("code=%d", err.Code))
	}

	keys := make([]string, 0, len(err.Context))
	for k := range err.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%v", k, err.Context[k]))
	}

	msg := err.Message
	if err.Cause != nil {
		if msg != "" {
			msg += ": "
		}
		msg += err.Cause.Error()
	}
	fields = append(fields, fmt.Sprintf("msg=%q", msg))

	return strings.Join(fields, " ")
}

// LogValidationError logs a ValidationError
func LogValidationError(err *ValidationError) {
	GetLogger().Error("Validation Error: %s", err.DetailedError())
}
