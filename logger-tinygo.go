//go:build tinygo

package sx127x

import (
	"machine"
	"strconv"
)

func init() {
	globalLogger = &serialLogger{level: levelInfo}
}

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

// serialLogger writes events to machine.Serial as "[LEVEL] msg key=value ...".
// It avoids the fmt package to keep the binary small.
type serialLogger struct {
	level int
}

func (l *serialLogger) log(level int, prefix, msg string, f Fields) {
	if level < l.level {
		return
	}
	machine.Serial.Write([]byte(prefix))
	machine.Serial.Write([]byte(msg))
	for k, v := range f {
		machine.Serial.Write([]byte(" " + k + "="))
		machine.Serial.Write([]byte(formatValue(v)))
	}
	machine.Serial.Write([]byte("\r\n"))
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case byte:
		return "0x" + strconv.FormatUint(uint64(t), 16)
	case bool:
		return strconv.FormatBool(t)
	case interface{ String() string }:
		return t.String()
	case error:
		return t.Error()
	default:
		return "?"
	}
}

func (l *serialLogger) Debug(msg string, f Fields) { l.log(levelDebug, "[DEBUG] ", msg, f) }
func (l *serialLogger) Info(msg string, f Fields)  { l.log(levelInfo, "[INFO]  ", msg, f) }
func (l *serialLogger) Warn(msg string, f Fields)  { l.log(levelWarn, "[WARN]  ", msg, f) }
func (l *serialLogger) Error(msg string, f Fields) { l.log(levelError, "[ERROR] ", msg, f) }

// SetLogLevel changes the verbosity of the serial logger.
func SetLogLevel(level string) error {
	var lvl int
	switch level {
	case "debug", "trace":
		lvl = levelDebug
	case "info":
		lvl = levelInfo
	case "warn", "warning":
		lvl = levelWarn
	case "error":
		lvl = levelError
	default:
		return ErrInvalidParameter
	}
	if sl, ok := globalLogger.(*serialLogger); ok {
		sl.level = lvl
	}
	return nil
}
