package sx127x

// Fields carries the structured context of a log event.
type Fields map[string]any

// Logger defines the logging interface used by the driver.
// Every mode transition, verification failure, timeout and ACK outcome is reported through it.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

var globalLogger Logger = &nopLogger{}

// SetLogger sets the global logger instance.
// Passing nil silences the driver.
func SetLogger(l Logger) {
	if l == nil {
		globalLogger = &nopLogger{}
		return
	}
	globalLogger = l
}

// nopLogger is a logger that does nothing.
type nopLogger struct{}

func (l *nopLogger) Debug(msg string, f Fields) {}
func (l *nopLogger) Info(msg string, f Fields)  {}
func (l *nopLogger) Warn(msg string, f Fields)  {}
func (l *nopLogger) Error(msg string, f Fields) {}
