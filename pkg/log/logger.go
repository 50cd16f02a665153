package log

// Logger receives protocol capture events from the transport, router and
// session. Log is called from several goroutines and on the read path, so
// implementations must be safe for concurrent use and return promptly.
type Logger interface {
	Log(event Event)
}

// LoggerFunc lets an ordinary function act as a Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// NoopLogger drops every event. The zero value is ready to use.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
)
