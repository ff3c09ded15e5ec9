package logging

// Standard field keys.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldDaemonUID = "daemon_uid"
	FieldAddress   = "address"
	FieldState     = "state"
	FieldPID       = "pid"
	FieldAttempt   = "attempt"
)
