package types

type RunMode string

const (
	// ModeTest routes every gateway call to the provider's sandbox environment.
	ModeTest RunMode = "test"
	// ModeLive routes every gateway call to the provider's production environment.
	ModeLive RunMode = "live"
)

// IsLive reports whether the mode targets production endpoints.
// An empty mode is treated as test so that a missing configuration value
// can never send traffic to a live processor.
func (m RunMode) IsLive() bool {
	return m == ModeLive
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)
