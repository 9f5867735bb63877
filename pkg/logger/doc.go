// Package logger builds slog loggers with a consistent configuration surface
// and provides attribute helpers shared across the auth flow packages, so log
// records carry the same field names everywhere (component, flow_step,
// user_id, masked email).
package logger
