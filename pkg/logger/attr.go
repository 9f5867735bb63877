package logger

import (
	"log/slog"

	"github.com/alumnihub/authflow/pkg/sanitizer"
)

// Component tags a record with the emitting component name.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Error records an error under the conventional "error" key.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// UserID tags a record with the acting user's identity id.
func UserID(id string) slog.Attr {
	return slog.String("user_id", id)
}

// Email tags a record with a masked email address. Raw addresses never reach
// the logs.
func Email(email string) slog.Attr {
	return slog.String("email", sanitizer.MaskEmail(email))
}

// FlowStep tags a record with the current auth flow step.
func FlowStep(step string) slog.Attr {
	return slog.String("flow_step", step)
}
