package logger

import "log/slog"

// Error records a single error under the key "error". A nil error yields an
// empty Attr, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the client identifier under the key "user_id".
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// LawyerID records the lawyer identifier under the key "lawyer_id".
func LawyerID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("lawyer_id", id)
}

// Feature records a metered feature key under the key "feature".
func Feature(key any) slog.Attr {
	return slog.Any("feature", key)
}

// Plan records a plan name under the key "plan".
func Plan(name string) slog.Attr {
	return slog.String("plan", name)
}

// RequestID records the request identifier under the key "request_id".
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
