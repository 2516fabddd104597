package logging

import "log/slog"

// Domain identifiers

func Identity(id string) slog.Attr {
	return slog.String("identity_id", id)
}

func Channel(id string) slog.Attr {
	return slog.String("channel_id", id)
}

func Connection(id string) slog.Attr {
	return slog.String("conn_id", id)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Request / tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

func TraceID(id string) slog.Attr {
	return slog.String("trace_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
