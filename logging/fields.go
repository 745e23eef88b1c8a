package logging

import "log/slog"

// Domain identifiers

func Conversation(id string) slog.Attr {
	return slog.String("conversation_id", id)
}

func Socket(id string) slog.Attr {
	return slog.String("socket_id", id)
}

func Event(name string) slog.Attr {
	return slog.String("event", name)
}

func MessageID(id uint) slog.Attr {
	return slog.Uint64("message_id", uint64(id))
}

// Request tracing

func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Error handling

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
