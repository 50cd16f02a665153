package log

import (
	"context"
	"log/slog"
)

// SlogAdapter echoes protocol events to an operational slog.Logger. Events
// are logged at Debug, except error events which use Warn.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter returns an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes one "protocol" record for the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := make([]slog.Attr, 0, 12)
	attrs = append(attrs,
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	)
	attrs = appendNonEmpty(attrs, "remote", event.RemoteAddr)
	attrs = appendNonEmpty(attrs, "server", event.ServerName)

	level := slog.LevelDebug
	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.Int("frame_size", event.Frame.Size),
			slog.Bool("truncated", event.Frame.Truncated))
	case event.Message != nil:
		attrs = messageAttrs(attrs, event.Message)
	case event.StateChange != nil:
		sc := event.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("old_state", sc.OldState),
			slog.String("new_state", sc.NewState))
		attrs = appendNonEmpty(attrs, "reason", sc.Reason)
	case event.ControlMsg != nil:
		attrs = append(attrs, slog.String("ctrl_type", event.ControlMsg.Type.String()))
	case event.Error != nil:
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message))
		attrs = appendNonEmpty(attrs, "error_context", event.Error.Context)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), level, "protocol", attrs...)
}

func messageAttrs(attrs []slog.Attr, m *MessageEvent) []slog.Attr {
	attrs = append(attrs, slog.String("msg_type", m.Type.String()))
	if m.Type != MessageTypeNotification {
		attrs = append(attrs, slog.Uint64("msg_id", m.MessageID))
	}
	attrs = appendNonEmpty(attrs, "method", m.Method)
	attrs = appendNonEmpty(attrs, "uri", m.URI)
	if m.ErrorCode != nil {
		attrs = append(attrs, slog.Int("error_code", *m.ErrorCode))
	}
	attrs = appendNonEmpty(attrs, "error_msg", m.ErrorMessage)
	if m.Latency != nil {
		attrs = append(attrs, slog.Duration("latency", *m.Latency))
	}
	return attrs
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}

var _ Logger = (*SlogAdapter)(nil)
