package messaging

import "context"

// IncomingMessage is the user message delivered to a workflow handler. The
// tenant is derived from the hosting workflow identifier and is read-only
// from the handler's perspective.
type IncomingMessage struct {
	TenantID      string         `json:"tenantId"`
	ParticipantID string         `json:"participantId"`
	RequestID     string         `json:"requestId"`
	Scope         string         `json:"scope,omitempty"`
	ThreadID      string         `json:"threadId,omitempty"`
	Authorization string         `json:"authorization,omitempty"`
	Text          string         `json:"text,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	messenger *Messenger
	capture   func(text string, data map[string]any)
}

// Bind attaches the delivery facade so Reply works. The worker calls this
// before invoking the handler.
func (m *IncomingMessage) Bind(messenger *Messenger) {
	m.messenger = messenger
}

// Reply answers the message with text, threading the original request and
// conversation identifiers through.
func (m *IncomingMessage) Reply(ctx context.Context, text string) error {
	return m.ReplyWithData(ctx, text, nil)
}

// CaptureReplies diverts replies into fn instead of the delivery backend.
// Used by the built-in chat convention to capture a handler's first reply.
func (m *IncomingMessage) CaptureReplies(fn func(text string, data map[string]any)) {
	m.capture = fn
}

// ReplyWithData answers the message with text plus structured data.
func (m *IncomingMessage) ReplyWithData(ctx context.Context, text string, data map[string]any) error {
	if m.capture != nil {
		m.capture(text, data)
		return nil
	}
	return m.messenger.deliver(ctx, SendRequest{
		TenantID:      m.TenantID,
		ParticipantID: m.ParticipantID,
		RequestID:     m.RequestID,
		ThreadID:      m.ThreadID,
		Scope:         m.Scope,
		Text:          text,
		Data:          data,
	})
}
