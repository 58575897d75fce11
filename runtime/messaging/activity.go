package messaging

import "context"

// ActivitySend is the registered name of the delivery activity. The platform
// registers it on every worker so workflow-side sends always resolve.
const ActivitySend = "MessageActivity.Send"

// Activities exposes the delivery path as worker activities.
type Activities struct {
	svc *Service
}

// NewActivities binds the activity set to the direct service.
func NewActivities(svc *Service) *Activities {
	return &Activities{svc: svc}
}

// Send delivers one message. Registered under ActivitySend.
func (a *Activities) Send(ctx context.Context, req SendRequest) error {
	return a.svc.Send(ctx, req)
}
