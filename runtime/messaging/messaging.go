// Package messaging delivers user-facing messages through the backend
// delivery endpoint. Reactive replies answer the message being handled;
// proactive sends push chat or data to a participant from workflow or
// activity code.
//
// Ordering: replies issued from a single handler are delivered in call
// order. Proactive sends racing on parallel activities are not ordered.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xians-ai/sdk-go/runtime/executor"
	"github.com/xians-ai/sdk-go/runtime/httpx"
	"github.com/xians-ai/sdk-go/runtime/identifier"
	"github.com/xians-ai/sdk-go/runtime/runctx"
	"github.com/xians-ai/sdk-go/runtime/telemetry"
)

const sendPath = "/api/agent/message/send"

type (
	// SendRequest is the delivery payload POSTed to the backend.
	SendRequest struct {
		TenantID      string         `json:"tenantId"`
		ParticipantID string         `json:"participantId"`
		RequestID     string         `json:"requestId,omitempty"`
		ThreadID      string         `json:"threadId,omitempty"`
		Scope         string         `json:"scope,omitempty"`
		WorkflowType  string         `json:"workflowType,omitempty"`
		Text          string         `json:"text,omitempty"`
		Data          map[string]any `json:"data,omitempty"`
		Hint          string         `json:"hint,omitempty"`
	}

	// Service is the direct delivery path. It doubles as the activity body
	// on workers.
	Service struct {
		http   *httpx.Client
		logger telemetry.Logger
	}

	// Messenger is the context-aware facade services and handlers use.
	// Calls from workflow code run as a MessageActivity execution; calls
	// from activity code hit the backend directly.
	Messenger struct {
		svc *Service
	}
)

// NewService builds the direct delivery path on the shared HTTP client.
func NewService(http *httpx.Client, logger telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Service{http: http, logger: logger}
}

// Send POSTs the message to the delivery endpoint.
func (s *Service) Send(ctx context.Context, req SendRequest) error {
	if req.TenantID == "" {
		return errors.New("messaging: tenant id is required")
	}
	if req.ParticipantID == "" {
		return errors.New("messaging: participant id is required")
	}
	return s.http.Post(ctx, sendPath, req, nil)
}

// NewMessenger wraps the service in the context-aware facade.
func NewMessenger(svc *Service) *Messenger {
	return &Messenger{svc: svc}
}

// SendChat pushes a chat message to a participant. The tenant is taken from
// the ambient invocation; calling outside workflow or activity code fails
// with runctx.ErrNoAmbientContext.
func (m *Messenger) SendChat(ctx context.Context, participantID, text string, data map[string]any, scope, hint string) error {
	info, err := runctx.FromContext(ctx)
	if err != nil {
		return err
	}
	return m.deliver(ctx, SendRequest{
		TenantID:      info.TenantID,
		ParticipantID: participantID,
		WorkflowType:  info.WorkflowType,
		Text:          text,
		Data:          data,
		Scope:         scope,
		Hint:          hint,
	})
}

// SendData pushes a data-only message to a participant.
func (m *Messenger) SendData(ctx context.Context, participantID string, data map[string]any, scope string) error {
	info, err := runctx.FromContext(ctx)
	if err != nil {
		return err
	}
	return m.deliver(ctx, SendRequest{
		TenantID:      info.TenantID,
		ParticipantID: participantID,
		WorkflowType:  info.WorkflowType,
		Data:          data,
		Scope:         scope,
	})
}

// SendAs impersonates another workflow type as the message origin. Only
// workflow types of the calling agent may be impersonated.
func (m *Messenger) SendAs(ctx context.Context, workflowType, participantID, text string, data map[string]any) error {
	info, err := runctx.FromContext(ctx)
	if err != nil {
		return err
	}
	if agentOf(workflowType) != info.AgentName {
		return fmt.Errorf("messaging: cannot send as %q from agent %q", workflowType, info.AgentName)
	}
	return m.deliver(ctx, SendRequest{
		TenantID:      info.TenantID,
		ParticipantID: participantID,
		WorkflowType:  workflowType,
		Text:          text,
		Data:          data,
	})
}

// Deliver routes an already-assembled request, exposed for the task
// notification path which addresses the creator workflow directly.
func (m *Messenger) Deliver(ctx context.Context, req SendRequest) error {
	return m.deliver(ctx, req)
}

func (m *Messenger) deliver(ctx context.Context, req SendRequest) error {
	return executor.Run(ctx, ActivitySend, req, func(c context.Context) error {
		return m.svc.Send(c, req)
	})
}

// agentOf returns the agent half of a "{agent}:{name}" workflow type.
func agentOf(workflowType string) string {
	if idx := strings.Index(workflowType, identifier.Separator); idx >= 0 {
		return workflowType[:idx]
	}
	return workflowType
}
