package xians

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xians-ai/sdk-go/runtime/engine"
	"github.com/xians-ai/sdk-go/runtime/engine/inmem"
	"github.com/xians-ai/sdk-go/runtime/hitl"
	"github.com/xians-ai/sdk-go/runtime/httpx"
	"github.com/xians-ai/sdk-go/runtime/messaging"
	"github.com/xians-ai/sdk-go/runtime/runctx"
)

type deliveryBackend struct {
	mu    sync.Mutex
	sends []struct {
		Header string
		Body   messaging.SendRequest
	}
}

func (b *deliveryBackend) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/message/send") {
			w.WriteHeader(http.StatusOK)
			return
		}
		var body messaging.SendRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		b.sends = append(b.sends, struct {
			Header string
			Body   messaging.SendRequest
		}{Header: r.Header.Get(httpx.TenantHeader), Body: body})
		b.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
}

func (b *deliveryBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends)
}

func newPlatform(t *testing.T, backend *deliveryBackend, tenant string) (*Platform, *inmem.Engine) {
	t.Helper()
	server := httptest.NewServer(backend.handler())
	t.Cleanup(server.Close)

	eng := inmem.New(inmem.Options{})
	p, err := New(Options{
		ServerURL: server.URL,
		APIKey:    "test-key",
		TenantID:  tenant,
		LocalMode: true,
	}, eng)
	require.NoError(t, err)
	return p, eng
}

func startPlatform(t *testing.T, p *Platform) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() {
		cancel()
		_ = p.Shutdown(context.Background())
	})
}

func TestCrossTenantExecutionRejected(t *testing.T) {
	backend := &deliveryBackend{}
	p, eng := newPlatform(t, backend, "acme")

	agent, err := p.NewAgent("Agent")
	require.NoError(t, err)

	handlerCalled := false
	_, err = agent.RegisterWorkflow("BuiltIn", func(ctx context.Context, msg *messaging.IncomingMessage) error {
		handlerCalled = true
		return nil
	})
	require.NoError(t, err)
	startPlatform(t, p)

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:       "contoso:Agent:BuiltIn:u1",
		Workflow: "Agent:BuiltIn",
		Input:    messaging.IncomingMessage{ParticipantID: "u1", RequestID: "r1", Text: "hi"},
	})
	require.NoError(t, err)
	require.NoError(t, run.Get(context.Background(), nil))

	assert.False(t, handlerCalled, "foreign-tenant execution must not reach the handler")
	require.Equal(t, 1, backend.count(), "exactly one error reply")
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Contains(t, backend.sends[0].Body.Text, "Tenant isolation")
	assert.Equal(t, "contoso", backend.sends[0].Body.TenantID)
}

func TestSystemScopedReplyStampsWorkflowTenant(t *testing.T) {
	backend := &deliveryBackend{}
	p, eng := newPlatform(t, backend, "")

	agent, err := p.NewAgent("GlobalNotifier", WithSystemScoped())
	require.NoError(t, err)

	_, err = agent.RegisterWorkflow("Alerts", func(ctx context.Context, msg *messaging.IncomingMessage) error {
		return msg.Reply(ctx, "ok")
	})
	require.NoError(t, err)
	startPlatform(t, p)

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:       "contoso:GlobalNotifier:Alerts:u2",
		Workflow: "GlobalNotifier:Alerts",
		Input:    messaging.IncomingMessage{ParticipantID: "u2", RequestID: "r2"},
	})
	require.NoError(t, err)
	require.NoError(t, run.Get(context.Background(), nil))

	require.Equal(t, 1, backend.count())
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "contoso", backend.sends[0].Header, "X-Tenant-Id must carry the workflow tenant")
	assert.Equal(t, "contoso", backend.sends[0].Body.TenantID)
	assert.Equal(t, "u2", backend.sends[0].Body.ParticipantID)
	assert.Equal(t, "ok", backend.sends[0].Body.Text)
}

func TestHandlerErrorProducesSingleErrorReply(t *testing.T) {
	backend := &deliveryBackend{}
	p, eng := newPlatform(t, backend, "acme")

	agent, err := p.NewAgent("Agent")
	require.NoError(t, err)
	_, err = agent.RegisterWorkflow("Flaky", func(ctx context.Context, msg *messaging.IncomingMessage) error {
		return assert.AnError
	})
	require.NoError(t, err)
	startPlatform(t, p)

	run, err := eng.StartWorkflow(context.Background(), engine.StartWorkflowRequest{
		ID:       "acme:Agent:Flaky:u1",
		Workflow: "Agent:Flaky",
		Input:    messaging.IncomingMessage{ParticipantID: "u1", RequestID: "r3"},
	})
	require.NoError(t, err)
	require.NoError(t, run.Get(context.Background(), nil), "handler errors are swallowed by the wrapper")

	require.Equal(t, 1, backend.count())
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Contains(t, backend.sends[0].Body.Text, "Error:")
}

func TestScheduleFacadeIdempotentCreate(t *testing.T) {
	backend := &deliveryBackend{}
	p, _ := newPlatform(t, backend, "acme")

	agent, err := p.NewAgent("Agent")
	require.NoError(t, err)
	_, err = agent.RegisterWorkflow("Chat", func(ctx context.Context, msg *messaging.IncomingMessage) error {
		return nil
	}, AsDefault())
	require.NoError(t, err)
	startPlatform(t, p)

	ctx := context.Background()
	handle, err := agent.Schedules.Create("daily").Daily(9).WithInput("x").Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme:daily", handle.ID())

	_, err = agent.Schedules.Create("daily").Daily(9).WithInput("x").Start(ctx)
	require.ErrorIs(t, err, engine.ErrScheduleAlreadyExists)
}

func TestBuiltInChatCapturesFirstReply(t *testing.T) {
	backend := &deliveryBackend{}
	p, _ := newPlatform(t, backend, "acme")

	agent, err := p.NewAgent("Agent")
	require.NoError(t, err)
	_, err = agent.RegisterWorkflow("BuiltIn", func(ctx context.Context, msg *messaging.IncomingMessage) error {
		if err := msg.Reply(ctx, "echo: "+msg.Text); err != nil {
			return err
		}
		return msg.Reply(ctx, "second reply is ignored")
	})
	require.NoError(t, err)
	startPlatform(t, p)

	ctx := runctx.Install(context.Background(), &runctx.Info{
		Kind:       runctx.KindActivity,
		TenantID:   "acme",
		AgentName:  "Agent",
		WorkflowID: "acme:Agent:Caller:u1",
		Registry:   p,
	})
	reply, err := agent.A2A.SendChatToBuiltIn(ctx, "Agent:BuiltIn", "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply)
	assert.Zero(t, backend.count(), "captured replies must not hit the delivery backend")
}

func TestTaskWorkflowRegisteredPerAgent(t *testing.T) {
	backend := &deliveryBackend{}
	p, _ := newPlatform(t, backend, "acme")

	agent, err := p.NewAgent("Agent")
	require.NoError(t, err)
	_, err = agent.RegisterWorkflow("Chat", func(ctx context.Context, msg *messaging.IncomingMessage) error {
		return nil
	})
	require.NoError(t, err)
	startPlatform(t, p)

	task, err := agent.Tasks.Create(context.Background(), hitl.TaskRequest{
		Title:         "probe",
		ParticipantID: "u1",
		Timeout:       50 * time.Millisecond,
	})
	require.NoError(t, err)

	result, err := task.Await(context.Background())
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
}

func TestPlatformRegistrationRules(t *testing.T) {
	backend := &deliveryBackend{}
	p, _ := newPlatform(t, backend, "acme")

	_, err := p.NewAgent("")
	require.Error(t, err)

	agent, err := p.NewAgent("Agent")
	require.NoError(t, err)
	_, err = p.NewAgent("Agent")
	require.ErrorContains(t, err, "already registered")

	_, err = agent.RegisterWorkflow("", nil)
	require.Error(t, err)
	_, err = agent.RegisterWorkflow("Chat", nil)
	require.Error(t, err)

	_, err = agent.RegisterWorkflow("Chat", func(context.Context, *messaging.IncomingMessage) error { return nil })
	require.NoError(t, err)
	_, err = agent.RegisterWorkflow("Chat", func(context.Context, *messaging.IncomingMessage) error { return nil })
	require.ErrorContains(t, err, "already registered")

	startPlatform(t, p)
	_, err = p.NewAgent("Late")
	require.ErrorContains(t, err, "after start")
}

func TestPlatformRequiresAgents(t *testing.T) {
	backend := &deliveryBackend{}
	p, _ := newPlatform(t, backend, "acme")
	require.Error(t, p.Start(context.Background()))
}
