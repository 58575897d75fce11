package identifier

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		id           string
		tenant       string
		workflowType string
		suffixes     []string
		wantErr      bool
	}{
		{name: "tenant and bare type", id: "acme:Chat", tenant: "acme", workflowType: "Chat"},
		{name: "agent qualified type", id: "acme:MyAgent:Chat", tenant: "acme", workflowType: "MyAgent:Chat"},
		{name: "type plus suffix", id: "acme:MyAgent:Chat:run-123", tenant: "acme", workflowType: "MyAgent:Chat", suffixes: []string{"run-123"}},
		{name: "task workflow id", id: "acme:MyAgent:Task Workflow:t-1", tenant: "acme", workflowType: "MyAgent:Task Workflow", suffixes: []string{"t-1"}},
		{name: "single component", id: "acme", wantErr: true},
		{name: "empty tenant", id: ":MyAgent:Chat", wantErr: true},
		{name: "empty type", id: "acme::", wantErr: true},
		{name: "empty string", id: "", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := Parse(tc.id)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidWorkflowID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.tenant, p.Tenant)
			assert.Equal(t, tc.workflowType, p.WorkflowType)
			assert.Equal(t, tc.suffixes, p.Suffixes)
			assert.Equal(t, tc.id, p.Full)
		})
	}
}

func TestExtractTenant(t *testing.T) {
	t.Parallel()

	tenant, err := ExtractTenant("contoso:GlobalNotifier:Alerts:u2")
	require.NoError(t, err)
	assert.Equal(t, "contoso", tenant)

	_, err = ExtractTenant("no-separator")
	require.ErrorIs(t, err, ErrInvalidWorkflowID)
}

func TestExtractWorkflowType(t *testing.T) {
	t.Parallel()

	wfType, err := ExtractWorkflowType("acme:MyAgent:Chat:run-1")
	require.NoError(t, err)
	assert.Equal(t, "MyAgent:Chat", wfType)
}

func TestBuild(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "acme:MyAgent:Chat", Build("acme", "MyAgent:Chat"))
	assert.Equal(t, "acme:MyAgent:Chat:u1", Build("acme", "MyAgent:Chat", "u1"))
	assert.Equal(t, "acme:MyAgent:Chat:u1", Build("acme", "MyAgent:Chat", "", "u1"))
}

func TestTaskQueue(t *testing.T) {
	t.Parallel()

	queue, err := TaskQueue("MyAgent:Chat", true, "")
	require.NoError(t, err)
	assert.Equal(t, "MyAgent:Chat", queue)

	queue, err = TaskQueue("MyAgent:Chat", false, "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme:MyAgent:Chat", queue)

	_, err = TaskQueue("MyAgent:Chat", false, "")
	require.Error(t, err)

	_, err = TaskQueue("", true, "")
	require.ErrorIs(t, err, ErrInvalidWorkflowID)
}

func TestValidateIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.True(t, ValidateIsolation(ctx, "contoso", "acme", true, nil))
	assert.True(t, ValidateIsolation(ctx, "acme", "acme", false, nil))
	assert.False(t, ValidateIsolation(ctx, "contoso", "acme", false, nil))
}

// component generates identifier components free of the separator.
func component() gopter.Gen {
	return gen.RegexMatch(`[a-z][a-z0-9-]{0,15}`)
}

func TestIdentifierRoundTripProperty(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("Parse inverts Build", prop.ForAll(
		func(tenant, agent, name, suffix string) bool {
			wfType := agent + Separator + name
			p, err := Parse(Build(tenant, wfType, suffix))
			if err != nil {
				return false
			}
			if p.Tenant != tenant || p.WorkflowType != wfType {
				return false
			}
			if suffix == "" {
				return len(p.Suffixes) == 0
			}
			return len(p.Suffixes) == 1 && p.Suffixes[0] == suffix
		},
		component(), component(), component(), gen.OneGenOf(component(), gen.Const("")),
	))

	properties.Property("queue derivation follows the systemic rule", prop.ForAll(
		func(tenant, agent, name string, systemScoped bool) bool {
			wfType := agent + Separator + name
			queue, err := TaskQueue(wfType, systemScoped, tenant)
			if err != nil {
				return false
			}
			if systemScoped {
				return queue == wfType
			}
			return queue == tenant+Separator+wfType
		},
		component(), component(), component(), gen.Bool(),
	))

	properties.TestingRun(t)
}
