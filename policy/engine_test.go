package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/vigil/types"
)

const maintenancePolicy = `
package vigil

import rego.v1

default suppress := false

suppress if {
	input.event.target_resource == "i-maintenance"
}

reason := "resource under maintenance" if suppress
`

func TestEvaluateSuppressesMatchingEvent(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()
	require.NoError(t, engine.LoadPolicy(ctx, "maintenance", maintenancePolicy))

	event := types.SecurityEvent{
		ID:             "evt-1",
		EventType:      "UNAUTHORIZED_ACCESS",
		Severity:       types.SeverityCritical,
		TargetResource: "i-maintenance",
	}

	verdict, err := engine.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.True(t, verdict.Suppress)
	assert.Equal(t, "resource under maintenance", verdict.Reason)
	assert.Equal(t, []string{"maintenance"}, verdict.Policies)
}

func TestEvaluatePassesNonMatchingEvent(t *testing.T) {
	engine := NewEngine()
	ctx := context.Background()
	require.NoError(t, engine.LoadPolicy(ctx, "maintenance", maintenancePolicy))

	event := types.SecurityEvent{
		ID:             "evt-2",
		TargetResource: "i-production",
	}

	verdict, err := engine.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.False(t, verdict.Suppress)
}

func TestNoPoliciesMeansNoSuppression(t *testing.T) {
	engine := NewEngine()

	suppressed, _, err := engine.Suppress(context.Background(), types.SecurityEvent{ID: "evt-3"})
	require.NoError(t, err)
	assert.False(t, suppressed)
}

func TestLoadPolicyRejectsBrokenRego(t *testing.T) {
	engine := NewEngine()
	err := engine.LoadPolicy(context.Background(), "broken", "package vigil\n\nsuppress if {")
	assert.Error(t, err)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "maintenance.rego")
	require.NoError(t, os.WriteFile(path, []byte(maintenancePolicy), 0o644))
	// non-rego files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644))

	engine := NewEngine()
	require.NoError(t, engine.LoadDir(context.Background(), dir))
	assert.Equal(t, 1, engine.PolicyCount())
}

func TestLoadDirMissingIsNotAnError(t *testing.T) {
	engine := NewEngine()
	require.NoError(t, engine.LoadDir(context.Background(), "/nonexistent/policies"))
	assert.Equal(t, 0, engine.PolicyCount())
}
