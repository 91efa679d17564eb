package gateway

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/internal/registry"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/internal/verifier"
	"github.com/example/toolforge/pkg/domain"
)

func skipIfNoPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func newTestGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Open(filepath.Join(dir, "registry.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	ex := sandbox.NewExecutor(constraints.Default())
	v := verifier.New(ex)
	logDir := filepath.Join(dir, "logs")
	return New(reg, v, WithLogDir(logDir)), logDir
}

func TestSubmit_RejectsAndLogsSecurityViolation(t *testing.T) {
	gw, logDir := newTestGateway(t)

	result, err := gw.Submit(t.Context(), SubmitRequest{
		Candidate: verifier.Candidate{
			Source:     "import os\ndef calc_ma(prices):\n    return 1.0\n",
			EntryFunc:  "calc_ma",
			Category:   domain.CategoryCalculation,
			ContractID: "calc_ma",
			TaskID:     "t1",
		},
		Name:   "calc_ma",
		TaskID: "t1",
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)

	violations, err := os.ReadFile(filepath.Join(logDir, "security_violations.log"))
	require.NoError(t, err)
	assert.Contains(t, string(violations), "t1")

	attempts, err := os.ReadFile(filepath.Join(logDir, "attempts.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(attempts), `"outcome":"REJECTED"`)
}

func TestSubmit_AcceptsVerifiedToolAndRegisters(t *testing.T) {
	skipIfNoPython(t)
	gw, _ := newTestGateway(t)

	src := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 2.0
`
	result, err := gw.Submit(t.Context(), SubmitRequest{
		Candidate: verifier.Candidate{
			Source:     src,
			EntryFunc:  "calc_ma",
			Category:   domain.CategoryCalculation,
			ContractID: "calc_ma",
			TaskID:     "t2",
		},
		Name:   "calc_ma",
		TaskID: "t2",
	})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	require.NotNil(t, result.Tool)
	assert.Equal(t, domain.StatusProvisional, result.Tool.Status)
}

func TestSubmit_RejectionLeavesCheckpointFailedAndNoToolRow(t *testing.T) {
	gw, _ := newTestGateway(t)

	result, err := gw.Submit(t.Context(), SubmitRequest{
		Candidate: verifier.Candidate{
			Source:     "import os\ndef calc_ma(prices):\n    return 1.0\n",
			EntryFunc:  "calc_ma",
			Category:   domain.CategoryCalculation,
			ContractID: "calc_ma",
			TaskID:     "t3",
		},
		Name:   "calc_ma",
		TaskID: "t3",
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Nil(t, result.Tool)

	tool, err := gw.reg.GetByName(t.Context(), "calc_ma")
	require.NoError(t, err)
	assert.Nil(t, tool)
}

func TestCheckpointLifecycle(t *testing.T) {
	gw, _ := newTestGateway(t)
	cp, err := gw.Checkpoint(t.Context(), map[string]any{"task": "demo"})
	require.NoError(t, err)
	assert.Equal(t, domain.CheckpointPending, cp.Status)

	require.NoError(t, gw.CompleteCheckpoint(t.Context(), cp))
	assert.Equal(t, domain.CheckpointComplete, cp.Status)
}
