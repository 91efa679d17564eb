package sandbox

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/pkg/domain"
)

func skipIfNoPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func TestExecutor_RunsSimpleEntryFunction(t *testing.T) {
	skipIfNoPython(t)
	ctx := t.Context()
	ex := NewExecutor(constraints.Default())

	src := `def calc_ma(prices):
    return sum(prices) / len(prices)
`
	trace, err := ex.Execute(ctx, ExecuteInput{
		Source:    src,
		EntryFunc: "calc_ma",
		Args:      map[string]any{"prices": []float64{1, 2, 3}},
		TaskID:    "t1",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExitOK, trace.ExitCode)
	assert.Contains(t, trace.OutputRepr, "2.0")
}

func TestExecutor_TimeoutMapsTo124(t *testing.T) {
	skipIfNoPython(t)
	ctx := t.Context()
	ex := NewExecutor(constraints.Default())

	src := `import time

def slow():
    time.sleep(5)
    return 1
`
	trace, err := ex.Execute(ctx, ExecuteInput{
		Source:    src,
		EntryFunc: "slow",
		Args:      map[string]any{},
		TaskID:    "t2",
		Timeout:   300 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExitTimeout, trace.ExitCode)
}

func TestExecutor_ExceptionMapsToExit1(t *testing.T) {
	skipIfNoPython(t)
	ctx := t.Context()
	ex := NewExecutor(constraints.Default())

	src := `def boom():
    raise ValueError("nope")
`
	trace, err := ex.Execute(ctx, ExecuteInput{
		Source:    src,
		EntryFunc: "boom",
		Args:      map[string]any{},
		TaskID:    "t3",
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExitError, trace.ExitCode)
}
