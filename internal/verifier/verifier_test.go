package verifier

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/example/toolforge/internal/constraints"
	"github.com/example/toolforge/internal/sandbox"
	"github.com/example/toolforge/pkg/domain"
)

func skipIfNoPython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
}

func newTestVerifier() *Verifier {
	ex := sandbox.NewExecutor(constraints.Default())
	return New(ex, func(v *Verifier) {
		v.sleep = func(time.Duration) {}
	})
}

func TestVerify_RejectsBannedImportAtASTSecurityStage(t *testing.T) {
	v := newTestVerifier()
	report := v.Verify(t.Context(), Candidate{
		Source:     "import os\ndef calc_ma(prices):\n    return sum(prices)/len(prices)\n",
		EntryFunc:  "calc_ma",
		Category:   domain.CategoryCalculation,
		ContractID: "calc_ma",
		TaskID:     "t1",
	})
	assert.False(t, report.Passed)
	assert.Equal(t, domain.StageASTSecurity, report.FinalStage)
	assert.Equal(t, domain.ErrSecurity, report.ErrorKind)
}

func TestVerify_PassesSimpleCalculationTool(t *testing.T) {
	skipIfNoPython(t)
	v := newTestVerifier()
	src := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 2.0
    assert calc_ma([5.0]) == 5.0
`
	report := v.Verify(t.Context(), Candidate{
		Source:     src,
		EntryFunc:  "calc_ma",
		Category:   domain.CategoryCalculation,
		ContractID: "calc_ma",
		TaskID:     "t2",
	})
	assert.True(t, report.Passed)
	// INTEGRATION only runs for the fetch category (spec.md §4.5 stage 4);
	// a calculation tool finishes at CONTRACT_VALID.
	assert.Equal(t, domain.StageContractValid, report.FinalStage)
}

func TestVerify_FailsSelfTestAssertion(t *testing.T) {
	skipIfNoPython(t)
	v := newTestVerifier()
	src := `def calc_ma(prices, period=5):
    return sum(prices) / len(prices)


if __name__ == "__main__":
    assert calc_ma([1.0, 2.0, 3.0]) == 999.0
`
	report := v.Verify(t.Context(), Candidate{
		Source:     src,
		EntryFunc:  "calc_ma",
		Category:   domain.CategoryCalculation,
		ContractID: "calc_ma",
		TaskID:     "t3",
	})
	assert.False(t, report.Passed)
	assert.Equal(t, domain.StageSelfTest, report.FinalStage)
	assert.Equal(t, domain.ErrAssert, report.ErrorKind)
}

func TestSampleArgsAndSecondSampleArgsDiffer(t *testing.T) {
	contract, ok :=
		func() (domain.Contract, bool) { return testContract(), true }()
	if !ok {
		t.Fatal("expected contract")
	}
	first := SampleArgs(contract)
	second := SecondSampleArgs(contract, first)
	assert.NotEqual(t, first["prices"], second["prices"])
}

func testContract() domain.Contract {
	return domain.Contract{
		ContractID:     "calc_ma",
		InputTypes:     map[string]string{"prices": "list[float]"},
		RequiredInputs: []string{"prices"},
		OutputType:     domain.OutputNumeric,
	}
}
