// Package domain holds the shared entities of the tool evolution engine:
// Tool, ExecutionTrace, ErrorReport, ToolPatch, Checkpoint and Contract,
// plus the external-collaborator interfaces (LanguageModel, DataProvider).
// It sits below every other internal package so none of them need to import
// each other just to share a struct definition — the same role pkg/models
// plays for github.com/haasonsaas/nexus's internal/agent.
package domain

import "time"

// ToolStatus is the lifecycle state of a registered Tool.
type ToolStatus string

const (
	StatusProvisional ToolStatus = "PROVISIONAL"
	StatusVerified     ToolStatus = "VERIFIED"
	StatusDeprecated   ToolStatus = "DEPRECATED"
	StatusFailed       ToolStatus = "FAILED"
)

// Capability is a coarse permission tag attached to a tool.
type Capability string

const (
	CapCalcOnly    Capability = "CALC_ONLY"
	CapNetworkRead Capability = "NETWORK_READ"
	CapFileWrite   Capability = "FILE_WRITE"
)

// Category classifies what a tool does, driving both the capability
// allowlist (internal/constraints) and the LLM prompt template
// (internal/llmadapter).
type Category string

const (
	CategoryFetch       Category = "fetch"
	CategoryCalculation Category = "calculation"
	CategoryComposite   Category = "composite"
)

// VerificationStage identifies a stage of the four-stage Verifier pipeline.
type VerificationStage int

const (
	StageNone VerificationStage = iota
	StageASTSecurity
	StageSelfTest
	StageContractValid
	StageIntegration
)

func (s VerificationStage) String() string {
	switch s {
	case StageASTSecurity:
		return "AST_SECURITY"
	case StageSelfTest:
		return "SELF_TEST"
	case StageContractValid:
		return "CONTRACT_VALID"
	case StageIntegration:
		return "INTEGRATION"
	default:
		return "NONE"
	}
}

// SchemaTags are the structured lookup tags a Tool carries (spec.md §3).
type SchemaTags struct {
	Category          Category `json:"category,omitempty"`
	Indicator         string   `json:"indicator,omitempty"`
	DataType          string   `json:"data_type,omitempty"`
	InputRequirements []string `json:"input_requirements,omitempty"`
}

// Tool is a registered, verified unit of executable logic.
//
// Identity is (Name, SemanticVersion); content is addressed by the first 8
// hex characters of SHA-256(SourceText). A Tool is never mutated in place —
// a repair produces a new row with a bumped PATCH version and a ToolPatch
// edge back to the predecessor (spec.md §3 Lifecycle).
type Tool struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	SemanticVersion string            `json:"semantic_version"`
	SourceText      string            `json:"source_text"`
	FilePath        string            `json:"file_path"`
	ContentHash     string            `json:"content_hash"`
	ArgsSchema      map[string]string `json:"args_schema"`
	Capabilities    []Capability      `json:"capabilities"`
	Status          ToolStatus        `json:"status"`
	VerificationStage VerificationStage `json:"verification_stage"`
	SchemaTags      SchemaTags        `json:"schema_tags"`
	ContractID      string            `json:"contract_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

// HasCapability reports whether the tool declares cap.
func (t *Tool) HasCapability(cap Capability) bool {
	for _, c := range t.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// ExecutionTrace is one invocation record, immutable after write.
type ExecutionTrace struct {
	TraceID          string          `json:"trace_id"`
	TaskID           string          `json:"task_id"`
	ToolID           string          `json:"tool_id,omitempty"`
	InputArgs        map[string]any  `json:"input_args"`
	OutputRepr       string          `json:"output_repr"`
	ExitCode         int             `json:"exit_code"`
	Stdout           string          `json:"std_out"`
	Stderr           string          `json:"std_err"`
	ExecutionTimeMs  int64           `json:"execution_time_ms"`
	ModelConfig      map[string]any  `json:"model_config,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Exit code contract from spec.md §4.1.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitTimeout = 124
)

// ErrorKind is the failure taxonomy from spec.md §7.
type ErrorKind string

const (
	ErrSecurity           ErrorKind = "SECURITY"
	ErrSyntax             ErrorKind = "SYNTAX"
	ErrExec               ErrorKind = "EXEC"
	ErrAssert             ErrorKind = "ASSERT"
	ErrContract           ErrorKind = "CONTRACT"
	ErrIntegration        ErrorKind = "INTEGRATION"
	ErrImport             ErrorKind = "IMPORT"
	ErrTimeout            ErrorKind = "TIMEOUT"
	ErrModelTransport     ErrorKind = "MODEL_TRANSPORT"
	ErrProviderUnsupported ErrorKind = "PROVIDER_UNSUPPORTED"
	ErrUnknown            ErrorKind = "UNKNOWN"
)

// UnfixableErrorKinds never get another Refiner attempt (spec.md §4.8/§7).
var UnfixableErrorKinds = map[ErrorKind]bool{
	ErrSecurity: true,
}

// ErrorReport is an analyzed failure.
type ErrorReport struct {
	ErrorReportID string    `json:"error_report_id"`
	TraceID       string    `json:"trace_id"`
	ErrorKind     ErrorKind `json:"error_kind"`
	RootCause     string    `json:"root_cause"`
	CreatedAt     time.Time `json:"created_at"`
}

// ToolPatch is a repair edge from a base tool to its successor.
type ToolPatch struct {
	PatchID         string  `json:"patch_id"`
	ErrorReportID   string  `json:"error_report_id"`
	BaseToolID      string  `json:"base_tool_id"`
	ResultingToolID string  `json:"resulting_tool_id,omitempty"`
	Approach        string  `json:"approach"`
	FailureReason   *string `json:"failure_reason,omitempty"`
}

// CheckpointStatus is the lifecycle state of a Checkpoint.
type CheckpointStatus string

const (
	CheckpointPending  CheckpointStatus = "pending"
	CheckpointComplete CheckpointStatus = "complete"
	CheckpointFailed   CheckpointStatus = "failed"
)

// Checkpoint is a rollback point the Gateway takes before mutating the registry.
type Checkpoint struct {
	CheckpointID string           `json:"checkpoint_id"`
	CreatedAt    time.Time        `json:"created_at"`
	Status       CheckpointStatus `json:"status"`
	Context      map[string]any   `json:"context,omitempty"`
}

// OutputType is the contract's declared output shape.
type OutputType string

const (
	OutputNumeric OutputType = "NUMERIC"
	OutputDict    OutputType = "DICT"
	OutputBoolean OutputType = "BOOLEAN"
	OutputList    OutputType = "LIST"
	OutputFrame   OutputType = "FRAME"
)

// OutputConstraints bounds a contract's output, per OutputType.
type OutputConstraints struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	RequiredKeys []string `json:"required_keys,omitempty"`
	KeyTypes     map[string]string `json:"key_types,omitempty"`
	Enum         []string `json:"enum,omitempty"`
	ElementType  string   `json:"element_type,omitempty"`
	MinElements  *int     `json:"min_elements,omitempty"`
	MaxElements  *int     `json:"max_elements,omitempty"`
	RequiredColumns []string `json:"required_columns,omitempty"`
	MinRows      *int     `json:"min_rows,omitempty"`
	MaxRows      *int     `json:"max_rows,omitempty"`
}

// Contract is a static, load-time-defined input/output specification.
type Contract struct {
	ContractID        string            `json:"contract_id"`
	InputTypes        map[string]string `json:"input_types"`
	RequiredInputs    []string          `json:"required_inputs"`
	OutputType        OutputType        `json:"output_type"`
	OutputConstraints OutputConstraints `json:"output_constraints"`
}
