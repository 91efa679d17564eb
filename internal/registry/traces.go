package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/toolforge/pkg/domain"
)

// SaveTrace persists an ExecutionTrace. Traces are immutable after write
// (spec.md §3).
func (r *Registry) SaveTrace(ctx context.Context, trace *domain.ExecutionTrace) error {
	argsJSON, _ := json.Marshal(trace.InputArgs)
	cfgJSON, _ := json.Marshal(trace.ModelConfig)
	var toolID sql.NullString
	if trace.ToolID != "" {
		toolID = sql.NullString{String: trace.ToolID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO execution_traces
		(trace_id, task_id, tool_id, input_args, output_repr, exit_code, std_out, std_err, execution_time_ms, model_config, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		trace.TraceID, trace.TaskID, toolID, string(argsJSON), trace.OutputRepr,
		trace.ExitCode, trace.Stdout, trace.Stderr, trace.ExecutionTimeMs, string(cfgJSON),
		trace.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save execution trace: %w", err)
	}
	return nil
}

// SaveErrorReport persists an analyzed failure (spec.md §3 ErrorReport).
func (r *Registry) SaveErrorReport(ctx context.Context, report *domain.ErrorReport) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO error_reports
		(error_report_id, trace_id, error_kind, root_cause, created_at)
		VALUES (?,?,?,?,?)`,
		report.ErrorReportID, report.TraceID, string(report.ErrorKind), report.RootCause,
		report.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save error report: %w", err)
	}
	return nil
}

// SaveToolPatch persists a repair edge (spec.md §3 ToolPatch).
func (r *Registry) SaveToolPatch(ctx context.Context, patch *domain.ToolPatch) error {
	var resultingID sql.NullString
	if patch.ResultingToolID != "" {
		resultingID = sql.NullString{String: patch.ResultingToolID, Valid: true}
	}
	var failureReason sql.NullString
	if patch.FailureReason != nil {
		failureReason = sql.NullString{String: *patch.FailureReason, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO tool_patches
		(patch_id, error_report_id, base_tool_id, resulting_tool_id, approach, failure_reason)
		VALUES (?,?,?,?,?,?)`,
		patch.PatchID, patch.ErrorReportID, patch.BaseToolID, resultingID, patch.Approach, failureReason)
	if err != nil {
		return fmt.Errorf("save tool patch: %w", err)
	}
	return nil
}

// PatchHistory returns prior patch attempts for baseToolID, in insertion
// order, so the Refiner can build its prompt history (spec.md §4.8).
func (r *Registry) PatchHistory(ctx context.Context, baseToolID string) ([]*domain.ToolPatch, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT patch_id, error_report_id, base_tool_id, resulting_tool_id, approach, failure_reason
		FROM tool_patches WHERE base_tool_id = ? ORDER BY rowid ASC`, baseToolID)
	if err != nil {
		return nil, fmt.Errorf("query patch history: %w", err)
	}
	defer rows.Close()

	var out []*domain.ToolPatch
	for rows.Next() {
		var p domain.ToolPatch
		var resultingID, failureReason sql.NullString
		if err := rows.Scan(&p.PatchID, &p.ErrorReportID, &p.BaseToolID, &resultingID, &p.Approach, &failureReason); err != nil {
			return nil, fmt.Errorf("scan tool patch: %w", err)
		}
		p.ResultingToolID = resultingID.String
		if failureReason.Valid {
			fr := failureReason.String
			p.FailureReason = &fr
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveCheckpoint inserts or updates a Checkpoint row (spec.md §3, §5
// Checkpoint discipline).
func (r *Registry) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	ctxJSON, _ := json.Marshal(cp.Context)
	_, err := r.db.ExecContext(ctx, `INSERT INTO checkpoints (checkpoint_id, created_at, status, context)
		VALUES (?,?,?,?)
		ON CONFLICT(checkpoint_id) DO UPDATE SET status = excluded.status, context = excluded.context`,
		cp.CheckpointID, cp.CreatedAt.Format(time.RFC3339Nano), string(cp.Status), string(ctxJSON))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
