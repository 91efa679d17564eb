// Package registry persists tool metadata and its on-disk source payload,
// and provides lookup by name / content hash / schema (spec.md §4.2). The
// Gateway is the only writer (spec.md §4.6); Registry itself enforces no
// caller identity, it only enforces the data invariants (unique content
// hash, atomic file+row commit).
package registry

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/example/toolforge/pkg/domain"
)

// Registry is the persistent store for Tool rows plus the filesystem
// directory holding their source payloads, following the
// StoreSet-over-database/sql shape of the teacher's internal/storage
// package (internal/storage/cockroach.go), backed here by an embedded,
// pure-Go SQLite database instead of Postgres/CockroachDB — a single
// embedded store is a better fit than a distributed cluster for a
// single-node tool registry (spec.md's Non-goals exclude distributed
// execution).
type Registry struct {
	db           *sql.DB
	artifactRoot string
}

// Open opens (creating if necessary) a Registry backed by dbPath and
// artifactRoot, and runs schema migrations.
func Open(dbPath, artifactRoot string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	if err := os.MkdirAll(artifactRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	r := &Registry{db: db, artifactRoot: artifactRoot}
	if err := r.migrate(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// migrate applies column-add migrations (spec.md §4.2 Migration): missing
// values for legacy rows are left null and are ignored by FindBySchema.
func (r *Registry) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tools (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			semantic_version TEXT NOT NULL,
			source_text TEXT NOT NULL,
			file_path TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			args_schema TEXT NOT NULL,
			capabilities TEXT NOT NULL,
			status TEXT NOT NULL,
			verification_stage INTEGER NOT NULL,
			category TEXT,
			indicator TEXT,
			data_type TEXT,
			input_requirements TEXT,
			contract_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_name ON tools(name)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_content_hash ON tools(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_tools_schema ON tools(category, indicator, data_type)`,
		`CREATE TABLE IF NOT EXISTS execution_traces (
			trace_id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			tool_id TEXT,
			input_args TEXT NOT NULL,
			output_repr TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			std_out TEXT NOT NULL,
			std_err TEXT NOT NULL,
			execution_time_ms INTEGER NOT NULL,
			model_config TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS error_reports (
			error_report_id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			error_kind TEXT NOT NULL,
			root_cause TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tool_patches (
			patch_id TEXT PRIMARY KEY,
			error_report_id TEXT NOT NULL,
			base_tool_id TEXT NOT NULL,
			resulting_tool_id TEXT,
			approach TEXT NOT NULL,
			failure_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			status TEXT NOT NULL,
			context TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate registry schema: %w", err)
		}
	}
	return nil
}

// ToolData is the input to Register: everything the Gateway has assembled
// after the Verifier passed (spec.md §4.2 register).
type ToolData struct {
	Name         string
	SourceText   string
	Category     domain.Category
	ArgsSchema   map[string]string
	Capabilities []domain.Capability
	ContractID   string
	VerificationStage domain.VerificationStage
	PatchOf      string // non-empty when this is a repair of an existing tool
}

// ContentHash returns the first-8-hex-char content hash of source, per
// spec.md §3 ("Identity ... content addressed by SHA-256(source) truncated
// to 8 hex chars").
func ContentHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])[:8]
}

// Register writes the source file and inserts the Tool row atomically,
// rejecting duplicate content hashes by returning the existing tool
// (spec.md §4.2, §8 round-trip property). Version bumps MINOR for a new
// name, PATCH when PatchOf is set (spec.md §9 Open Question: policy
// followed as stated).
func (r *Registry) Register(ctx context.Context, data ToolData) (*domain.Tool, error) {
	hash := ContentHash(data.SourceText)

	if existing, err := r.GetByHash(ctx, hash); err == nil && existing != nil {
		return existing, nil
	}

	version, err := r.nextVersion(ctx, data.Name, data.PatchOf)
	if err != nil {
		return nil, err
	}

	dir := string(data.Category)
	if dir == "" {
		dir = "generated"
	}
	fileName := fmt.Sprintf("%s_v%s_%s.py", sanitizeName(data.Name), version, hash)
	filePath := filepath.Join(dir, fileName)
	absPath := filepath.Join(r.artifactRoot, filePath)

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin registration transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := os.WriteFile(absPath, []byte(data.SourceText), 0o644); err != nil {
		return nil, fmt.Errorf("write tool source file: %w", err)
	}

	tool := &domain.Tool{
		ID:                uuid.NewString(),
		Name:              data.Name,
		SemanticVersion:   version,
		SourceText:        data.SourceText,
		FilePath:          filePath,
		ContentHash:       hash,
		ArgsSchema:        data.ArgsSchema,
		Capabilities:      data.Capabilities,
		Status:            domain.StatusProvisional,
		VerificationStage: data.VerificationStage,
		ContractID:        data.ContractID,
		SchemaTags:        domain.SchemaTags{Category: data.Category},
		CreatedAt:         time.Now(),
	}

	argsJSON, _ := json.Marshal(tool.ArgsSchema)
	capsJSON, _ := json.Marshal(tool.Capabilities)

	_, err = tx.ExecContext(ctx, `INSERT INTO tools
		(id, name, semantic_version, source_text, file_path, content_hash,
		 args_schema, capabilities, status, verification_stage, category,
		 contract_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tool.ID, tool.Name, tool.SemanticVersion, tool.SourceText, tool.FilePath,
		tool.ContentHash, string(argsJSON), string(capsJSON), string(tool.Status),
		int(tool.VerificationStage), string(tool.SchemaTags.Category), tool.ContractID,
		tool.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		os.Remove(absPath)
		return nil, fmt.Errorf("insert tool row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		os.Remove(absPath)
		return nil, fmt.Errorf("commit registration: %w", err)
	}

	return tool, nil
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '/' {
			return '_'
		}
		return r
	}, name)
}

// nextVersion computes the semantic version for a new registration
// (spec.md §4.2 Migration / §9 version-bump policy).
func (r *Registry) nextVersion(ctx context.Context, name, patchOf string) (string, error) {
	if patchOf != "" {
		base, err := r.GetByID(ctx, patchOf)
		if err != nil {
			return "", fmt.Errorf("resolve patch base %q: %w", patchOf, err)
		}
		return bumpPatch(base.SemanticVersion), nil
	}

	existing, err := r.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return "0.1.0", nil
	}
	return bumpMinor(existing.SemanticVersion), nil
}

func bumpPatch(version string) string {
	parts := splitVersion(version)
	parts[2]++
	return joinVersion(parts)
}

func bumpMinor(version string) string {
	parts := splitVersion(version)
	parts[1]++
	parts[2] = 0
	return joinVersion(parts)
}

func splitVersion(version string) [3]int {
	var out [3]int
	fields := strings.SplitN(version, ".", 3)
	for i := 0; i < 3 && i < len(fields); i++ {
		n, err := strconv.Atoi(fields[i])
		if err == nil {
			out[i] = n
		}
	}
	return out
}

func joinVersion(parts [3]int) string {
	return fmt.Sprintf("%d.%d.%d", parts[0], parts[1], parts[2])
}

// GetByName returns the most recently registered non-FAILED tool with the
// given name, or nil if none exists.
func (r *Registry) GetByName(ctx context.Context, name string) (*domain.Tool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools
		WHERE name = ? AND status != ? ORDER BY created_at DESC LIMIT 1`, name, string(domain.StatusFailed))
	return scanOptionalTool(row)
}

// GetByHash returns the tool with the given content hash, or nil.
func (r *Registry) GetByHash(ctx context.Context, hash string) (*domain.Tool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools
		WHERE content_hash = ? LIMIT 1`, hash)
	return scanOptionalTool(row)
}

// GetByID returns the tool with the given internal ID, or nil.
func (r *Registry) GetByID(ctx context.Context, id string) (*domain.Tool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+toolColumns+` FROM tools
		WHERE id = ? LIMIT 1`, id)
	return scanOptionalTool(row)
}

// FindBySchema returns the first matching non-FAILED tool, tie-broken by
// most recent registration (spec.md §4.2 find_by_schema). Empty filter
// fields are treated as wildcards.
func (r *Registry) FindBySchema(ctx context.Context, category domain.Category, indicator, dataType string) (*domain.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools WHERE status != ?`
	args := []any{string(domain.StatusFailed)}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, string(category))
	}
	if indicator != "" {
		query += ` AND indicator = ?`
		args = append(args, indicator)
	}
	if dataType != "" {
		query += ` AND data_type = ?`
		args = append(args, dataType)
	}
	query += ` ORDER BY created_at DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, args...)
	return scanOptionalTool(row)
}

// UpdateSchema sets schema tags on a registered tool post-registration
// (spec.md §4.2 update_schema, §4.7 step 8).
func (r *Registry) UpdateSchema(ctx context.Context, toolID string, tags domain.SchemaTags) error {
	reqJSON, _ := json.Marshal(tags.InputRequirements)
	_, err := r.db.ExecContext(ctx, `UPDATE tools SET category = ?, indicator = ?, data_type = ?, input_requirements = ? WHERE id = ?`,
		string(tags.Category), tags.Indicator, tags.DataType, string(reqJSON), toolID)
	if err != nil {
		return fmt.Errorf("update schema tags for tool %q: %w", toolID, err)
	}
	return nil
}

// ListFilter narrows List results; zero values are wildcards.
type ListFilter struct {
	Status   domain.ToolStatus
	Category domain.Category
}

// List returns tools matching filter, most recent first.
func (r *Registry) List(ctx context.Context, filter ListFilter) ([]*domain.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(filter.Category))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	defer rows.Close()

	var out []*domain.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, rows.Err()
}

const toolColumns = `id, name, semantic_version, source_text, file_path, content_hash,
	args_schema, capabilities, status, verification_stage, category, indicator,
	data_type, input_requirements, contract_id, created_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanOptionalTool(row scannable) (*domain.Tool, error) {
	t, err := scanTool(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanTool(row scannable) (*domain.Tool, error) {
	var (
		t                                            domain.Tool
		argsJSON, capsJSON                           string
		reqJSON                                      sql.NullString
		category, indicator, dataType, contractID    sql.NullString
		createdAt                                    string
		verificationStage                            int
	)
	if err := row.Scan(
		&t.ID, &t.Name, &t.SemanticVersion, &t.SourceText, &t.FilePath, &t.ContentHash,
		&argsJSON, &capsJSON, &t.Status, &verificationStage, &category, &indicator,
		&dataType, &reqJSON, &contractID, &createdAt,
	); err != nil {
		return nil, err
	}

	_ = json.Unmarshal([]byte(argsJSON), &t.ArgsSchema)
	_ = json.Unmarshal([]byte(capsJSON), &t.Capabilities)
	var reqs []string
	if reqJSON.Valid {
		_ = json.Unmarshal([]byte(reqJSON.String), &reqs)
	}

	t.VerificationStage = domain.VerificationStage(verificationStage)
	t.SchemaTags = domain.SchemaTags{
		Category:          domain.Category(category.String),
		Indicator:         indicator.String,
		DataType:          dataType.String,
		InputRequirements: reqs,
	}
	t.ContractID = contractID.String
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		t.CreatedAt = ts
	}
	return &t, nil
}
