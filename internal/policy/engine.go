// Package policy classifies proposed tool invocations, decides
// whether they need interactive approval, and persists the
// user-saved approve/deny patterns and audit trail that make that
// decision durable across sessions.
package policy

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"tark/internal/metrics"
	"tark/pkg/types"
)

// Engine is the Policy & Approval Engine: it classifies an action,
// looks up whether the current mode/trust/workdir combination and any
// saved pattern require approval, and records every decision.
type Engine struct {
	db *sql.DB

	modeID  string
	trustID string

	doomLoop *DoomLoopDetector
}

// Open opens (creating if absent) the SQLite-backed policy store at
// dbPath and seeds its builtin rule table if empty.
func Open(ctx context.Context, dbPath, modeID, trustID string) (*Engine, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open policy store: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	e := &Engine{db: db, modeID: modeID, trustID: trustID, doomLoop: NewDoomLoopDetector()}
	if err := e.seedBuiltinRules(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) Close() error { return e.db.Close() }

func migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS rules (
			classification_id TEXT NOT NULL,
			mode_id TEXT NOT NULL,
			trust_id TEXT NOT NULL,
			in_workdir INTEGER NOT NULL,
			needs_approval INTEGER NOT NULL,
			allow_save_pattern INTEGER NOT NULL,
			rationale TEXT NOT NULL,
			builtin_hash TEXT NOT NULL,
			PRIMARY KEY (classification_id, mode_id, trust_id, in_workdir)
		)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tool_id TEXT NOT NULL,
			pattern TEXT NOT NULL,
			match_type TEXT NOT NULL,
			is_denial INTEGER NOT NULL,
			persistence TEXT NOT NULL,
			session_id TEXT,
			created_at INTEGER NOT NULL,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS audit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			tool_id TEXT NOT NULL,
			command TEXT NOT NULL,
			classification_id TEXT NOT NULL,
			mode_id TEXT NOT NULL,
			trust_id TEXT NOT NULL,
			decision TEXT NOT NULL,
			matched_pattern_id INTEGER,
			session_id TEXT NOT NULL,
			working_directory TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS seed_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate policy store: %w", err)
		}
	}
	return nil
}

// builtinRules is the shipped default rule table. Its hash is used to
// detect tampering: if a row's builtin_hash no longer matches what
// the current binary would seed, the row was edited out-of-band and
// is reseeded rather than trusted silently.
var builtinRules = []types.ApprovalRule{
	{ClassificationID: "bash:read", ModeID: "*", TrustID: "*", InWorkdir: true, NeedsApproval: false, AllowSavePattern: true, Rationale: "read-only commands in the project directory run without approval"},
	{ClassificationID: "bash:write", ModeID: "*", TrustID: "*", InWorkdir: true, NeedsApproval: true, AllowSavePattern: true, Rationale: "commands that write require approval unless a pattern was saved"},
	{ClassificationID: "bash:delete", ModeID: "*", TrustID: "*", InWorkdir: true, NeedsApproval: true, AllowSavePattern: false, Rationale: "deletes always require approval, never save a standing pattern"},
	{ClassificationID: "file:write", ModeID: "*", TrustID: "*", InWorkdir: true, NeedsApproval: true, AllowSavePattern: true, Rationale: "writes require approval unless a pattern was saved"},
	{ClassificationID: "file:edit", ModeID: "*", TrustID: "*", InWorkdir: true, NeedsApproval: true, AllowSavePattern: true, Rationale: "edits require approval unless a pattern was saved"},
	{ClassificationID: "file:delete", ModeID: "*", TrustID: "*", InWorkdir: true, NeedsApproval: true, AllowSavePattern: false, Rationale: "deletes always require approval, never save a standing pattern"},
}

func builtinHash(r types.ApprovalRule) string {
	data, _ := json.Marshal(r)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e *Engine) seedBuiltinRules(ctx context.Context) error {
	for _, rule := range builtinRules {
		hash := builtinHash(rule)
		var existingHash, rationale string
		var needsApproval, allowSave int
		err := e.db.QueryRowContext(ctx,
			`SELECT builtin_hash, needs_approval, allow_save_pattern, rationale FROM rules WHERE classification_id=? AND mode_id=? AND trust_id=? AND in_workdir=?`,
			rule.ClassificationID, rule.ModeID, rule.TrustID, boolToInt(rule.InWorkdir)).Scan(&existingHash, &needsApproval, &allowSave, &rationale)
		stored := rule
		stored.NeedsApproval, stored.AllowSavePattern, stored.Rationale = needsApproval != 0, allowSave != 0, rationale

		switch {
		case err == sql.ErrNoRows:
			if err := e.insertRule(ctx, rule, hash); err != nil {
				return err
			}
		case err != nil:
			return err
		case existingHash != hash || builtinHash(stored) != hash:
			log.Warn().Str("classification", rule.ClassificationID).Msg("builtin policy rule hash mismatch, reseeding")
			if err := e.insertRule(ctx, rule, hash); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) insertRule(ctx context.Context, rule types.ApprovalRule, hash string) error {
	_, err := e.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rules (classification_id, mode_id, trust_id, in_workdir, needs_approval, allow_save_pattern, rationale, builtin_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ClassificationID, rule.ModeID, rule.TrustID, boolToInt(rule.InWorkdir),
		boolToInt(rule.NeedsApproval), boolToInt(rule.AllowSavePattern), rule.Rationale, hash)
	return err
}

// Decide classifies command (a bash command line or a file-tool
// target path, per toolID) and returns the approval decision,
// checking saved patterns before falling back to the rule table.
// Denial patterns take precedence over approval patterns at equal
// specificity.
func (e *Engine) Decide(ctx context.Context, sessionID, toolID, command, workDir string) (*types.ApprovalDecision, error) {
	var classification types.CommandClassification
	if toolID == "bash" {
		classification = ClassifyBash(command, workDir)
	} else {
		classification = ClassifyFileTool(toolID, command, workDir)
	}

	if pattern, isDenial, err := e.matchPattern(ctx, sessionID, toolID, command); err != nil {
		return nil, err
	} else if pattern != nil {
		decision := &types.ApprovalDecision{
			NeedsApproval:  isDenial,
			Classification: classification,
			MatchedPattern: pattern,
			Rationale:      "matched saved pattern",
		}
		e.audit(ctx, sessionID, toolID, command, classification, decision, workDir)
		metrics.PolicyDecisions.WithLabelValues(needsApprovalLabel(decision.NeedsApproval)).Inc()
		return decision, nil
	}

	rule, err := e.lookupRule(ctx, classification)
	if err != nil {
		return nil, err
	}
	decision := &types.ApprovalDecision{
		NeedsApproval:    rule.NeedsApproval,
		AllowSavePattern: rule.AllowSavePattern,
		Classification:   classification,
		Rationale:        rule.Rationale,
	}
	e.audit(ctx, sessionID, toolID, command, classification, decision, workDir)
	metrics.PolicyDecisions.WithLabelValues(needsApprovalLabel(decision.NeedsApproval)).Inc()
	return decision, nil
}

func needsApprovalLabel(needsApproval bool) string {
	if needsApproval {
		return "true"
	}
	return "false"
}

func (e *Engine) lookupRule(ctx context.Context, c types.CommandClassification) (types.ApprovalRule, error) {
	candidates := []string{c.ID, genericRuleID(c.ID), "*"}
	for _, id := range candidates {
		row := e.db.QueryRowContext(ctx,
			`SELECT needs_approval, allow_save_pattern, rationale FROM rules
			 WHERE classification_id = ? AND (mode_id = ? OR mode_id = '*') AND (trust_id = ? OR trust_id = '*') AND in_workdir = ?
			 ORDER BY mode_id != '*', trust_id != '*' LIMIT 1`,
			id, e.modeID, e.trustID, boolToInt(c.InWorkdir))
		var needsApproval, allowSave int
		var rationale string
		if err := row.Scan(&needsApproval, &allowSave, &rationale); err == nil {
			return types.ApprovalRule{NeedsApproval: needsApproval != 0, AllowSavePattern: allowSave != 0, Rationale: rationale}, nil
		}
	}
	// No rule matched at all: require approval either way; a dangerous
	// or out-of-workdir action may not save a standing pattern.
	if c.Risk == types.RiskDangerous || !c.InWorkdir {
		return types.ApprovalRule{NeedsApproval: true, AllowSavePattern: false, Rationale: "no matching rule, defaulting to require approval for a dangerous or out-of-workdir action"}, nil
	}
	return types.ApprovalRule{NeedsApproval: true, AllowSavePattern: true, Rationale: "no matching rule, defaulting to require approval"}, nil
}

func genericRuleID(classificationID string) string {
	for i := len(classificationID) - 1; i >= 0; i-- {
		if classificationID[i] == ':' {
			return classificationID[:i+1] + "*"
		}
	}
	return "*"
}

func (e *Engine) matchPattern(ctx context.Context, sessionID, toolID, command string) (*types.ApprovalPattern, bool, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, tool_id, pattern, match_type, is_denial, persistence, session_id, created_at, description
		 FROM patterns WHERE tool_id = ? AND (persistence = 'persistent' OR session_id = ?)
		 ORDER BY is_denial DESC`, toolID, sessionID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var p types.ApprovalPattern
		var sessID sql.NullString
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.ToolID, &p.Pattern, &p.MatchType, &p.IsDenial, &p.Persistence, &sessID, &p.CreatedAt, &desc); err != nil {
			return nil, false, err
		}
		p.SessionID = sessID.String
		p.Description = desc.String
		if MatchCommand(p.Pattern, command, p.MatchType) {
			return &p, p.IsDenial, nil
		}
	}
	return nil, false, rows.Err()
}

// SavePattern persists a user-approved or user-denied pattern.
func (e *Engine) SavePattern(ctx context.Context, p types.ApprovalPattern) (int64, error) {
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO patterns (tool_id, pattern, match_type, is_denial, persistence, session_id, created_at, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ToolID, p.Pattern, p.MatchType, boolToInt(p.IsDenial), p.Persistence, p.SessionID, time.Now().UnixMilli(), p.Description)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (e *Engine) audit(ctx context.Context, sessionID, toolID, command string, c types.CommandClassification, d *types.ApprovalDecision, workDir string) {
	decision := "auto"
	if d.NeedsApproval {
		decision = "pending_approval"
	}
	var patternID sql.NullInt64
	if d.MatchedPattern != nil {
		patternID = sql.NullInt64{Int64: d.MatchedPattern.ID, Valid: true}
		if d.MatchedPattern.IsDenial {
			decision = "denied"
		} else {
			decision = "approved"
		}
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, tool_id, command, classification_id, mode_id, trust_id, decision, matched_pattern_id, session_id, working_directory)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), toolID, command, c.ID, e.modeID, e.trustID, decision, patternID, sessionID, workDir)
	if err != nil {
		log.Error().Err(err).Msg("failed to write policy audit entry")
	}
}

// CheckDoomLoop reports whether toolName/args repeats a prior call in
// sessionID enough times in a row to be a stuck loop.
func (e *Engine) CheckDoomLoop(sessionID, toolName string, args any) bool {
	return e.doomLoop.Check(sessionID, toolName, args)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
