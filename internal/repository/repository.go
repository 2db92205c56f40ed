// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and applies the schema.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	ctx := context.Background()

	db, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLRepository) migrate(ctx context.Context) error {
	for i, schema := range AllSchemas() {
		if _, err := r.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("schema %d: %w", i, err)
		}
	}
	return nil
}

// SaveCase creates or replaces a case.
func (r *SQLRepository) SaveCase(ctx context.Context, c *domain.Case) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: case ID is required", ErrInvalidInput)
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: unknown case status %q", ErrInvalidInput, c.Status)
	}

	profile, err := json.Marshal(c.Profile)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO cases (
			id, title, entity_name, entity_id, type, date, amount, currency,
			counterparty_country, description, risk_level, status,
			assigned_analyst, profile, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			entity_name = excluded.entity_name,
			entity_id = excluded.entity_id,
			type = excluded.type,
			date = excluded.date,
			amount = excluded.amount,
			currency = excluded.currency,
			counterparty_country = excluded.counterparty_country,
			description = excluded.description,
			risk_level = excluded.risk_level,
			status = excluded.status,
			assigned_analyst = excluded.assigned_analyst,
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		c.ID, c.Title, c.EntityName, c.EntityID, c.Type, c.Date,
		c.Amount, c.Currency, c.CounterpartyCountry, c.Description,
		string(c.RiskLevel), string(c.Status), c.AssignedAnalyst,
		string(profile), c.CreatedAt, c.UpdatedAt,
	)
	return err
}

const caseColumns = `
	id, title, entity_name, entity_id, type, date, amount, currency,
	counterparty_country, description, risk_level, status,
	assigned_analyst, profile, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*domain.Case, error) {
	var c domain.Case
	var description, analyst sql.NullString
	var riskLevel, status, profile string

	err := row.Scan(
		&c.ID, &c.Title, &c.EntityName, &c.EntityID, &c.Type, &c.Date,
		&c.Amount, &c.Currency, &c.CounterpartyCountry, &description,
		&riskLevel, &status, &analyst, &profile,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Description = description.String
	c.AssignedAnalyst = analyst.String
	c.RiskLevel = domain.RiskRating(riskLevel)
	c.Status = domain.CaseStatus(status)
	if err := json.Unmarshal([]byte(profile), &c.Profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile for case %s: %w", c.ID, err)
	}
	return &c, nil
}

// GetCase retrieves a case by ID.
func (r *SQLRepository) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = ?`

	c, err := scanCase(r.db.QueryRowContext(ctx, r.rebind(query), caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCases returns cases ordered by ID. An empty status returns every case.
func (r *SQLRepository) ListCases(ctx context.Context, status domain.CaseStatus) ([]*domain.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}

	return cases, rows.Err()
}

// UpdateCaseStatus sets the workflow status of a case.
func (r *SQLRepository) UpdateCaseStatus(ctx context.Context, caseID string, status domain.CaseStatus) error {
	return r.updateCaseStatus(ctx, r.db, caseID, status)
}

func (r *SQLRepository) updateCaseStatus(ctx context.Context, db execer, caseID string, status domain.CaseStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown case status %q", ErrInvalidInput, status)
	}

	query := `UPDATE cases SET status = ?, updated_at = ? WHERE id = ?`

	result, err := db.ExecContext(ctx, r.rebind(query), string(status), time.Now().UTC(), caseID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveDecision stores a decision.
func (r *SQLRepository) SaveDecision(ctx context.Context, d *domain.Decision) error {
	if d == nil || d.ID == "" || d.CaseID == "" {
		return fmt.Errorf("%w: decision and case IDs are required", ErrInvalidInput)
	}

	result, _ := json.Marshal(d.Result)
	reasons, _ := json.Marshal(d.Reasons)
	metadata, _ := json.Marshal(d.Metadata)

	query := `
		INSERT INTO decisions (id, case_id, status, result, reasons, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		d.ID, d.CaseID, d.Status,
		string(result), string(reasons),
		d.Timestamp, string(metadata),
	)
	return err
}

const decisionColumns = `id, case_id, status, result, reasons, timestamp, metadata`

func scanDecision(row rowScanner) (*domain.Decision, error) {
	var d domain.Decision
	var result, metadata string
	var reasons sql.NullString

	if err := row.Scan(&d.ID, &d.CaseID, &d.Status, &result, &reasons, &d.Timestamp, &metadata); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(result), &d.Result); err != nil {
		return nil, fmt.Errorf("failed to decode result for decision %s: %w", d.ID, err)
	}
	if reasons.String != "" {
		json.Unmarshal([]byte(reasons.String), &d.Reasons)
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &d.Metadata)
	}
	return &d, nil
}

// GetDecision retrieves a decision by ID.
func (r *SQLRepository) GetDecision(ctx context.Context, decisionID string) (*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE id = ?`

	d, err := scanDecision(r.db.QueryRowContext(ctx, r.rebind(query), decisionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// ListDecisions returns the decisions for a case, newest first.
func (r *SQLRepository) ListDecisions(ctx context.Context, caseID string) ([]*domain.Decision, error) {
	query := `SELECT ` + decisionColumns + ` FROM decisions WHERE case_id = ? ORDER BY timestamp DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []*domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// SaveEscalation stores the escalation record of a case. Records are
// written once; a second save for the same case fails.
func (r *SQLRepository) SaveEscalation(ctx context.Context, rec *domain.EscalationRecord) error {
	return r.saveEscalation(ctx, r.db, rec)
}

func (r *SQLRepository) saveEscalation(ctx context.Context, db execer, rec *domain.EscalationRecord) error {
	if rec == nil || rec.CaseID == "" {
		return fmt.Errorf("%w: case ID is required", ErrInvalidInput)
	}

	snapshot, _ := json.Marshal(rec.TriggerSnapshot)

	var gap sql.NullFloat64
	if rec.TimeGapHours != nil {
		gap = sql.NullFloat64{Float64: *rec.TimeGapHours, Valid: true}
	}

	query := `
		INSERT INTO escalations (
			case_id, rationale, analyst, timestamp, triggers_met, triggers_total,
			threshold, deviation_pct, time_gap_hours, trigger_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, r.rebind(query),
		rec.CaseID, rec.Rationale, rec.Analyst, rec.Timestamp,
		rec.TriggersMet, rec.TriggersTotal, rec.Threshold,
		rec.DeviationPct, gap, string(snapshot),
	)
	return err
}

// GetEscalation retrieves the escalation record of a case.
func (r *SQLRepository) GetEscalation(ctx context.Context, caseID string) (*domain.EscalationRecord, error) {
	query := `
		SELECT case_id, rationale, analyst, timestamp, triggers_met, triggers_total,
			   threshold, deviation_pct, time_gap_hours, trigger_snapshot
		FROM escalations
		WHERE case_id = ?
	`

	var rec domain.EscalationRecord
	var gap sql.NullFloat64
	var snapshot string

	err := r.db.QueryRowContext(ctx, r.rebind(query), caseID).Scan(
		&rec.CaseID, &rec.Rationale, &rec.Analyst, &rec.Timestamp,
		&rec.TriggersMet, &rec.TriggersTotal, &rec.Threshold,
		&rec.DeviationPct, &gap, &snapshot,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if gap.Valid {
		hours := gap.Float64
		rec.TimeGapHours = &hours
	}
	if snapshot != "" {
		json.Unmarshal([]byte(snapshot), &rec.TriggerSnapshot)
	}

	return &rec, nil
}

// SaveTransition appends a status change to the case history.
func (r *SQLRepository) SaveTransition(ctx context.Context, t *domain.CaseTransition) error {
	return r.saveTransition(ctx, r.db, t)
}

func (r *SQLRepository) saveTransition(ctx context.Context, db execer, t *domain.CaseTransition) error {
	if t == nil || t.CaseID == "" {
		return fmt.Errorf("%w: case ID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO case_transitions (case_id, from_status, to_status, action, analyst, note, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, r.rebind(query),
		t.CaseID, string(t.From), string(t.To), t.Action, t.Analyst, t.Note, t.Timestamp,
	)
	return err
}

// RecordTransition writes t, the escalation record when rec is non-nil, and
// the case's new status in one transaction. Nothing is kept if any write fails.
func (r *SQLRepository) RecordTransition(ctx context.Context, t *domain.CaseTransition, rec *domain.EscalationRecord) (err error) {
	if t == nil || t.CaseID == "" {
		return fmt.Errorf("%w: case ID is required", ErrInvalidInput)
	}
	if rec != nil && rec.CaseID != t.CaseID {
		return fmt.Errorf("%w: escalation for %s recorded with transition of %s", ErrInvalidInput, rec.CaseID, t.CaseID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if rec != nil {
		if err = r.saveEscalation(ctx, tx, rec); err != nil {
			return fmt.Errorf("failed to save escalation: %w", err)
		}
	}
	if err = r.saveTransition(ctx, tx, t); err != nil {
		return fmt.Errorf("failed to save transition: %w", err)
	}
	if err = r.updateCaseStatus(ctx, tx, t.CaseID, t.To); err != nil {
		return fmt.Errorf("failed to update case status: %w", err)
	}
	return tx.Commit()
}

// ListTransitions returns the history of a case, oldest first.
func (r *SQLRepository) ListTransitions(ctx context.Context, caseID string) ([]*domain.CaseTransition, error) {
	query := `
		SELECT case_id, from_status, to_status, action, analyst, note, timestamp
		FROM case_transitions
		WHERE case_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transitions []*domain.CaseTransition
	for rows.Next() {
		var t domain.CaseTransition
		var from, to string
		var note sql.NullString

		if err := rows.Scan(&t.CaseID, &from, &to, &t.Action, &t.Analyst, &note, &t.Timestamp); err != nil {
			return nil, err
		}
		t.From = domain.CaseStatus(from)
		t.To = domain.CaseStatus(to)
		t.Note = note.String
		transitions = append(transitions, &t)
	}

	return transitions, rows.Err()
}

// GetBlob returns the document stored under key, or nil if there is none.
func (r *SQLRepository) GetBlob(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM policy_blobs WHERE blob_key = ?`

	var value string
	err := r.db.QueryRowContext(ctx, r.rebind(query), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// PutBlob replaces the document stored under key.
func (r *SQLRepository) PutBlob(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO policy_blobs (blob_key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (blob_key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), key, string(value), time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
