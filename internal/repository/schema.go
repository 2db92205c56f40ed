package repository

// Schema definitions for Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    entity_name TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    type TEXT NOT NULL,
    date TEXT NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    currency TEXT NOT NULL,
    counterparty_country TEXT NOT NULL,
    description TEXT,
    risk_level TEXT NOT NULL,
    status TEXT NOT NULL,
    assigned_analyst TEXT,
    profile TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status);
CREATE INDEX IF NOT EXISTS idx_cases_entity ON cases(entity_id);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    status TEXT NOT NULL,
    result TEXT NOT NULL,
    reasons TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_case ON decisions(case_id, timestamp);
`

// schemaEscalations holds one locked escalation record per case.
const schemaEscalations = `
CREATE TABLE IF NOT EXISTS escalations (
    case_id TEXT PRIMARY KEY,
    rationale TEXT NOT NULL,
    analyst TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    triggers_met INTEGER NOT NULL,
    triggers_total INTEGER NOT NULL,
    threshold INTEGER NOT NULL,
    deviation_pct DOUBLE PRECISION NOT NULL,
    time_gap_hours DOUBLE PRECISION,
    trigger_snapshot TEXT NOT NULL
);
`

const schemaTransitions = `
CREATE TABLE IF NOT EXISTS case_transitions (
    case_id TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status TEXT NOT NULL,
    action TEXT NOT NULL,
    analyst TEXT NOT NULL,
    note TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_transitions_case ON case_transitions(case_id, timestamp);
`

// schemaPolicyBlobs stores single-key documents such as the escalation policy.
const schemaPolicyBlobs = `
CREATE TABLE IF NOT EXISTS policy_blobs (
    blob_key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCases,
		schemaDecisions,
		schemaEscalations,
		schemaTransitions,
		schemaPolicyBlobs,
	}
}
